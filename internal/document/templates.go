package document

// bridgeTmpl：渲染端到宿主的消息通道。
// 原生 WebView 内优先走 ReactNativeWebView.postMessage，由原生壳转发；
// 浏览器内走 WebSocket，未连通前排队，连不上则退回 HTTP POST。
const bridgeTmpl = `{{define "bridge"}}<script>
var INGRESS_BRIDGE = {session: {{.Session}}, gen: {{.Gen}}, base: {{.BridgeBase}}};
(function (b) {
  var queue = [];
  var sock = null;
  function wsURL() {
    if (b.base.indexOf('http') === 0) {
      return 'ws' + b.base.slice(4) + '/ws';
    }
    var proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
    return proto + location.host + b.base + '/ws';
  }
  function viaHTTP(msg) {
    if (!window.fetch) {
      return;
    }
    fetch(b.base + '/message', {method: 'POST', headers: {'Content-Type': 'application/json'}, body: msg}).catch(function () {});
  }
  if (!window.ReactNativeWebView && window.WebSocket && b.base) {
    try {
      sock = new WebSocket(wsURL());
      sock.onopen = function () {
        while (queue.length) {
          sock.send(queue.shift());
        }
      };
      sock.onerror = function () {
        sock = null;
        while (queue.length) {
          viaHTTP(queue.shift());
        }
      };
    } catch (e) {
      sock = null;
    }
  }
  b.post = function (kind, payload) {
    var msg = JSON.stringify({v: 1, kind: kind, gen: b.gen, session: b.session, payload: payload ? String(payload) : ''});
    if (window.ReactNativeWebView) {
      window.ReactNativeWebView.postMessage(msg);
    } else if (sock && sock.readyState === 1) {
      sock.send(msg);
    } else if (sock && sock.readyState === 0) {
      queue.push(msg);
    } else {
      viaHTTP(msg);
    }
  };
})(INGRESS_BRIDGE);
</script>{{end}}`

const liveTmpl = `{{define "live"}}<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>高德地图</title>
<style>
html, body, #container { margin: 0; padding: 0; width: 100%; height: 100%; font-family: Arial, sans-serif; }
.loading { display: flex; flex-direction: column; justify-content: center; align-items: center; height: 100%; font-size: 16px; color: #666; }
.status { font-size: 12px; margin-top: 10px; color: #999; }
.error { color: red; text-align: center; padding: 20px; background: #ffe6e6; border: 1px solid red; margin: 10px; border-radius: 5px; }
</style>
</head>
<body>
<div id="container"><div class="loading"><div>高德地图加载中...</div><div class="status" id="status">初始化中</div></div></div>
{{template "bridge" .}}
<script>
var ingress = {ready: false, failed: false};
function setStatus(text) {
  var el = document.getElementById('status');
  if (el) {
    el.innerText = text;
  }
}
var loadTimer = setTimeout(function () {
  if (!ingress.ready && !ingress.failed) {
    setStatus('地图加载超时，请检查网络和API密钥');
    INGRESS_BRIDGE.post('timeout', 'no provider response within ' + {{.TimeoutMs}} + 'ms');
  }
}, {{.TimeoutMs}});
function onLoad() {
  if (ingress.ready) {
    return;
  }
  ingress.ready = true;
  clearTimeout(loadTimer);
  var loading = document.querySelector('.loading');
  if (loading) {
    loading.style.display = 'none';
  }
  INGRESS_BRIDGE.post('success', 'map ready');
}
function onError(reason) {
  if (ingress.failed) {
    return;
  }
  ingress.failed = true;
  clearTimeout(loadTimer);
  var container = document.getElementById('container');
  var box = document.createElement('div');
  box.className = 'error';
  box.innerText = '高德地图加载失败: ' + reason;
  container.innerHTML = '';
  container.appendChild(box);
  INGRESS_BRIDGE.post('error', reason);
}
window.onLoad = onLoad;
window.onError = onError;
var placePortal = function (map, id, position, title, color, level) {
  var dot = document.createElement('div');
  dot.style.cssText = 'width: 24px; height: 24px; border-radius: 50%; border: 3px solid white; display: flex; align-items: center; justify-content: center; color: white; font-weight: bold; font-size: 12px; box-shadow: 0 2px 4px rgba(0,0,0,0.3);';
  dot.style.backgroundColor = color;
  dot.innerText = String(level);
  new AMap.Marker({position: position, title: title, content: dot, offset: new AMap.Pixel(-12, -12), extData: {portalId: id}}).setMap(map);
};
var placeUser = function (map, position) {
  var dot = document.createElement('div');
  dot.style.cssText = 'width: 16px; height: 16px; border-radius: 50%; border: 3px solid white; box-shadow: 0 2px 4px rgba(0,0,0,0.3);';
  dot.style.backgroundColor = {{.UserColor}};
  new AMap.Marker({position: position, title: '我的位置', content: dot, offset: new AMap.Pixel(-8, -8)}).setMap(map);
  map.setCenter(position);
  map.setZoom(15);
};
setStatus('加载高德地图 API...');
</script>
<script src="{{.ProviderSrc}}" onerror="onError('provider script failed to load')"></script>
<script>
(function () {
  try {
    setStatus('创建地图实例...');
    var map = new AMap.Map('container', {zoom: {{.Zoom}}, center: [{{.CenterLng}}, {{.CenterLat}}], viewMode: '3D', mapStyle: 'amap://styles/normal'});
    map.on('complete', onLoad);
{{range .Markers}}    placePortal(map, {{.ID}}, [{{.Lng}}, {{.Lat}}], {{.Name}}, {{.Color}}, {{.Level}});
{{end}}{{with .User}}    placeUser(map, [{{.Lng}}, {{.Lat}}]);
{{end}}    setStatus('地图创建成功，加载资源...');
  } catch (e) {
    onError(e && e.message ? e.message : String(e));
  }
})();
</script>
</body>
</html>
{{end}}`

const diagnosticTmpl = `{{define "diagnostic"}}<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>WebView 测试页面</title>
<style>
html, body { margin: 0; padding: 20px; width: 100%; height: 100%; font-family: Arial, sans-serif; background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; display: flex; flex-direction: column; justify-content: center; align-items: center; text-align: center; }
.status { background: rgba(255,255,255,0.2); padding: 20px; border-radius: 10px; margin: 10px; }
</style>
</head>
<body>
<h1>WebView 测试页面</h1>
<div class="status"><h3>WebView 状态：正常</h3><p>如果看到这个页面，说明 WebView 工作正常</p></div>
<div class="status"><h3>桥接通道：已发送加载成功消息</h3><p>会话 {{.Session}}，第 {{.Gen}} 次加载</p></div>
<div class="status"><h3>门户数据：{{.PortalCount}} 个</h3><p>诊断模式不加载第三方地图</p></div>
{{template "bridge" .}}
<script>
INGRESS_BRIDGE.post('success', 'diagnostic page ready');
</script>
</body>
</html>
{{end}}`
