package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsahdlks/INgress/internal/amap"
	"github.com/dbsahdlks/INgress/internal/bridge"
	"github.com/dbsahdlks/INgress/internal/config"
	"github.com/dbsahdlks/INgress/internal/docstore"
	"github.com/dbsahdlks/INgress/internal/portal"
	"github.com/dbsahdlks/INgress/internal/render"
)

type fixture struct {
	srv     *httptest.Server
	portals *portal.Registry
	cfg     *config.Config
}

func setup(t *testing.T, mutate func(*config.Config, *Deps)) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.LoadTimeoutMs = 0
	reg, err := portal.NewRegistry(portal.Seed())
	require.NoError(t, err)
	pres := render.New(reg, docstore.NewLRU(64, time.Minute), render.Options{CredentialMode: "proxy"})
	sessions := bridge.NewRegistry(bridge.Options{Presenter: pres}, 8)
	t.Cleanup(func() { _ = sessions.CloseAll(context.Background()) })
	d := Deps{Config: cfg, Portals: reg, Sessions: sessions, Presenter: pres}
	if mutate != nil {
		mutate(cfg, &d)
	}
	srv := httptest.NewServer(New(d).Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, portals: reg, cfg: cfg}
}

func (f *fixture) do(t *testing.T, method, path string, body string, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (f *fixture) create(t *testing.T, diagnostic bool) sessionResponse {
	t.Helper()
	body := `{"diagnostic":false}`
	if diagnostic {
		body = `{"diagnostic":true}`
	}
	resp := f.do(t, "POST", "/api/sessions", body, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[sessionResponse](t, resp)
}

func TestHealthz(t *testing.T) {
	f := setup(t, nil)
	resp := f.do(t, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateSessionAndFetchDocument(t *testing.T) {
	f := setup(t, nil)
	s := f.create(t, false)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, uint64(1), s.State.Generation)
	assert.Equal(t, bridge.PhaseLoading, s.State.Phase)
	assert.Equal(t, "/bridge/"+s.ID+"/document?gen=1", s.DocumentURL)

	resp := f.do(t, "GET", s.DocumentURL, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("cache-control"))
	assert.Equal(t, "1", resp.Header.Get("x-bridge-generation"))
	html, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(html), `session: "`+s.ID+`"`)
	assert.Contains(t, string(html), `src="/provider/loader.js"`)

	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/bridge/"+s.ID+"/document?gen=9", "", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/bridge/"+s.ID+"/document?gen=x", "", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/bridge/nope/document", "", nil).StatusCode)
}

func TestRendererMessages(t *testing.T) {
	f := setup(t, nil)
	s := f.create(t, false)
	path := "/bridge/" + s.ID + "/message"

	resp := f.do(t, "POST", path, "高德地图加载成功", nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, false, decode[map[string]any](t, resp)["recognized"])

	resp = f.do(t, "POST", path, `{"v":1,"kind":"success","gen":1}`, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	st := decode[sessionResponse](t, f.do(t, "GET", "/api/sessions/"+s.ID+"/state", "", nil))
	assert.Equal(t, bridge.PhaseLoaded, st.State.Phase)
	assert.Equal(t, "高德地图加载成功", st.Status.Line)
}

func TestNativeHTTPErrorThenSuccess(t *testing.T) {
	f := setup(t, nil)
	s := f.create(t, false)

	resp := f.do(t, "POST", "/api/sessions/"+s.ID+"/native", `{"kind":"http_error","gen":1,"status":404}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	u := decode[sessionResponse](t, resp)
	assert.Equal(t, bridge.PhaseErrored, u.State.Phase)
	assert.True(t, u.Status.Blocking)

	f.do(t, "POST", "/bridge/"+s.ID+"/message", `{"v":1,"kind":"success","gen":1}`, nil)
	u = decode[sessionResponse](t, f.do(t, "GET", "/api/sessions/"+s.ID+"/state", "", nil))
	assert.Equal(t, bridge.PhaseLoaded, u.State.Phase)
	assert.Nil(t, u.State.LastError)

	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/api/sessions/"+s.ID+"/native", `{"kind":"crash"}`, nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/api/sessions/"+s.ID+"/native", `{"kind":"http_error","gen":1,"status":9000}`, nil).StatusCode)
}

func TestToggleRequiresTokenAndRegenerates(t *testing.T) {
	f := setup(t, func(c *config.Config, _ *Deps) { c.AdminToken = "op" })
	s := f.create(t, false)
	path := "/api/sessions/" + s.ID + "/toggle"

	assert.Equal(t, http.StatusUnauthorized, f.do(t, "POST", path, "", nil).StatusCode)

	resp := f.do(t, "POST", path, "", map[string]string{"x-admin-token": "op"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	u := decode[sessionResponse](t, resp)
	assert.True(t, u.State.DiagnosticMode)
	assert.Equal(t, bridge.PhaseLoading, u.State.Phase)
	assert.Equal(t, uint64(2), u.State.Generation)

	doc := f.do(t, "GET", u.DocumentURL, "", nil)
	html, _ := io.ReadAll(doc.Body)
	assert.NotContains(t, strings.ToLower(string(html)), "amap")

	// a late error from the first cycle is ignored
	f.do(t, "POST", "/bridge/"+s.ID+"/message", `{"v":1,"kind":"error","gen":1,"payload":"late"}`, nil)
	u = decode[sessionResponse](t, f.do(t, "GET", "/api/sessions/"+s.ID+"/state", "", nil))
	assert.Equal(t, bridge.PhaseLoading, u.State.Phase)
}

func TestReloadAndDelete(t *testing.T) {
	f := setup(t, nil)
	s := f.create(t, true)
	u := decode[sessionResponse](t, f.do(t, "POST", "/api/sessions/"+s.ID+"/reload", "", nil))
	assert.Equal(t, uint64(2), u.State.Generation)
	assert.True(t, u.State.DiagnosticMode)

	assert.Equal(t, http.StatusNoContent, f.do(t, "DELETE", "/api/sessions/"+s.ID, "", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/sessions/"+s.ID+"/state", "", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, "DELETE", "/api/sessions/"+s.ID, "", nil).StatusCode)
}

func TestSessionLimit(t *testing.T) {
	f := setup(t, nil)
	for i := 0; i < 8; i++ {
		f.create(t, false)
	}
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, "POST", "/api/sessions", "", nil).StatusCode)
}

func TestPortalsAndCapture(t *testing.T) {
	f := setup(t, nil)
	list := decode[map[string][]portal.Portal](t, f.do(t, "GET", "/api/portals", "", nil))
	assert.Len(t, list["portals"], 4)

	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/portals/99", "", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/api/portals/abc", "", nil).StatusCode)

	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/api/portals/1/capture", `{"owner":"agent"}`, nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/api/portals/1/capture", `{"faction":"ENLIGHTENED"}`, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, "POST", "/api/portals/99/capture", `{"owner":"a","faction":"ENLIGHTENED"}`, nil).StatusCode)

	resp := f.do(t, "POST", "/api/portals/2/capture", `{"owner":"agent","faction":"ENLIGHTENED"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	p := decode[portal.Portal](t, resp)
	require.NotNil(t, p.Faction)
	assert.Equal(t, portal.FactionEnlightened, *p.Faction)

	s := f.create(t, false)
	html, _ := io.ReadAll(f.do(t, "GET", s.DocumentURL, "", nil).Body)
	assert.Contains(t, string(html), "#32CD32")
}

func TestLocation(t *testing.T) {
	f := setup(t, nil)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "PUT", "/api/location", `{"latitude":91,"longitude":0}`, nil).StatusCode)
	assert.Equal(t, http.StatusNoContent, f.do(t, "PUT", "/api/location", `{"latitude":39.9,"longitude":116.4}`, nil).StatusCode)
	require.NotNil(t, f.portals.Snapshot().UserLocation)
	assert.Equal(t, http.StatusNoContent, f.do(t, "DELETE", "/api/location", "", nil).StatusCode)
	assert.Nil(t, f.portals.Snapshot().UserLocation)
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestRendererSocket(t *testing.T) {
	f := setup(t, nil)
	s := f.create(t, false)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(f.srv, "/bridge/"+s.ID+"/ws"), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"v":1,"kind":"error","gen":1,"payload":"INVALID_USER_KEY"}`)))
	assert.Eventually(t, func() bool {
		resp, err := http.Get(f.srv.URL + "/api/sessions/" + s.ID + "/state")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var u sessionResponse
		if json.NewDecoder(resp.Body).Decode(&u) != nil {
			return false
		}
		return u.State.Phase == bridge.PhaseErrored && u.State.LastError.Kind == bridge.FailureReported
	}, 2*time.Second, 20*time.Millisecond)
}

func TestEventsStream(t *testing.T) {
	f := setup(t, nil)
	s := f.create(t, false)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(f.srv, "/api/sessions/"+s.ID+"/events"), nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first bridge.Update
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, s.ID, first.Session)

	f.do(t, "POST", "/bridge/"+s.ID+"/message", `{"v":1,"kind":"success","gen":1}`, nil)
	var next bridge.Update
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, "message_success", next.Event)
	assert.Equal(t, bridge.PhaseLoaded, next.State.Phase)
}

func TestProviderLoaderProxy(t *testing.T) {
	var gotKey string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("content-type", "application/javascript")
		_, _ = w.Write([]byte("window.AMap = {};"))
	}))
	defer upstream.Close()

	f := setup(t, func(c *config.Config, d *Deps) {
		c.AMapWebKey = "web-key"
		cl := amap.NewClient(time.Second)
		cl.WebBase = upstream.URL
		d.AMap = cl
	})
	resp := f.do(t, "GET", "/provider/loader.js", "", map[string]string{"Origin": "null"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "window.AMap = {};", string(body))
	assert.Equal(t, "web-key", gotKey)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	f2 := setup(t, func(c *config.Config, d *Deps) { d.AMap = amap.NewClient(time.Second) })
	assert.Equal(t, http.StatusServiceUnavailable, f2.do(t, "GET", "/provider/loader.js", "", nil).StatusCode)

	f3 := setup(t, func(c *config.Config, d *Deps) { c.CredentialMode = "inline" })
	assert.Equal(t, http.StatusNotFound, f3.do(t, "GET", "/provider/loader.js", "", nil).StatusCode)
}

func TestProviderCheck(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"0","info":"INVALID_USER_KEY","infocode":"10001"}`))
	}))
	defer upstream.Close()
	f := setup(t, func(c *config.Config, d *Deps) {
		c.AMapServerKey = "bad"
		cl := amap.NewClient(time.Second)
		cl.RESTBase = upstream.URL
		d.AMap = cl
	})
	resp := f.do(t, "GET", "/api/provider/check", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[map[string]any](t, resp)
	assert.Equal(t, false, got["valid"])
	assert.Equal(t, "10001", got["infocode"])
}

func TestProviderStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"1","info":"OK","infocode":"10000"}`))
	}))
	defer upstream.Close()
	cl := amap.NewClient(time.Second)
	cl.RESTBase = upstream.URL
	mon := amap.NewMonitor(cl, "k", time.Hour)

	f := setup(t, func(_ *config.Config, d *Deps) { d.Monitor = mon })
	assert.Equal(t, http.StatusServiceUnavailable, f.do(t, "GET", "/api/provider/status", "", nil).StatusCode)

	mon.Check(context.Background())
	got := decode[amap.Health](t, f.do(t, "GET", "/api/provider/status", "", nil))
	assert.True(t, got.Healthy)
	health := decode[map[string]any](t, f.do(t, "GET", "/healthz", "", nil))
	assert.Equal(t, true, health["providerHealthy"])

	f2 := setup(t, nil)
	assert.Equal(t, http.StatusNotFound, f2.do(t, "GET", "/api/provider/status", "", nil).StatusCode)
}

func TestRendererMessageRateLimited(t *testing.T) {
	f := setup(t, func(c *config.Config, _ *Deps) { c.RateLimitQPS = 1 })
	s := f.create(t, false)
	codes := map[int]int{}
	for i := 0; i < 5; i++ {
		resp := f.do(t, "POST", "/bridge/"+s.ID+"/message", `{"v":1,"kind":"log","gen":1}`, nil)
		codes[resp.StatusCode]++
	}
	assert.Positive(t, codes[http.StatusTooManyRequests])
}

func TestJournalDisabled(t *testing.T) {
	f := setup(t, nil)
	s := f.create(t, false)
	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/sessions/"+s.ID+"/journal", "", nil).StatusCode)
}
