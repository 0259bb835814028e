package bridge

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dbsahdlks/INgress/internal/logger"
	"github.com/dbsahdlks/INgress/internal/metrics"
)

var ErrClosed = errors.New("bridge: session closed")

// Presenter：为新周期生成并发布文档（渲染端随后按代号拉取）
// 约束：返回错误时会话按传输失败处理当前周期。
type Presenter interface {
	Present(ctx context.Context, sessionID string, c Cycle) error
}

// Recorder：加载周期日志（可选）
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Entry：一次已生效的状态转换
type Entry struct {
	Session    string
	Generation uint64
	Event      string
	Phase      Phase
	Diagnostic bool
	Failure    *Failure
	At         time.Time
}

// Update：推送给订阅方的状态快照
type Update struct {
	Session string `json:"session"`
	Event   string `json:"event"`
	State   State  `json:"state"`
	Status  Status `json:"status"`
}

// Options：会话参数
type Options struct {
	// Timeout：宿主侧加载时限；<=0 表示只依赖文档内计时器
	Timeout   time.Duration
	Presenter Presenter
	Recorder  Recorder
	// QueueSize：事件队列长度，默认 32
	QueueSize int
}

type event struct {
	name   string
	gen    uint64
	hasGen bool
	apply  func(m *Machine) (bool, *Cycle)
	reply  chan Update
}

// 文档注释：桥接会话
// 背景：一个 goroutine 串行消费事件（原生回调、渲染端消息、计时器、运维切换），每个处理函数完整执行后才处理下一个。
// 约束：Machine 只在事件循环内访问；读路径通过 atomic.Value 获取最近一次快照，不进入循环。
type Session struct {
	id     string
	opts   Options
	m      *Machine
	events chan event
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
	ctx    context.Context
	cancel context.CancelFunc

	cur   atomic.Value // Update
	timer *time.Timer

	subMu sync.Mutex
	subs  map[int]chan Update
	next  int
}

// NewSession：启动事件循环；初始状态为 Loading、代号 0，需调用 Start 开始首个周期
func NewSession(id string, opts Options) *Session {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 32
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     id,
		opts:   opts,
		m:      NewMachine(),
		events: make(chan event, opts.QueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[int]chan Update),
	}
	st := s.m.State()
	s.cur.Store(Update{Session: id, Event: "init", State: st, Status: Describe(st)})
	metrics.SessionsActive.Inc()
	go s.run()
	return s
}

func (s *Session) ID() string { return s.id }

// Current：最近一次状态快照（无锁）
func (s *Session) Current() Update { return s.cur.Load().(Update) }

func (s *Session) State() State { return s.Current().State }

// Start：以显式模式开始新周期
func (s *Session) Start(ctx context.Context, diagnostic bool) (Update, error) {
	return s.do(ctx, event{name: "start", apply: func(m *Machine) (bool, *Cycle) {
		c := m.Start(diagnostic)
		return true, &c
	}})
}

// Reload：以当前模式重新开始
func (s *Session) Reload(ctx context.Context) (Update, error) {
	return s.do(ctx, event{name: "reload", apply: func(m *Machine) (bool, *Cycle) {
		c := m.Start(m.state.DiagnosticMode)
		return true, &c
	}})
}

// Toggle：运维切换诊断模式
func (s *Session) Toggle(ctx context.Context) (Update, error) {
	return s.do(ctx, event{name: "toggle", apply: func(m *Machine) (bool, *Cycle) {
		c := m.ToggleDiagnosticMode()
		return true, &c
	}})
}

func (s *Session) LoadEnd(ctx context.Context, gen uint64) (Update, error) {
	return s.do(ctx, event{name: "load_end", gen: gen, hasGen: true, apply: func(m *Machine) (bool, *Cycle) {
		return m.OnLoadEnd(gen), nil
	}})
}

func (s *Session) TransportFailure(ctx context.Context, gen uint64, detail string) (Update, error) {
	return s.do(ctx, event{name: "load_error", gen: gen, hasGen: true, apply: func(m *Machine) (bool, *Cycle) {
		return m.OnTransportFailure(gen, detail), nil
	}})
}

func (s *Session) HTTPFailure(ctx context.Context, gen uint64, status int) (Update, error) {
	return s.do(ctx, event{name: "http_error", gen: gen, hasGen: true, apply: func(m *Machine) (bool, *Cycle) {
		return m.OnHTTPFailure(gen, status), nil
	}})
}

// Message：解析渲染端原始消息并投递
// 约束：无法识别的消息计数并记录后丢弃，返回 ErrUnrecognized；会话字段与本会话不符视为过期消息。
func (s *Session) Message(ctx context.Context, raw []byte) (Update, error) {
	e, err := Decode(raw)
	if err != nil {
		metrics.UnrecognizedMessagesTotal.Inc()
		logger.L().Debug("bridge_message_unrecognized", "session", s.id, "len", len(raw), "err", err)
		return s.Current(), err
	}
	if e.Kind == KindLog {
		logger.L().Info("renderer_log", "session", s.id, "gen", e.Gen, "payload", e.Payload)
	}
	if e.Session != "" && e.Session != s.id {
		metrics.StaleEventsTotal.Inc()
		return s.Current(), nil
	}
	return s.do(ctx, event{name: "message_" + string(e.Kind), gen: e.Gen, hasGen: true, apply: func(m *Machine) (bool, *Cycle) {
		return m.OnMessage(e.Gen, e), nil
	}})
}

// Subscribe：订阅状态更新；慢订阅方直接丢弃更新。返回的函数用于退订。
func (s *Session) Subscribe(buf int) (<-chan Update, func()) {
	if buf <= 0 {
		buf = 8
	}
	ch := make(chan Update, buf)
	s.subMu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.subMu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
			s.subMu.Unlock()
		})
	}
}

// Close：停止事件循环并关闭所有订阅
func (s *Session) Close(ctx context.Context) error {
	s.once.Do(func() {
		close(s.quit)
		metrics.SessionsActive.Dec()
	})
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done：事件循环退出后关闭
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) do(ctx context.Context, ev event) (Update, error) {
	ev.reply = make(chan Update, 1)
	select {
	case s.events <- ev:
	case <-s.quit:
		return s.Current(), ErrClosed
	case <-ctx.Done():
		return s.Current(), ctx.Err()
	}
	select {
	case u := <-ev.reply:
		return u, nil
	case <-s.done:
		return s.Current(), ErrClosed
	case <-ctx.Done():
		return s.Current(), ctx.Err()
	}
}

func (s *Session) run() {
	defer func() {
		if s.timer != nil {
			s.timer.Stop()
		}
		s.cancel()
		s.subMu.Lock()
		for id, c := range s.subs {
			delete(s.subs, id)
			close(c)
		}
		s.subMu.Unlock()
		close(s.done)
	}()
	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.events:
			ev.reply <- s.handle(ev)
		}
	}
}

func (s *Session) handle(ev event) Update {
	if ev.hasGen && ev.gen != s.m.state.Generation {
		metrics.StaleEventsTotal.Inc()
		metrics.BridgeEventsTotal.WithLabelValues(ev.name, "false").Inc()
		logger.L().Debug("bridge_event_stale", "session", s.id, "event", ev.name, "gen", ev.gen, "current", s.m.state.Generation)
		return s.Current()
	}
	applied, cycle := ev.apply(s.m)
	if cycle != nil {
		s.arm(cycle.Generation)
		logger.L().Info("session_start", "session", s.id, "gen", cycle.Generation, "diagnostic", cycle.Diagnostic, "event", ev.name)
		if s.opts.Presenter != nil {
			if err := s.opts.Presenter.Present(s.ctx, s.id, *cycle); err != nil {
				s.m.OnTransportFailure(cycle.Generation, err.Error())
				logger.L().Warn("session_present_failed", "session", s.id, "gen", cycle.Generation, "err", err)
			}
		}
	}
	metrics.BridgeEventsTotal.WithLabelValues(ev.name, strconv.FormatBool(applied)).Inc()
	if !applied {
		return s.Current()
	}
	st := s.m.State()
	metrics.BridgePhaseTotal.WithLabelValues(st.Phase.String()).Inc()
	if st.Phase == PhaseErrored && st.LastError != nil {
		metrics.BridgeFailuresTotal.WithLabelValues(st.LastError.Kind.String()).Inc()
		logger.L().Warn("bridge_failure", "session", s.id, "gen", st.Generation, "kind", st.LastError.Kind.String(), "status", st.LastError.StatusCode)
	}
	u := Update{Session: s.id, Event: ev.name, State: st, Status: Describe(st)}
	s.cur.Store(u)
	s.publish(u)
	s.record(ev.name, st)
	return u
}

// arm：为新周期设置宿主侧计时器；旧计时器停止，即便已触发，其事件也会因代号不符被丢弃
func (s *Session) arm(gen uint64) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.opts.Timeout <= 0 {
		return
	}
	s.timer = time.AfterFunc(s.opts.Timeout, func() {
		_, _ = s.do(s.ctx, event{name: "timeout", gen: gen, hasGen: true, apply: func(m *Machine) (bool, *Cycle) {
			return m.OnTimeout(gen), nil
		}})
	})
}

func (s *Session) publish(u Update) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, c := range s.subs {
		select {
		case c <- u:
		default:
		}
	}
}

func (s *Session) record(name string, st State) {
	if s.opts.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	e := Entry{Session: s.id, Generation: st.Generation, Event: name, Phase: st.Phase, Diagnostic: st.DiagnosticMode, Failure: st.LastError, At: time.Now()}
	if err := s.opts.Recorder.Record(ctx, e); err != nil {
		logger.L().Warn("journal_record_failed", "session", s.id, "gen", st.Generation, "err", err)
	}
}
