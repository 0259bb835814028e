package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/dbsahdlks/INgress/internal/bridge"
	"github.com/dbsahdlks/INgress/internal/geo"
	"github.com/dbsahdlks/INgress/internal/logger"
)

const maxBody = 64 << 10

type createRequest struct {
	Diagnostic bool `json:"diagnostic"`
}

type sessionResponse struct {
	ID          string `json:"id"`
	DocumentURL string `json:"documentUrl"`
	bridge.Update
}

func (s *Server) documentURL(id string, gen uint64) string {
	return s.d.Presenter.BridgeBase(id) + "/document?gen=" + strconv.FormatUint(gen, 10)
}

func (s *Server) respondUpdate(w http.ResponseWriter, status int, u bridge.Update) {
	writeJSON(w, status, sessionResponse{ID: u.Session, DocumentURL: s.documentURL(u.Session, u.State.Generation), Update: u})
}

// session：按路径参数取会话；失败时已写出响应
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*bridge.Session, bool) {
	sess, err := s.d.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

func (s *Server) sessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, bridge.ErrClosed):
		writeError(w, http.StatusGone, "session closed")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
	}
	center := geo.CenterFor(s.d.Locator, r)
	_, u, err := s.d.Sessions.Create(r.Context(), req.Diagnostic, func(id string) {
		s.d.Presenter.SetCenter(id, center)
	})
	if errors.Is(err, bridge.ErrTooManySessions) {
		writeError(w, http.StatusServiceUnavailable, "too many sessions")
		return
	}
	if err != nil {
		s.sessionError(w, err)
		return
	}
	s.respondUpdate(w, http.StatusCreated, u)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.respondUpdate(w, http.StatusOK, sess.Current())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.d.Sessions.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, bridge.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.sessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	u, err := sess.Toggle(r.Context())
	if err != nil {
		s.sessionError(w, err)
		return
	}
	logger.L().Info("diagnostic_toggled", "session", sess.ID(), "diagnostic", u.State.DiagnosticMode, "gen", u.State.Generation)
	s.respondUpdate(w, http.StatusOK, u)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	u, err := sess.Reload(r.Context())
	if err != nil {
		s.sessionError(w, err)
		return
	}
	s.respondUpdate(w, http.StatusOK, u)
}

// nativeEvent：原生外壳转发的 WebView 回调
type nativeEvent struct {
	Kind   string `json:"kind"`
	Gen    uint64 `json:"gen"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
}

func (s *Server) handleNative(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var ev nativeEvent
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	var (
		u   bridge.Update
		err error
	)
	switch ev.Kind {
	case "load_end":
		u, err = sess.LoadEnd(r.Context(), ev.Gen)
	case "load_error":
		u, err = sess.TransportFailure(r.Context(), ev.Gen, ev.Detail)
	case "http_error":
		if ev.Status < 100 || ev.Status > 599 {
			writeError(w, http.StatusBadRequest, "status out of range")
			return
		}
		u, err = sess.HTTPFailure(r.Context(), ev.Gen, ev.Status)
	default:
		writeError(w, http.StatusBadRequest, "unknown kind")
		return
	}
	if err != nil {
		s.sessionError(w, err)
		return
	}
	s.respondUpdate(w, http.StatusOK, u)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.d.Journal == nil {
		writeError(w, http.StatusNotFound, "journal disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	rs, err := s.d.Journal.Recent(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		logger.L().Error("journal_query_failed", "err", err)
		writeError(w, http.StatusInternalServerError, "journal unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": rs})
}

// 文档注释：状态推送（宿主界面）
// 背景：连接建立后先发送当前状态，此后每次生效的转换推送一次；慢连接会丢失中间状态，但总能收到最新状态之后的更新。
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.L().Debug("ws_upgrade_failed", "err", err)
		return
	}
	defer conn.Close()

	updates, cancel := sess.Subscribe(16)
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(sess.Current()); err != nil {
		return
	}
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if err := conn.WriteJSON(u); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}
