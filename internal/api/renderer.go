package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/dbsahdlks/INgress/internal/amap"
	"github.com/dbsahdlks/INgress/internal/bridge"
	"github.com/dbsahdlks/INgress/internal/docstore"
	"github.com/dbsahdlks/INgress/internal/document"
	"github.com/dbsahdlks/INgress/internal/logger"
)

// handleDocument：按代号返回文档；缺省代号取当前周期
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	gen := sess.State().Generation
	if v := r.URL.Query().Get("gen"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid gen")
			return
		}
		gen = n
	}
	doc, err := s.d.Presenter.Document(r.Context(), sess.ID(), gen)
	if errors.Is(err, docstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	if err != nil {
		logger.L().Error("document_fetch_failed", "session", sess.ID(), "gen", gen, "err", err)
		writeError(w, http.StatusInternalServerError, "document unavailable")
		return
	}
	w.Header().Set("content-type", "text/html; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.Header().Set("x-bridge-generation", strconv.FormatUint(doc.Generation, 10))
	_, _ = io.WriteString(w, doc.HTML)
}

// handleRendererMessage：POST 回退通道，也用于原生外壳转发 postMessage 字符串
// 约束：无法识别的消息返回 202 并丢弃，不影响状态
func (s *Server) handleRendererMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	u, err := sess.Message(r.Context(), raw)
	if errors.Is(err, bridge.ErrUnrecognized) {
		writeJSON(w, http.StatusAccepted, map[string]any{"recognized": false})
		return
	}
	if err != nil {
		s.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"recognized": true, "state": u.State})
}

// handleRendererSocket：渲染端长连接，只读
func (s *Server) handleRendererSocket(w http.ResponseWriter, r *http.Request) {
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
	conn.SetReadLimit(maxBody)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.L().Debug("renderer_ws_read", "session", sess.ID(), "err", err)
			}
			return
		}
		if s.limiter != nil && !s.limiter.Allow() {
			continue
		}
		if _, err := sess.Message(r.Context(), msg); errors.Is(err, bridge.ErrClosed) {
			return
		}
	}
}

// handleLoader：代理模式下注入凭证并转发引导脚本
func (s *Server) handleLoader(w http.ResponseWriter, r *http.Request) {
	if document.CredentialMode(s.d.Config.CredentialMode) != document.CredentialProxy || s.d.AMap == nil {
		writeError(w, http.StatusNotFound, "provider proxy disabled")
		return
	}
	body, ct, err := s.d.AMap.FetchLoader(r.Context(), s.d.Config.AMapWebKey)
	if errors.Is(err, amap.ErrMissingKey) {
		writeError(w, http.StatusServiceUnavailable, "provider credential not configured")
		return
	}
	if err != nil {
		logger.L().Warn("provider_loader_failed", "err", err)
		writeError(w, http.StatusBadGateway, "provider unavailable")
		return
	}
	w.Header().Set("content-type", ct)
	w.Header().Set("cache-control", "no-store")
	_, _ = w.Write(body)
}

// handleProviderCheck：REST 探测凭证，区分凭证问题与桥接问题
func (s *Server) handleProviderCheck(w http.ResponseWriter, r *http.Request) {
	if s.d.AMap == nil {
		writeError(w, http.StatusNotFound, "provider client disabled")
		return
	}
	key := s.d.Config.AMapServerKey
	if key == "" {
		key = s.d.Config.AMapWebKey
	}
	st, err := s.d.AMap.CheckKey(r.Context(), key)
	if errors.Is(err, amap.ErrMissingKey) {
		writeError(w, http.StatusServiceUnavailable, "provider credential not configured")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "provider unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":    st.Valid(),
		"status":   st.Status,
		"info":     st.Info,
		"infocode": st.Infocode,
	})
}

// handleProviderStatus：最近一次凭证心跳结果
func (s *Server) handleProviderStatus(w http.ResponseWriter, _ *http.Request) {
	if s.d.Monitor == nil {
		writeError(w, http.StatusNotFound, "provider monitor disabled")
		return
	}
	h, ok := s.d.Monitor.Last()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "provider not checked yet")
		return
	}
	writeJSON(w, http.StatusOK, h)
}
