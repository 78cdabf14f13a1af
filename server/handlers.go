package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/verseforge/songdub/gateway"
	"github.com/verseforge/songdub/logger"
	"github.com/verseforge/songdub/media"
	"github.com/verseforge/songdub/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same-origin browser app; the session holds no cross-user data.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.orc.Snapshot())
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.uploads != nil && !s.uploads.Allow() {
		writeError(w, http.StatusTooManyRequests, errors.New("upload rate limit exceeded"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartOverheadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, session.ErrInputTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing file field: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	if err := s.orc.SelectFile(header.Filename, mimeType, data); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orc.Snapshot())
}

func (s *Server) handleLanguage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetLanguage string `json:"targetLanguage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.orc.SelectTargetLanguage(req.TargetLanguage); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.orc.Snapshot())
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	s.runTrigger(w, func() error { return s.orc.StartAnalysis(r.Context()) })
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	s.runTrigger(w, func() error { return s.orc.StartTranslation(r.Context()) })
}

func (s *Server) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	s.runTrigger(w, func() error { return s.orc.StartSynthesis(r.Context()) })
}

// runTrigger executes one workflow trigger and replies with the resulting
// snapshot. Gateway failures still return the snapshot so the client sees
// the recorded error and the reverted state.
func (s *Server) runTrigger(w http.ResponseWriter, trigger func() error) {
	if err := trigger(); err != nil {
		if errors.Is(err, session.ErrBusy) || errors.Is(err, session.ErrInvalidTransition) || errors.Is(err, session.ErrNoFile) {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, statusForGatewayError(err), s.orc.Snapshot())
		return
	}
	writeJSON(w, http.StatusOK, s.orc.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.orc.Reset()
	writeJSON(w, http.StatusOK, s.orc.Snapshot())
}

func (s *Server) handleDownload(w http.ResponseWriter, _ *http.Request) {
	handle, filename, ok := s.orc.Dubbed()
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("no dubbed track available"))
		return
	}
	data, mimeType, err := s.store.Get(handle.ID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(data)
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	data, mimeType, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, media.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	_, _ = w.Write(data)
}

// handleEvents upgrades to a WebSocket and pushes state transitions until
// the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := s.orc.Subscribe()
	defer cancel()

	// Reads are discarded; their failure signals disconnect.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snap := s.orc.Snapshot()
	if err := conn.WriteJSON(session.Event{State: snap.State, Busy: snap.Busy, Error: snap.LastError}); err != nil {
		return
	}

	for {
		select {
		case ev := <-events:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-disconnected:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// writeSessionError maps orchestrator errors onto HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInputTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err)
	case errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, session.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, session.ErrNoFile):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

// statusForGatewayError maps AI service failures onto HTTP statuses. The
// body is always the session snapshot, which carries the recorded error.
func statusForGatewayError(err error) int {
	var svcErr *gateway.ServiceError
	switch {
	case errors.Is(err, gateway.ErrMissingCredential):
		return http.StatusInternalServerError
	case errors.As(err, &svcErr):
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}
