package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/app"
	"github.com/haasonsaas/agentkit/internal/apperr"
	"github.com/haasonsaas/agentkit/internal/session"
	"github.com/haasonsaas/agentkit/pkg/models"
)

func registerSessionRoutes(mux *http.ServeMux, a *app.App, logger *slog.Logger) {
	h := &sessionHandlers{app: a, logger: logger}
	mux.HandleFunc("POST /v1/sessions", h.create)
	mux.HandleFunc("GET /v1/sessions/{id}", h.get)
	mux.HandleFunc("POST /v1/sessions/{id}/query", h.query)
	mux.HandleFunc("POST /v1/sessions/{id}/interrupt", h.interrupt)
	mux.HandleFunc("POST /v1/sessions/{id}/pause", h.pause)
	mux.HandleFunc("POST /v1/sessions/{id}/resume", h.resume)
	mux.HandleFunc("POST /v1/sessions/{id}/fork", h.fork)
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.terminate)
	mux.HandleFunc("GET /v1/sessions/{id}/messages", h.messages)
	mux.HandleFunc("GET /v1/sessions/{id}/stream", h.stream)
}

type sessionHandlers struct {
	app    *app.App
	logger *slog.Logger
}

type createSessionRequest struct {
	UserID         uuid.UUID             `json:"user_id"`
	SDKOptions     map[string]any        `json:"sdk_options"`
	AllowedTools   []string              `json:"allowed_tools"`
	PermissionMode models.PermissionMode `json:"permission_mode"`
	HooksEnabled   []models.HookKind     `json:"hooks_enabled"`
	MaxRetries     int                   `json:"max_retries"`
	RetryDelayMs   int                   `json:"retry_delay_ms"`
	TimeoutMs      int                   `json:"timeout_ms"`
	IncludePartial bool                  `json:"include_partial_messages"`
}

func (h *sessionHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.KindInvalidInput, "transport.create", err))
		return
	}

	workdirPath, err := h.app.Workdir.Create(r.Context(), uuid.New())
	if err != nil {
		writeError(w, err)
		return
	}

	sess, err := h.app.Sessions.Create(r.Context(), req.UserID, session.CreateOptions{
		Mode:           models.ModeInteractive,
		WorkdirPath:    workdirPath,
		SDKOptions:     req.SDKOptions,
		AllowedTools:   req.AllowedTools,
		PermissionMode: req.PermissionMode,
		HooksEnabled:   req.HooksEnabled,
		MaxRetries:     req.MaxRetries,
		RetryDelayMs:   req.RetryDelayMs,
		TimeoutMs:      req.TimeoutMs,
		IncludePartial: req.IncludePartial,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.app.Sessions.Connect(r.Context(), sess.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *sessionHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := h.app.Store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type queryRequest struct {
	Prompt string `json:"prompt"`
}

func (h *sessionHandlers) query(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.KindInvalidInput, "transport.query", err))
		return
	}
	sess, err := h.app.Store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.app.RunTurn(r.Context(), sess, req.Prompt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": result})
}

func (h *sessionHandlers) interrupt(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.Interrupt(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *sessionHandlers) pause(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := h.app.Sessions.Pause(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *sessionHandlers) resume(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := h.app.Sessions.Resume(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

type forkRequest struct {
	WorkdirPath   string `json:"workdir_path"`
	Name          string `json:"name"`
	ForkAtMessage int64  `json:"fork_at_message"`
}

func (h *sessionHandlers) fork(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req forkRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	workdirPath := req.WorkdirPath
	if workdirPath == "" {
		parent, err := h.app.Store.GetSession(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		workdirPath, err = h.app.Workdir.Clone(r.Context(), parent.WorkdirPath, uuid.New())
		if err != nil {
			writeError(w, err)
			return
		}
	}
	forked, err := h.app.Sessions.Fork(r.Context(), id, workdirPath, req.Name, req.ForkAtMessage)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, forked)
}

func (h *sessionHandlers) terminate(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := h.app.Terminate(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *sessionHandlers) messages(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	afterSeq := queryInt64(r, "after_seq", 0)
	limit := int(queryInt64(r, "limit", 100))
	msgs, err := h.app.Store.MessagesBySession(r.Context(), id, afterSeq, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *sessionHandlers) stream(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	serveStream(w, r, h.app, id, h.logger)
}
