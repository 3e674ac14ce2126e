package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/internal/app"
	"github.com/haasonsaas/agentkit/internal/apperr"
	"github.com/haasonsaas/agentkit/internal/cron"
	"github.com/haasonsaas/agentkit/pkg/models"
)

func registerTaskRoutes(mux *http.ServeMux, a *app.App, logger *slog.Logger) {
	h := &taskHandlers{app: a, logger: logger}
	mux.HandleFunc("POST /v1/tasks", h.create)
	mux.HandleFunc("GET /v1/tasks/{id}", h.get)
	mux.HandleFunc("DELETE /v1/tasks/{id}", h.delete)
	mux.HandleFunc("POST /v1/tasks/{id}/run", h.run)
}

type taskHandlers struct {
	app    *app.App
	logger *slog.Logger
}

type createTaskRequest struct {
	UserID         uuid.UUID           `json:"user_id"`
	Name           string              `json:"name"`
	PromptTemplate string              `json:"prompt_template"`
	AllowedTools   []string            `json:"allowed_tools"`
	ScheduleCron   string              `json:"schedule_cron"`
	GenerateReport bool                `json:"generate_report"`
	ReportFormat   models.ReportFormat `json:"report_format"`
	Tags           []string            `json:"tags"`
}

func (h *taskHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.KindInvalidInput, "transport.tasks.create", err))
		return
	}
	if req.Name == "" || req.PromptTemplate == "" {
		writeError(w, apperr.Newf(apperr.KindInvalidInput, "transport.tasks.create", "name and prompt_template are required"))
		return
	}

	task := &models.Task{
		ID:             uuid.New(),
		UserID:         req.UserID,
		Name:           req.Name,
		PromptTemplate: req.PromptTemplate,
		AllowedTools:   req.AllowedTools,
		GenerateReport: req.GenerateReport,
		ReportFormat:   req.ReportFormat,
		Tags:           req.Tags,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	if req.ScheduleCron != "" {
		sched, err := cron.NewSchedule(req.ScheduleCron)
		if err != nil {
			writeError(w, apperr.New(apperr.KindInvalidInput, "transport.tasks.create", err))
			return
		}
		cronExpr := sched.String()
		task.ScheduleCron = &cronExpr
		task.ScheduleEnabled = true
		next := sched.Next(time.Now())
		task.NextFireAt = &next
	}

	if err := h.app.Store.CreateTask(r.Context(), task); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (h *taskHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	task, err := h.app.Store.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *taskHandlers) delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.Store.DeleteTask(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type runTaskRequest struct {
	Variables map[string]string `json:"variables"`
}

func (h *taskHandlers) run(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req runTaskRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	task, err := h.app.Store.GetTask(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	exec, err := h.app.Scheduler.RunManual(r.Context(), task, req.Variables)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}
