// Package api exposes the pipeline over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/engine"
	"github.com/Veraticus/parcel/internal/executor"
	"github.com/Veraticus/parcel/internal/model"
	"github.com/Veraticus/parcel/internal/service"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Pipeline is the part of engine.Pipeline the transports use.
type Pipeline interface {
	Submit(ctx context.Context, in model.RawInput) (engine.ExtractionOutcome, error)
	Decide(ctx context.Context, req engine.ConfirmationRequest) (engine.ExecutionOutcome, error)
	Get(ctx context.Context, id string) (model.PendingOperation, error)
}

// Deps holds the handler's collaborators. Audit, Events and Metrics are
// optional.
type Deps struct {
	Pipeline Pipeline
	Audit    service.AuditLog
	Events   http.Handler
	Metrics  http.Handler
	Logger   *slog.Logger
}

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	h := &handler{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/submit", h.submit)
		r.Post("/decide", h.decide)
		r.Get("/operations", h.listOperations)
		r.Get("/operations/{id}", h.getOperation)
	})
	if deps.Events != nil {
		r.Handle("/events", deps.Events)
	}
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}
	return r
}

type handler struct {
	deps Deps
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		httpError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	source := model.SourceChat
	if strings.EqualFold(req.Source, string(model.SourceEmail)) {
		source = model.SourceEmail
	}
	out, err := h.deps.Pipeline.Submit(r.Context(), model.RawInput{
		Text:       req.Text,
		Source:     source,
		SessionID:  req.SessionID,
		ReceivedAt: time.Now(),
	})
	if err != nil {
		h.deps.Logger.Info("submission refused", "session_id", req.SessionID, "error", err)
		httpError(w, statusFor(err), userMessage(err))
		return
	}

	status := http.StatusOK
	if out.IsProposal() {
		status = http.StatusCreated
	}
	writeJSON(w, status, submitResponse(out))
}

func (h *handler) decide(w http.ResponseWriter, r *http.Request) {
	var req DecideRequest
	if !decode(w, r, &req) {
		return
	}
	if req.OperationID == "" {
		httpError(w, http.StatusBadRequest, "operationId is required")
		return
	}
	confirmation, err := req.toConfirmation()
	if err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := h.deps.Pipeline.Decide(r.Context(), confirmation)
	resp := decideResponse(req.OperationID, out)
	if err != nil {
		h.deps.Logger.Info("decision did not complete", "operation_id", req.OperationID, "error", err)
		if resp.Message == "" {
			resp.Message = userMessage(err)
		}
		writeJSON(w, statusFor(err), resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	op, err := h.deps.Pipeline.Get(r.Context(), id)
	if errors.Is(err, common.ErrNotFound) && h.deps.Audit != nil {
		var archived *model.PendingOperation
		archived, err = h.deps.Audit.GetArchivedOperation(r.Context(), id)
		if err == nil {
			op = *archived
		}
	}
	if err != nil {
		httpError(w, statusFor(err), userMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, operationPayload(op))
}

func (h *handler) listOperations(w http.ResponseWriter, r *http.Request) {
	if h.deps.Audit == nil {
		httpError(w, http.StatusNotImplemented, "operation history is not configured")
		return
	}

	q := r.URL.Query()
	filter := service.OperationFilter{
		SessionID: q.Get("session"),
		Status:    model.Status(q.Get("status")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httpError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			httpError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = &since
	}

	ops, err := h.deps.Audit.ListArchivedOperations(r.Context(), filter)
	if err != nil {
		h.deps.Logger.Error("failed to list operations", "error", err)
		httpError(w, http.StatusInternalServerError, "failed to list operations")
		return
	}
	out := make([]OperationPayload, len(ops))
	for i, op := range ops {
		out[i] = operationPayload(op)
	}
	writeJSON(w, http.StatusOK, out)
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var (
		cf       *common.ConfirmationFailure
		vf       *common.ValidationFailure
		conflict *common.ConflictFailure
		ue       *common.UserError
		ef       *common.ExecutionFailure
	)
	switch {
	case errors.Is(err, common.ErrSessionBusy):
		return http.StatusTooManyRequests
	case errors.As(err, &cf):
		if cf.Reason == common.ReasonNotFound {
			return http.StatusNotFound
		}
		return http.StatusConflict
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &vf):
		return http.StatusUnprocessableEntity
	case errors.As(err, &ue):
		return http.StatusBadRequest
	case errors.As(err, &ef):
		return http.StatusBadGateway
	case errors.Is(err, common.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func userMessage(err error) string {
	var ue *common.UserError
	if errors.As(err, &ue) {
		return ue.UserMessage
	}
	return err.Error()
}

func parseResolution(s string) (executor.Resolution, error) {
	res, err := executor.ParseResolution(s)
	if err != nil {
		return "", fmt.Errorf("resolution must be merge, skip or replace: %w", err)
	}
	return res, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"status":  code,
		},
	})
}
