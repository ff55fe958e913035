package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/app"
	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
)

// sseHeartbeatInterval keeps idle event streams alive through proxies.
const sseHeartbeatInterval = 25 * time.Second

// MessageSender is the slice of the session manager the message handler
// drives.
type MessageSender interface {
	Send(ctx context.Context, instanceID, to, text string) (domain.MessageLogEntry, error)
	GetInstance(ctx context.Context, id string) (*domain.Instance, error)
}

// MessageHandler serves the message log (recent + SSE stream) and the
// send endpoints.
type MessageHandler struct {
	sender     MessageSender
	messageLog *app.MessageLog
	logger     *slog.Logger
	validate   *validator.Validate
}

func NewMessageHandler(sender MessageSender, messageLog *app.MessageLog, logger *slog.Logger, validate *validator.Validate) *MessageHandler {
	return &MessageHandler{
		sender:     sender,
		messageLog: messageLog,
		logger:     logger.With("handler", "message"),
		validate:   validate,
	}
}

// RegisterRoutes registers message routes with the given router.
func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/instances/{instanceID}/messages", h.handleRecentMessages)
	r.Get("/instances/{instanceID}/messages/stream", h.handleStreamMessages)
	r.Post("/messages/send", h.handleSendMessage)
	r.Post("/debug/instances/{instanceID}/messages", h.handleInjectMessage)
}

// RegisterQuerySendRoute registers the original-compatible query-parameter
// send endpoint. It must sit behind the same API-key middleware as the
// JSON routes; EventSource-style clients pass access_token as a query
// parameter.
func (h *MessageHandler) RegisterQuerySendRoute(r chi.Router) {
	r.Get("/send/text", h.handleSendTextQuery)
}

func (h *MessageHandler) handleRecentMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instanceID := chi.URLParam(r, "instanceID")

	if _, err := h.sender.GetInstance(ctx, instanceID); err != nil {
		respondWithError(w, mapDomainErrorToHTTPStatus(err), "Instance not found")
		return
	}
	respondWithJSON(w, http.StatusOK, h.messageLog.Recent(instanceID))
}

// handleStreamMessages streams the message log over SSE: the recent
// snapshot first (oldest to newest), then live entries as they are
// appended.
func (h *MessageHandler) handleStreamMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))
	instanceID := chi.URLParam(r, "instanceID")

	if _, err := h.sender.GetInstance(ctx, instanceID); err != nil {
		respondWithError(w, mapDomainErrorToHTTPStatus(err), "Instance not found")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.messageLog.Subscribe(instanceID)
	defer h.messageLog.Unsubscribe(instanceID, sub)
	logger.DebugContext(ctx, "Message stream opened", "instance_id", instanceID)

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ":heartbeat\n\n")
			flusher.Flush()
		case entry, open := <-sub.Entries():
			if !open {
				return
			}
			data, err := json.Marshal(entry)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to marshal log entry for stream", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (h *MessageHandler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	h.send(w, r, req.InstanceID, req.To, req.Message)
}

// handleSendTextQuery mirrors the original GET /send/text contract:
// instance_id, to and message arrive as query parameters.
func (h *MessageHandler) handleSendTextQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	instanceID := q.Get("instance_id")
	to := q.Get("to")
	message := q.Get("message")
	if instanceID == "" || to == "" || message == "" {
		respondWithError(w, http.StatusBadRequest, "instance_id, to and message query parameters are required")
		return
	}

	h.send(w, r, instanceID, to, message)
}

func (h *MessageHandler) send(w http.ResponseWriter, r *http.Request, instanceID, to, message string) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx), "instance_id", instanceID)

	entry, err := h.sender.Send(ctx, instanceID, to, message)
	if err != nil {
		logger.WarnContext(ctx, "Send failed", "error", err)
		respondWithError(w, mapDomainErrorToHTTPStatus(err), err.Error())
		return
	}

	logger.InfoContext(ctx, "Message sent", "message_id", entry.ID, "to", entry.To)
	respondWithJSON(w, http.StatusOK, SendMessageResponse{Success: true, MessageID: entry.ID, To: entry.To})
}

// handleInjectMessage appends a synthetic entry to the instance's message
// log; it exists to exercise the log and fan-out path end to end.
func (h *MessageHandler) handleInjectMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))
	instanceID := chi.URLParam(r, "instanceID")

	if _, err := h.sender.GetInstance(ctx, instanceID); err != nil {
		respondWithError(w, mapDomainErrorToHTTPStatus(err), "Instance not found")
		return
	}

	var req InjectMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return
	}

	entry := domain.NewMessageLogEntry(domain.MessageDirection(req.Direction), req.From, req.Content)
	h.messageLog.Append(ctx, instanceID, entry)

	logger.InfoContext(ctx, "Debug message injected", "instance_id", instanceID, "entry_id", entry.ID)
	respondWithJSON(w, http.StatusCreated, entry)
}
