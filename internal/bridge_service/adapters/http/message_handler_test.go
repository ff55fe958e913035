package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/app"
	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
)

func newMessageRouter(orch *stubOrchestrator, messageLog *app.MessageLog) chi.Router {
	handler := NewMessageHandler(orch, messageLog, discardLogger(), validator.New())
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	handler.RegisterQuerySendRoute(r)
	return r
}

func TestMessageHandler_RecentMessages(t *testing.T) {
	orch := newStubOrchestrator()
	orch.instances["inst-1"] = &domain.Instance{ID: "inst-1"}
	messageLog := app.NewMessageLog(discardLogger(), nil)
	messageLog.Append(context.Background(), "inst-1", domain.NewMessageLogEntry(domain.DirectionReceived, "15551234567", "hey"))
	r := newMessageRouter(orch, messageLog)

	req := httptest.NewRequest(http.MethodGet, "/instances/inst-1/messages", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var entries []domain.MessageLogEntry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "hey", entries[0].Content)
}

func TestMessageHandler_RecentMessagesUnknownInstance(t *testing.T) {
	r := newMessageRouter(newStubOrchestrator(), app.NewMessageLog(discardLogger(), nil))

	req := httptest.NewRequest(http.MethodGet, "/instances/nope/messages", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessageHandler_SendJSON(t *testing.T) {
	orch := newStubOrchestrator()
	orch.sendEntry = domain.MessageLogEntry{ID: "m1", Direction: domain.DirectionSent, To: "+15551234567"}
	r := newMessageRouter(orch, app.NewMessageLog(discardLogger(), nil))

	body := `{"instance_id":"inst-1","to":"15551234567","message":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/messages/send", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SendMessageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "m1", resp.MessageID)
	assert.Equal(t, "inst-1", orch.sentInst)
	assert.Equal(t, "hello", orch.sentText)
}

func TestMessageHandler_SendValidation(t *testing.T) {
	r := newMessageRouter(newStubOrchestrator(), app.NewMessageLog(discardLogger(), nil))

	body := `{"instance_id":"inst-1"}`
	req := httptest.NewRequest(http.MethodPost, "/messages/send", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessageHandler_SendNotReady(t *testing.T) {
	orch := newStubOrchestrator()
	orch.sendErr = domain.ErrNotReady
	r := newMessageRouter(orch, app.NewMessageLog(discardLogger(), nil))

	body := `{"instance_id":"inst-1","to":"15551234567","message":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/messages/send", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMessageHandler_SendTextQuery(t *testing.T) {
	orch := newStubOrchestrator()
	orch.sendEntry = domain.MessageLogEntry{ID: "m2", Direction: domain.DirectionSent, To: "+15551234567"}
	r := newMessageRouter(orch, app.NewMessageLog(discardLogger(), nil))

	req := httptest.NewRequest(http.MethodGet, "/send/text?instance_id=inst-1&to=15551234567&message=ping", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ping", orch.sentText)

	req = httptest.NewRequest(http.MethodGet, "/send/text?instance_id=inst-1", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessageHandler_InjectMessage(t *testing.T) {
	orch := newStubOrchestrator()
	orch.instances["inst-1"] = &domain.Instance{ID: "inst-1"}
	messageLog := app.NewMessageLog(discardLogger(), nil)
	r := newMessageRouter(orch, messageLog)

	body := `{"direction":"received","from":"15551234567@s.whatsapp.net","content":"synthetic"}`
	req := httptest.NewRequest(http.MethodPost, "/debug/instances/inst-1/messages", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	recent := messageLog.Recent("inst-1")
	require.Len(t, recent, 1)
	assert.Equal(t, "synthetic", recent[0].Content)
	assert.Equal(t, "+15551234567", recent[0].To)
}

func TestMessageHandler_StreamDeliversSnapshotThenLive(t *testing.T) {
	orch := newStubOrchestrator()
	orch.instances["inst-1"] = &domain.Instance{ID: "inst-1"}
	messageLog := app.NewMessageLog(discardLogger(), nil)
	messageLog.Append(context.Background(), "inst-1", domain.NewMessageLogEntry(domain.DirectionReceived, "a", "snapshot-entry"))
	r := newMessageRouter(orch, messageLog)

	server := httptest.NewServer(r)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/instances/inst-1/messages/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	first := readSSEData(t, reader)
	assert.Contains(t, first, "snapshot-entry")

	messageLog.Append(context.Background(), "inst-1", domain.NewMessageLogEntry(domain.DirectionSent, "b", "live-entry"))
	second := readSSEData(t, reader)
	assert.Contains(t, second, "live-entry")
}

func readSSEData(t *testing.T, reader *bufio.Reader) string {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, "data: ") {
			return strings.TrimPrefix(line, "data: ")
		}
	}
}
