package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
)

func TestBridgeTransport_StreamsEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/instances/inst-1/events":
			assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			fmt.Fprint(w, ":ping\n\n")
			fmt.Fprint(w, "data: {\"type\":\"pairing_challenge\",\"challenge\":\"qr-payload\"}\n\n")
			fmt.Fprint(w, "data: {\"type\":\"connected\",\"phone_number\":\"+15551234567\"}\n\n")
			flusher.Flush()
			// Keep the stream open until the client tears it down.
			<-r.Context().Done()
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	tr := NewBridgeTransport(discardLogger(), "inst-1", server.URL, nil)
	defer tr.Close()

	require.NoError(t, tr.Connect(context.Background()))

	ev := waitEvent(t, tr.Events())
	assert.Equal(t, EventConnecting, ev.Type)
	ev = waitEvent(t, tr.Events())
	assert.Equal(t, EventPairingChallenge, ev.Type)
	assert.Equal(t, "qr-payload", ev.Challenge)
	ev = waitEvent(t, tr.Events())
	assert.Equal(t, EventConnected, ev.Type)
	assert.Equal(t, "+15551234567", ev.PhoneNumber)
}

func TestBridgeTransport_StreamLossIsRecoverable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"connected\"}\n\n")
		// Returning ends the stream, simulating a daemon restart.
	}))
	defer server.Close()

	tr := NewBridgeTransport(discardLogger(), "inst-1", server.URL, nil)
	defer tr.Close()

	require.NoError(t, tr.Connect(context.Background()))

	waitEvent(t, tr.Events()) // connecting
	waitEvent(t, tr.Events()) // connected
	ev := waitEvent(t, tr.Events())
	assert.Equal(t, EventDisconnected, ev.Type)
	assert.True(t, ev.Recoverable)
}

func TestBridgeTransport_Send(t *testing.T) {
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/instances/inst-1/send":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.WriteHeader(http.StatusOK)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	tr := NewBridgeTransport(discardLogger(), "inst-1", server.URL, nil)
	defer tr.Close()

	require.NoError(t, tr.Send(context.Background(), "15551234567@s.whatsapp.net", "hello"))
	assert.Equal(t, "15551234567@s.whatsapp.net", gotBody["to"])
	assert.Equal(t, "hello", gotBody["text"])
}

func TestBridgeTransport_SendFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session not established", http.StatusConflict)
	}))
	defer server.Close()

	tr := NewBridgeTransport(discardLogger(), "inst-1", server.URL, nil)
	defer tr.Close()

	err := tr.Send(context.Background(), "15551234567", "hello")
	var transportErr *domain.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "HTTP_409", transportErr.Status)
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport event")
		return Event{}
	}
}
