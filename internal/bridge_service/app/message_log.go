package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/bridge_service/domain"
	"github.com/KaranSingla11/whatsapp-bridge-pro/internal/platform/messagebroker"
)

// MessageLogCapacity is the per-instance bound of the in-memory log.
const MessageLogCapacity = 50

// subscriberBufferSize is the slack a live subscriber gets before it is
// considered too slow and dropped.
const subscriberBufferSize = 64

// Subscriber is one live consumer of an instance's message log. The
// channel is closed when the subscriber is dropped (unsubscribe, instance
// deletion, or falling too far behind).
type Subscriber struct {
	ch        chan domain.MessageLogEntry
	closeOnce sync.Once
}

// Entries delivers the recent-snapshot (oldest first) followed by live
// entries in append order.
func (s *Subscriber) Entries() <-chan domain.MessageLogEntry { return s.ch }

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.ch) })
}

type instanceBuffer struct {
	mu      sync.Mutex
	entries []domain.MessageLogEntry // newest first
	subs    map[*Subscriber]struct{}
}

// MessageLog keeps a bounded per-instance message history and fans every
// appended entry out to the instance's live subscribers. Buffers are
// locked per instance; appends for different instances never contend.
type MessageLog struct {
	logger *slog.Logger
	nats   *messagebroker.NatsClient // optional, nil disables publishing

	mu      sync.RWMutex
	buffers map[string]*instanceBuffer
}

func NewMessageLog(logger *slog.Logger, nats *messagebroker.NatsClient) *MessageLog {
	return &MessageLog{
		logger:  logger.With("component", "message_log"),
		nats:    nats,
		buffers: make(map[string]*instanceBuffer),
	}
}

func (l *MessageLog) buffer(instanceID string) *instanceBuffer {
	l.mu.RLock()
	buf, ok := l.buffers[instanceID]
	l.mu.RUnlock()
	if ok {
		return buf
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if buf, ok = l.buffers[instanceID]; ok {
		return buf
	}
	buf = &instanceBuffer{subs: make(map[*Subscriber]struct{})}
	l.buffers[instanceID] = buf
	return buf
}

// Append records the entry at the head of the instance's buffer, evicting
// the oldest entry beyond capacity, and delivers it to every live
// subscriber in the same logical step. A subscriber whose channel is full
// is dropped rather than allowed to stall delivery.
func (l *MessageLog) Append(ctx context.Context, instanceID string, entry domain.MessageLogEntry) {
	buf := l.buffer(instanceID)

	buf.mu.Lock()
	buf.entries = append([]domain.MessageLogEntry{entry}, buf.entries...)
	if len(buf.entries) > MessageLogCapacity {
		buf.entries = buf.entries[:MessageLogCapacity]
	}
	for sub := range buf.subs {
		select {
		case sub.ch <- entry:
		default:
			delete(buf.subs, sub)
			sub.close()
			logSubscribersGauge.Dec()
			l.logger.WarnContext(ctx, "dropped slow message log subscriber", "instance_id", instanceID)
		}
	}
	buf.mu.Unlock()

	l.publish(ctx, instanceID, entry)
}

// Recent returns up to MessageLogCapacity entries, newest first.
func (l *MessageLog) Recent(instanceID string) []domain.MessageLogEntry {
	l.mu.RLock()
	buf, ok := l.buffers[instanceID]
	l.mu.RUnlock()
	if !ok {
		return []domain.MessageLogEntry{}
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()
	out := make([]domain.MessageLogEntry, len(buf.entries))
	copy(out, buf.entries)
	return out
}

// Subscribe registers a live subscriber. The current snapshot is queued
// on the subscriber channel (oldest first) before registration completes,
// under the same buffer lock as appends, so the stream has no gap and no
// duplicate between snapshot and live entries.
func (l *MessageLog) Subscribe(instanceID string) *Subscriber {
	buf := l.buffer(instanceID)

	buf.mu.Lock()
	defer buf.mu.Unlock()

	sub := &Subscriber{ch: make(chan domain.MessageLogEntry, len(buf.entries)+subscriberBufferSize)}
	for i := len(buf.entries) - 1; i >= 0; i-- {
		sub.ch <- buf.entries[i]
	}
	buf.subs[sub] = struct{}{}
	logSubscribersGauge.Inc()
	return sub
}

// Unsubscribe removes the subscriber and closes its channel.
func (l *MessageLog) Unsubscribe(instanceID string, sub *Subscriber) {
	l.mu.RLock()
	buf, ok := l.buffers[instanceID]
	l.mu.RUnlock()
	if !ok {
		return
	}

	buf.mu.Lock()
	if _, registered := buf.subs[sub]; registered {
		delete(buf.subs, sub)
		logSubscribersGauge.Dec()
	}
	buf.mu.Unlock()
	sub.close()
}

// Drop removes the instance's buffer entirely and releases its
// subscribers; used when the instance is deleted.
func (l *MessageLog) Drop(instanceID string) {
	l.mu.Lock()
	buf, ok := l.buffers[instanceID]
	delete(l.buffers, instanceID)
	l.mu.Unlock()
	if !ok {
		return
	}

	buf.mu.Lock()
	for sub := range buf.subs {
		delete(buf.subs, sub)
		sub.close()
		logSubscribersGauge.Dec()
	}
	buf.entries = nil
	buf.mu.Unlock()
}

// publish mirrors the entry onto NATS for external consumers.
func (l *MessageLog) publish(ctx context.Context, instanceID string, entry domain.MessageLogEntry) {
	if l.nats == nil {
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to marshal message log entry for NATS", "error", err)
		return
	}
	subject := "bridge.messages." + instanceID
	if err := l.nats.Publish(ctx, subject, payload); err != nil {
		l.logger.WarnContext(ctx, "failed to publish message log entry", "subject", subject, "error", err)
	}
}
