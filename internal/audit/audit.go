// Package audit exports moderation and room-lifecycle events to a Kafka
// topic. Optional: a nil *Publisher is a valid no-op sink.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/tavernier-bot/tavernier/internal/config"
)

// Event is one audit record.
type Event struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	ActorID  string         `json:"actor_id,omitempty"`
	TargetID string         `json:"target_id,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	At       time.Time      `json:"at"`
}

// Event kinds.
const (
	KindRoomCreated    = "room_created"
	KindRoomDestroyed  = "room_destroyed"
	KindLevelChanged   = "level_changed"
	KindMemberKicked   = "member_kicked"
	KindMemberBanned   = "member_banned"
	KindMemberUnbanned = "member_unbanned"
	KindMemberMuted    = "member_muted"
)

// Publisher writes audit events. Emission is best-effort and asynchronous;
// a failed write is logged, never surfaced to the triggering handler.
type Publisher struct {
	writer *kafka.Writer
}

// New creates a Publisher, or nil when the export is disabled.
func New(cfg config.AuditConfig) *Publisher {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return nil
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
	}
}

// Emit publishes one event. Safe on a nil Publisher.
func (p *Publisher) Emit(ctx context.Context, kind, actorID, targetID string, details map[string]any) {
	if p == nil {
		return
	}
	ev := Event{
		ID:       uuid.NewString(),
		Kind:     kind,
		ActorID:  actorID,
		TargetID: targetID,
		Details:  details,
		At:       time.Now(),
	}
	value, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("audit event encode failed", "kind", kind, "error", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.Kind),
		Value: value,
		Time:  ev.At,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Warn("audit event write failed", "kind", kind, "error", err)
	}
}

// Close flushes and closes the writer. Safe on a nil Publisher.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
