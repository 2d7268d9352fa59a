// Package events publishes announcements for the outside world: round opens,
// resolutions, hidden word discoveries. Delivery is fire-and-forget; a dead
// NATS connection must never fail a guess.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/wordpot/engine/pkg/common/logger"
)

const (
	TypeRoundOpened    = "round.opened"
	TypeRoundResolved  = "round.resolved"
	TypeRoundCancelled = "round.cancelled"
	TypeGuessScored    = "guess.scored"
	TypeBonusFound     = "bonus.found"
	TypeBurnHit        = "burn.hit"
)

type Event struct {
	Type      string `json:"type"`
	RoundID   string `json:"round_id"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Emitter publishes events. Implementations swallow delivery errors.
type Emitter interface {
	Emit(eventType, roundID string, data any)
	Close()
}

type natsEmitter struct {
	conn          *nats.Conn
	subjectPrefix string
}

func NewNATSEmitter(natsURL, subjectPrefix string) (Emitter, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &natsEmitter{conn: conn, subjectPrefix: subjectPrefix}, nil
}

func (e *natsEmitter) Emit(eventType, roundID string, data any) {
	ev := Event{
		Type:      eventType,
		RoundID:   roundID,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Error("marshal announcement failed", "type", eventType, "error", err)
		return
	}
	subject := e.subjectPrefix + ".announce." + eventType
	if err := e.conn.Publish(subject, payload); err != nil {
		// swallowed: announcements never propagate failures to the caller
		logger.Error("publish announcement failed", "subject", subject, "error", err)
	}
}

func (e *natsEmitter) Close() {
	if e.conn != nil {
		e.conn.Close()
	}
}

// Nop drops every event. Used when no NATS is configured.
type Nop struct{}

func (Nop) Emit(string, string, any) {}
func (Nop) Close()                   {}
