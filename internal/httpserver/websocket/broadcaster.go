package websocket

import (
	"github.com/relicta-tech/installkit/internal/httpserver/dto"
	"github.com/relicta-tech/installkit/internal/installation/app"
	"github.com/relicta-tech/installkit/internal/installation/domain"
)

// Message types.
const (
	TypeSessionCreated = "session.created"
	TypeSessionStep    = "session.step"
	TypeSessionClosed  = "session.closed"
	TypeSessionOutcome = "session.outcome"
)

// Broadcaster turns session activity into hub messages. A nil Broadcaster
// drops everything.
type Broadcaster struct {
	hub *Hub
}

// NewBroadcaster creates a broadcaster over hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	if hub == nil {
		return nil
	}
	return &Broadcaster{hub: hub}
}

// StepListener returns a wizard listener that publishes every step of the
// session. It only queues, so it is safe to run under the wizard lock.
func (b *Broadcaster) StepListener(sessionID string, flow domain.Flow) app.Listener {
	return func(s domain.Step) {
		b.publish(TypeSessionStep, dto.StepEvent{
			SessionID: sessionID,
			Flow:      string(flow),
			Step:      dto.FromStep(s),
		})
	}
}

// SessionCreated publishes a new session.
func (b *Broadcaster) SessionCreated(s dto.SessionDTO) {
	b.publish(TypeSessionCreated, s)
}

// SessionClosed publishes a canceled or expired session.
func (b *Broadcaster) SessionClosed(sessionID string) {
	b.publish(TypeSessionClosed, map[string]string{"session_id": sessionID})
}

// Outcome publishes the result of an install attempt.
func (b *Broadcaster) Outcome(sessionID string, o *dto.OutcomeDTO) {
	b.publish(TypeSessionOutcome, map[string]any{"session_id": sessionID, "outcome": o})
}

func (b *Broadcaster) publish(typ string, payload any) {
	if b == nil {
		return
	}
	b.hub.Broadcast(Message{Type: typ, Payload: payload})
}
