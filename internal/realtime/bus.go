// Package realtime fans session state changes out to subscribers. Each
// session has its own channel; the transport that delivers messages to
// end clients subscribes per session and is not this package's concern.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const channelPrefix = "patungan:session:"

// Channel returns the pub/sub channel name for a session.
func Channel(sessionID string) string {
	return channelPrefix + sessionID
}

// Event is the envelope published for every state change.
type Event struct {
	Topic      string          `json:"topic"`
	SessionID  string          `json:"sessionId"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Bus publishes events to the session's Redis channel. A nil client
// disables fan-out; the engine's behaviour is identical either way.
type Bus struct {
	Redis  *redis.Client
	Logger zerolog.Logger
}

// Emit publishes the event. Emit is called after the session's exclusive
// section has been released; fan-out failures are logged, never returned
// to the operation that triggered them.
func (b *Bus) Emit(ctx context.Context, topic, sessionID string, payload any) {
	if b == nil || b.Redis == nil {
		return
	}
	topic = strings.TrimSpace(topic)
	if topic == "" || sessionID == "" {
		return
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		b.Logger.Error().Err(err).Str("topic", topic).Str("session_id", sessionID).Msg("encode realtime payload")
		return
	}
	ev := Event{Topic: topic, SessionID: sessionID, Payload: encoded, OccurredAt: time.Now().UTC()}
	msg, err := json.Marshal(ev)
	if err != nil {
		b.Logger.Error().Err(err).Str("topic", topic).Msg("encode realtime event")
		return
	}
	if err := b.Redis.Publish(ctx, Channel(sessionID), msg).Err(); err != nil {
		b.Logger.Error().Err(err).Str("topic", topic).Str("session_id", sessionID).Msg("publish realtime event")
	}
}

func encodePayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		if len(v) == 0 {
			return json.RawMessage("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append(json.RawMessage(nil), v...), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append(json.RawMessage(nil), v...), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		return data, nil
	}
}
