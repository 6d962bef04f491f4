package purelink

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/airlink-bridge/internal/infrastructure/mqtt"
)

var topics = mqtt.Topics{}

// Message kinds carried in the "msg" field of the envelope.
const (
	MsgSensorData          = "ENVIRONMENTAL-CURRENT-SENSOR-DATA"
	MsgCurrentState        = "CURRENT-STATE"
	MsgStateChange         = "STATE-CHANGE"
	MsgStateSet            = "STATE-SET"
	MsgRequestCurrentState = "REQUEST-CURRENT-STATE"
)

// envelopeTimeLayout is ISO-8601 with milliseconds, always UTC.
const envelopeTimeLayout = "2006-01-02T15:04:05.000Z"

// CommandEnvelope is the outbound message format.
type CommandEnvelope struct {
	Msg  string            `json:"msg"`
	Time string            `json:"time"`
	Data map[string]string `json:"data,omitempty"`
}

// encodeCommand serialises an outbound message. data may be nil for
// REQUEST-CURRENT-STATE.
func encodeCommand(msg string, data map[string]string, now time.Time) ([]byte, error) {
	env := CommandEnvelope{
		Msg:  msg,
		Time: now.UTC().Format(envelopeTimeLayout),
		Data: data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg, err)
	}
	return payload, nil
}

// decodeMessage parses an inbound payload into its kind and raw fields.
func decodeMessage(payload []byte) (string, map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if raw == nil {
		return "", nil, fmt.Errorf("%w: not an object", ErrMalformedMessage)
	}
	kind, ok := raw["msg"].(string)
	if !ok || kind == "" {
		return "", nil, fmt.Errorf("%w: missing msg field", ErrMalformedMessage)
	}
	return kind, raw, nil
}
