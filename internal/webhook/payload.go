package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// MessageTypeText is the only inbound message type that is stored
const MessageTypeText = "text"

// Payload is the Cloud API notification envelope
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the changes of one business account
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change is one notification for one phone number
type Change struct {
	Field string `json:"field"`
	Value Value  `json:"value"`
}

// Value carries the receiving number and its messages. Messages are kept
// raw so a malformed one can be skipped without losing its siblings.
type Value struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         Metadata          `json:"metadata"`
	Messages         []json.RawMessage `json:"messages"`
}

// Metadata identifies the receiving number
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Message is one decoded inbound message
type Message struct {
	ID        string         `json:"id"`
	From      string         `json:"from"`
	Type      string         `json:"type"`
	Timestamp *UnixTimestamp `json:"timestamp"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
}

// IsText reports whether m is a plain text message
func (m *Message) IsText() bool {
	return m.Type == MessageTypeText
}

// Body returns the text body, or nil when the message has none
func (m *Message) Body() *string {
	if m.Text == nil {
		return nil
	}
	body := m.Text.Body
	return &body
}

// SentAt returns the provider timestamp, or now when the message has none
func (m *Message) SentAt(now time.Time) time.Time {
	if m.Timestamp == nil || *m.Timestamp == 0 {
		return now.UTC()
	}
	return m.Timestamp.Time()
}

// UnixTimestamp accepts Unix seconds encoded as a JSON string or number.
// An empty string decodes to zero, which counts as absent.
type UnixTimestamp int64

func (t *UnixTimestamp) UnmarshalJSON(data []byte) error {
	raw := bytes.Trim(data, `"`)
	if len(raw) == 0 {
		*t = 0
		return nil
	}
	seconds, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid unix timestamp %s", data)
	}
	*t = UnixTimestamp(seconds)
	return nil
}

// Time returns t in UTC
func (t UnixTimestamp) Time() time.Time {
	return time.Unix(int64(t), 0).UTC()
}

// ErrMalformedMessage marks a message object that cannot be ingested
var ErrMalformedMessage = errors.New("malformed message")

// ParsePayload decodes a notification body
func ParsePayload(body []byte) (*Payload, error) {
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &payload, nil
}

// DecodeMessage decodes one raw message object. A message without a sender
// or with an unreadable timestamp is malformed.
func DecodeMessage(raw json.RawMessage) (*Message, error) {
	var message Message
	if err := json.Unmarshal(raw, &message); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if message.From == "" {
		return nil, fmt.Errorf("%w: missing sender", ErrMalformedMessage)
	}
	return &message, nil
}
