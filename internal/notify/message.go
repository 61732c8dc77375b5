package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is one chat or broadcast notification as carried on the Redis
// channel and pushed to websocket clients.
type Message struct {
	ID     string    `json:"id"`
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// NewMessage creates a message with a fresh ID and timestamp.
func NewMessage(sender, text string) Message {
	return Message{
		ID:     uuid.New().String(),
		Sender: sender,
		Text:   text,
		SentAt: time.Now().UTC(),
	}
}

// Encode serializes the message for the wire.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding message: %w", err)
	}
	return data, nil
}

// DecodeMessage parses a wire payload back into a Message.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decoding message: %w", err)
	}
	return m, nil
}
