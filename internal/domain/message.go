package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
)

var ErrUnknownKind = errors.New("unknown message kind")

func (k MessageKind) Valid() bool {
	return k == KindText || k == KindImage
}

// Message is one entry of a room's history. ID and Timestamp are assigned
// by the relay at append time, never taken from the client. Immutable once
// appended.
type Message struct {
	ID        string      `json:"id"`
	Sender    string      `json:"sender"`
	Kind      MessageKind `json:"kind"`
	Content   string      `json:"content"`
	Timestamp int64       `json:"timestamp"`
}

// NewMessage stamps id and timestamp (unix milliseconds, server clock).
func NewMessage(sender string, kind MessageKind, content string) (Message, error) {
	if !kind.Valid() {
		return Message{}, ErrUnknownKind
	}
	return Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Kind:      kind,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}
