// Package protocol is the stateless wire codec shared by the server adapter
// and the client supervisor. Every frame is a JSON envelope
// {"type": <kind>, "data": <payload>}.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/Text/internal/domain"
)

// Inbound frame kinds. Join is not a frame, it rides on the connection
// handshake parameters.
const (
	TypeSendMessage = "send-message"
	TypeTyping      = "typing"
	TypePing        = "ping"
)

// Outbound frame kinds.
const (
	TypeUsers      = "users"
	TypeMessages   = "messages"
	TypeMessage    = "message"
	TypeUserJoined = "user-joined"
	TypeUserLeft   = "user-left"
	TypePong       = "pong"
	TypeError      = "error"
)

var ErrUnknownType = errors.New("unknown frame type")

type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SendMessagePayload is the data of an inbound send-message frame. The id
// and timestamp a client may include are ignored.
type SendMessagePayload struct {
	Kind    domain.MessageKind `json:"kind"`
	Content string             `json:"content"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: %w", ErrUnknownType)
	}
	return env, nil
}

func (e Envelope) SendMessage() (SendMessagePayload, error) {
	var p SendMessagePayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return SendMessagePayload{}, fmt.Errorf("decode send-message: %w", err)
	}
	return p, nil
}

func (e Envelope) ErrorInfo() (ErrorPayload, error) {
	var p ErrorPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return ErrorPayload{}, fmt.Errorf("decode error payload: %w", err)
	}
	return p, nil
}

func (e Envelope) TypingUsername() (string, error) {
	var name string
	if err := json.Unmarshal(e.Data, &name); err != nil {
		return "", fmt.Errorf("decode typing payload: %w", err)
	}
	return name, nil
}

func (e Envelope) Users() ([]domain.User, error) {
	var users []domain.User
	if err := json.Unmarshal(e.Data, &users); err != nil {
		return nil, fmt.Errorf("decode users payload: %w", err)
	}
	return users, nil
}

func (e Envelope) Messages() ([]domain.Message, error) {
	var msgs []domain.Message
	if err := json.Unmarshal(e.Data, &msgs); err != nil {
		return nil, fmt.Errorf("decode messages payload: %w", err)
	}
	return msgs, nil
}

func (e Envelope) Message() (domain.Message, error) {
	var m domain.Message
	if err := json.Unmarshal(e.Data, &m); err != nil {
		return domain.Message{}, fmt.Errorf("decode message payload: %w", err)
	}
	return m, nil
}

func (e Envelope) User() (domain.User, error) {
	var u domain.User
	if err := json.Unmarshal(e.Data, &u); err != nil {
		return domain.User{}, fmt.Errorf("decode user payload: %w", err)
	}
	return u, nil
}

func Encode(typ string, data any) ([]byte, error) {
	env := Envelope{Type: typ}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", typ, err)
		}
		env.Data = raw
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", typ, err)
	}
	return b, nil
}

func EncodeUsers(roster []domain.User) ([]byte, error) {
	if roster == nil {
		roster = []domain.User{}
	}
	return Encode(TypeUsers, roster)
}

func EncodeMessages(history []domain.Message) ([]byte, error) {
	if history == nil {
		history = []domain.Message{}
	}
	return Encode(TypeMessages, history)
}

func EncodeMessage(m domain.Message) ([]byte, error) {
	return Encode(TypeMessage, m)
}

func EncodeUserJoined(u domain.User) ([]byte, error) {
	return Encode(TypeUserJoined, u)
}

func EncodeUserLeft(u domain.User) ([]byte, error) {
	return Encode(TypeUserLeft, u)
}

func EncodeTyping(username string) ([]byte, error) {
	return Encode(TypeTyping, username)
}

func EncodePing() ([]byte, error) {
	return Encode(TypePing, nil)
}

func EncodePong() ([]byte, error) {
	return Encode(TypePong, nil)
}

func EncodeError(code, message string) ([]byte, error) {
	return Encode(TypeError, ErrorPayload{Code: code, Message: message})
}
