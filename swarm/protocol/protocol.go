// Package protocol implements the text frames exchanged between nodes.
//
//	DISCOVER:<senderId>
//	MSG:<senderId>:<payload>
//
// One frame is carried by exactly one datagram, there is no length prefix.
package protocol

import (
	"errors"
	"strconv"
	"strings"
)

const (
	prefixDiscover = "DISCOVER:"
	prefixMessage  = "MSG:"
	separator      = ":"

	// SyncPrefix marks a Message payload carrying a thought count
	SyncPrefix = "SYNC:"
)

var ErrUnrecognizedFrame = errors.New("unrecognized frame")

type Kind int

const (
	KindDiscover Kind = iota
	KindMessage
)

func (k Kind) String() string {
	switch k {
	case KindDiscover:
		return "discover"
	case KindMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Frame is either a Discover or a Message.
type Frame interface {
	Kind() Kind
	Sender() string
}

// Discover announces the sender. SenderID must not contain ':'.
type Discover struct {
	SenderID string
}

func (d *Discover) Kind() Kind     { return KindDiscover }
func (d *Discover) Sender() string { return d.SenderID }

// Message carries a free-form payload. The payload may contain ':'.
type Message struct {
	SenderID string
	Payload  string
}

func (m *Message) Kind() Kind     { return KindMessage }
func (m *Message) Sender() string { return m.SenderID }

// NewSync builds the Message announcing the local thought count
func NewSync(senderID string, thoughtCount int) *Message {
	return &Message{SenderID: senderID, Payload: SyncPrefix + strconv.Itoa(thoughtCount)}
}

// ParseSync extracts the count from a SYNC payload
func ParseSync(payload string) (int, bool) {
	rest, ok := strings.CutPrefix(payload, SyncPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

func Encode(f Frame) []byte {
	switch f := f.(type) {
	case *Discover:
		return []byte(prefixDiscover + f.SenderID)
	case *Message:
		return []byte(prefixMessage + f.SenderID + separator + f.Payload)
	default:
		return nil
	}
}

// Decode classifies a raw datagram. Anything that is not a well-formed frame yields ErrUnrecognizedFrame.
func Decode(b []byte) (Frame, error) {
	s := string(b)

	if rest, ok := strings.CutPrefix(s, prefixDiscover); ok {
		return &Discover{SenderID: rest}, nil
	}

	if rest, ok := strings.CutPrefix(s, prefixMessage); ok {
		// Only the first separator terminates the sender
		id, payload, found := strings.Cut(rest, separator)
		if !found {
			return nil, ErrUnrecognizedFrame
		}
		return &Message{SenderID: id, Payload: payload}, nil
	}

	return nil, ErrUnrecognizedFrame
}
