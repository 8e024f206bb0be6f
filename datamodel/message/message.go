package message

import (
	"reflect"
	"time"
)

type Record struct {
	SequenceNumber uint64    `cbor:"1,keyasint"`           // Local sequence number, assigned by the log
	SenderID       string    `cbor:"2,keyasint,omitempty"` // Identifier of the sending node
	Payload        string    `cbor:"3,keyasint,omitempty"` // Message text as received
	ReceivedAt     time.Time `cbor:"4,keyasint,omitempty"` // Local receive time
}

// MessageLog defines the interface for keeping a history of received messages.
type MessageLog interface {
	// Append stores a message and assigns it the next sequence number.
	// The SequenceNumber of the argument is ignored.
	Append(*Record) (*Record, error)

	// EnumerateBySeq returns records with start <= SequenceNumber < end, in order.
	EnumerateBySeq(start uint64, end uint64) ([]*Record, error)

	// GetSeq returns the sequence number of the last appended record, 0 when empty.
	GetSeq() uint64
}

func IsRecordEqual(a *Record, b *Record) bool {
	return reflect.DeepEqual(a, b)
}
