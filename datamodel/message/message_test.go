package message

import (
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
)

func TestRecordMarshallUnmarshall(t *testing.T) {
	r := &Record{
		SequenceNumber: 7,
		SenderID:       "node-1a2b3c4d",
		Payload:        "SYNC:3",
		ReceivedAt:     time.Unix(1700000000, 0).UTC(),
	}

	enc, err := cbor.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}

	var r2 Record
	if err := cbor.Unmarshal(enc, &r2); err != nil {
		t.Fatal(err)
	}

	if !r2.ReceivedAt.Equal(r.ReceivedAt) {
		t.Fatalf("Times do not match: %v != %v", r.ReceivedAt, r2.ReceivedAt)
	}
	r2.ReceivedAt = r.ReceivedAt
	if !IsRecordEqual(r, &r2) {
		t.Fatalf("Records do not match: %+v != %+v", r, r2)
	}
}
