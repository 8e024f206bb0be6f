package protocol

import (
	"errors"
	"testing"
)

func TestEncodeWireFormat(t *testing.T) {
	if got := string(Encode(&Discover{SenderID: "node-1"})); got != "DISCOVER:node-1" {
		t.Errorf("Unexpected discover frame %q", got)
	}
	if got := string(Encode(&Message{SenderID: "node-1", Payload: "hi"})); got != "MSG:node-1:hi" {
		t.Errorf("Unexpected message frame %q", got)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	payloads := []string{"", "hello", "a:b:c", ":leading", "trailing:", "SYNC:3", "ünïcødé"}
	for _, p := range payloads {
		in := &Message{SenderID: "node-42", Payload: p}
		f, err := Decode(Encode(in))
		if err != nil {
			t.Fatalf("Decode(%q): %v", p, err)
		}
		out, ok := f.(*Message)
		if !ok {
			t.Fatalf("Decode(%q) returned %T", p, f)
		}
		if *out != *in {
			t.Errorf("Round trip mismatch: %+v != %+v", out, in)
		}
	}
}

func TestDecodeDiscover(t *testing.T) {
	f, err := Decode([]byte("DISCOVER:node-7"))
	if err != nil {
		t.Fatal(err)
	}
	d, ok := f.(*Discover)
	if !ok || d.SenderID != "node-7" {
		t.Fatalf("Unexpected frame %#v", f)
	}
	if f.Kind() != KindDiscover || f.Sender() != "node-7" {
		t.Errorf("Unexpected kind/sender %v/%s", f.Kind(), f.Sender())
	}
}

func TestDecodeDiscoverEmptyIdentifier(t *testing.T) {
	f, err := Decode([]byte("DISCOVER:"))
	if err != nil {
		t.Fatal(err)
	}
	if d, ok := f.(*Discover); !ok || d.SenderID != "" {
		t.Fatalf("Expected an empty Discover, got %#v", f)
	}
}

func TestDecodeUnrecognized(t *testing.T) {
	for _, raw := range []string{"GARBAGE", "", "MSG:no-separator", "discover:node-1", "MSG", "DISCOVER"} {
		f, err := Decode([]byte(raw))
		if !errors.Is(err, ErrUnrecognizedFrame) {
			t.Errorf("Decode(%q) = %v, %v; expected ErrUnrecognizedFrame", raw, f, err)
		}
	}
}

func TestSyncPayload(t *testing.T) {
	m := NewSync("node-1", 5)
	if m.Payload != "SYNC:5" {
		t.Fatalf("Unexpected sync payload %q", m.Payload)
	}
	n, ok := ParseSync(m.Payload)
	if !ok || n != 5 {
		t.Errorf("ParseSync = %d, %v", n, ok)
	}
	if _, ok := ParseSync("hello"); ok {
		t.Error("ParseSync accepted a chat payload")
	}
}
