package udpbus

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"qnet/swarm/protocol"
)

type received struct {
	frame protocol.Frame
	from  netip.AddrPort
}

func listenLoopback(t *testing.T) *Bus {
	t.Helper()
	b, err := Listen(context.Background(), &Options{
		ListenAddress:    "127.0.0.1",
		Port:             0,
		BroadcastAddress: "127.0.0.1",
		PollInterval:     20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to bind: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func serve(t *testing.T, b *Bus) (chan received, chan error) {
	t.Helper()
	ch := make(chan received, 16)
	b.Subscribe(HandlerFunc(func(f protocol.Frame, from netip.AddrPort) {
		ch <- received{frame: f, from: from}
	}))
	done := make(chan error, 1)
	go func() { done <- b.Serve(context.Background()) }()
	return ch, done
}

func TestSendToDeliversDecodedFrame(t *testing.T) {
	rx := listenLoopback(t)
	tx := listenLoopback(t)
	ch, _ := serve(t, rx)

	if err := tx.SendTo(rx.LocalAddr(), &protocol.Message{SenderID: "node-1", Payload: "a:b"}); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-ch:
		m, ok := r.frame.(*protocol.Message)
		if !ok {
			t.Fatalf("Expected *protocol.Message, got %T", r.frame)
		}
		if m.SenderID != "node-1" || m.Payload != "a:b" {
			t.Errorf("Unexpected message %+v", m)
		}
		if r.from != tx.LocalAddr() {
			t.Errorf("Expected sender %s, got %s", tx.LocalAddr(), r.from)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Frame not received")
	}
}

func TestBroadcastUsesLocalPort(t *testing.T) {
	b := listenLoopback(t)
	if b.BroadcastAddr() != b.LocalAddr() {
		t.Errorf("Broadcast address %s differs from bound address %s", b.BroadcastAddr(), b.LocalAddr())
	}

	// Loopback "broadcast" reaches our own socket
	ch, _ := serve(t, b)
	if err := b.Broadcast(&protocol.Discover{SenderID: "self"}); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-ch:
		if r.frame.Kind() != protocol.KindDiscover || r.frame.Sender() != "self" {
			t.Errorf("Unexpected frame %#v", r.frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast frame not received")
	}
}

func TestGarbageIsDropped(t *testing.T) {
	rx := listenLoopback(t)
	ch, _ := serve(t, rx)

	raw, err := net.DialUDP("udp4", nil, net.UDPAddrFromAddrPort(rx.LocalAddr()))
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Close()

	raw.Write([]byte("GARBAGE"))
	raw.Write([]byte("MSG:missing-separator"))
	raw.Write([]byte("DISCOVER:after-garbage"))

	select {
	case r := <-ch:
		if r.frame.Sender() != "after-garbage" {
			t.Errorf("Garbage reached the handler: %#v", r.frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Valid frame after garbage not received")
	}
}

func TestCloseStopsServe(t *testing.T) {
	b := listenLoopback(t)
	_, done := serve(t, b)

	time.Sleep(30 * time.Millisecond)
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	// Idempotent
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v after Close", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Close")
	}

	if err := b.SendTo(b.LocalAddr(), &protocol.Discover{SenderID: "x"}); err == nil {
		t.Error("Expected send on a closed bus to fail")
	}
}

func TestListenPortInUse(t *testing.T) {
	// A plain socket without SO_REUSEADDR blocks the port
	blocker, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer blocker.Close()

	_, err = Listen(context.Background(), &Options{
		ListenAddress:    "127.0.0.1",
		Port:             blocker.LocalAddr().(*net.UDPAddr).Port,
		BroadcastAddress: "127.0.0.1",
	})
	if err == nil {
		t.Fatal("Expected bind to fail on a port held without SO_REUSEADDR")
	}
}

func TestExplicitBroadcastPort(t *testing.T) {
	rx := listenLoopback(t)
	ch, _ := serve(t, rx)

	tx, err := Listen(context.Background(), &Options{
		ListenAddress:    "127.0.0.1",
		BroadcastAddress: rx.LocalAddr().String(),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Close()

	if tx.BroadcastAddr() != rx.LocalAddr() {
		t.Fatalf("Expected broadcast target %s, got %s", rx.LocalAddr(), tx.BroadcastAddr())
	}
	if err := tx.Broadcast(&protocol.Message{SenderID: "tx", Payload: "hi"}); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-ch:
		if r.frame.Sender() != "tx" {
			t.Errorf("Unexpected frame %#v", r.frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Frame not received")
	}
}
