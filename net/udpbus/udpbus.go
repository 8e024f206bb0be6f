// Package udpbus owns the node's single broadcast-capable UDP socket.
// Publish: a frame is encoded and sent to the broadcast address or to one peer.
// Listen: a receive loop decodes every datagram and hands the frame to the subscribed Handler.
package udpbus

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"qnet/metrics"
	"qnet/swarm/protocol"

	log "github.com/sirupsen/logrus"
)

// Largest UDP payload over IPv4
const maxDatagramSize = 65507

const defaultPollInterval = 100 * time.Millisecond

// Handler receives every decoded frame together with the sender's observed address.
// It runs on the receive loop and must not block for long.
type Handler interface {
	HandleFrame(f protocol.Frame, from netip.AddrPort)
}

type HandlerFunc func(f protocol.Frame, from netip.AddrPort)

func (h HandlerFunc) HandleFrame(f protocol.Frame, from netip.AddrPort) {
	h(f, from)
}

type Options struct {
	ListenAddress    string // host to bind, empty for all interfaces
	Port             int
	BroadcastAddress string // host, or host:port, the broadcast frames are sent to
	PollInterval     time.Duration
	Metrics          *metrics.Metrics
}

type Bus struct {
	conn    *net.UDPConn
	bcast   netip.AddrPort
	poll    time.Duration
	metrics *metrics.Metrics

	mu      sync.RWMutex
	handler Handler

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Listen binds the socket with address reuse and broadcast enabled.
func Listen(ctx context.Context, opts *Options) (*Bus, error) {
	addr := net.JoinHostPort(opts.ListenAddress, strconv.Itoa(opts.Port))

	lc := net.ListenConfig{Control: controlBroadcast}
	pc, err := lc.ListenPacket(ctx, "udp4", addr)
	if err != nil {
		return nil, err
	}
	conn := pc.(*net.UDPConn)

	// Without an explicit port, broadcast on the port we actually got, so port 0 works as well
	target := opts.BroadcastAddress
	if _, _, err := net.SplitHostPort(target); err != nil {
		port := conn.LocalAddr().(*net.UDPAddr).Port
		target = net.JoinHostPort(target, strconv.Itoa(port))
	}
	ua, err := net.ResolveUDPAddr("udp4", target)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("udpbus: invalid broadcast address %q: %w", opts.BroadcastAddress, err)
	}
	bcast := unmap(ua.AddrPort())

	poll := opts.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.NewDiscard()
	}

	log.Debugf("udpbus: bound %s, broadcasting to %s", conn.LocalAddr(), bcast)

	return &Bus{
		conn:    conn,
		bcast:   bcast,
		poll:    poll,
		metrics: m,
	}, nil
}

// Subscribe replaces the frame handler
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

func (b *Bus) LocalAddr() netip.AddrPort {
	return unmap(b.conn.LocalAddr().(*net.UDPAddr).AddrPort())
}

func (b *Bus) BroadcastAddr() netip.AddrPort {
	return b.bcast
}

// Broadcast sends one datagram to the broadcast address
func (b *Bus) Broadcast(f protocol.Frame) error {
	return b.SendTo(b.bcast, f)
}

// SendTo sends one datagram to addr. There is no acknowledgement and no retry.
func (b *Bus) SendTo(addr netip.AddrPort, f protocol.Frame) error {
	raw := protocol.Encode(f)
	if raw == nil {
		return fmt.Errorf("udpbus: cannot encode %T", f)
	}

	if _, err := b.conn.WriteToUDPAddrPort(raw, addr); err != nil {
		b.metrics.SendErrors.Inc()
		return fmt.Errorf("udpbus: send to %s: %w", addr, err)
	}

	b.metrics.FramesSent.WithLabelValues(f.Kind().String()).Inc()
	return nil
}

// Serve runs the receive loop until ctx is cancelled or the bus is closed.
// Read errors while running are logged and the loop continues.
func (b *Bus) Serve(ctx context.Context) error {
	buf := make([]byte, maxDatagramSize)

	for {
		if ctx.Err() != nil || b.closed.Load() {
			return nil
		}

		// Bounded wait so that shutdown is noticed within one poll interval
		b.conn.SetReadDeadline(time.Now().Add(b.poll))

		n, from, err := b.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			if b.closed.Load() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			b.metrics.ReceiveErrors.Inc()
			log.Errorf("udpbus: failed to read datagram: %v", err)
			continue
		}

		from = unmap(from)

		f, err := protocol.Decode(buf[:n])
		if err != nil {
			b.metrics.FramesDropped.Inc()
			log.Debugf("udpbus: dropping %d bytes from %s: %v", n, from, err)
			continue
		}
		b.metrics.FramesReceived.WithLabelValues(f.Kind().String()).Inc()

		b.mu.RLock()
		h := b.handler
		b.mu.RUnlock()

		if h != nil {
			h.HandleFrame(f, from)
		}
	}
}

// Close unblocks Serve and releases the socket. It is safe to call more than once.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.closeErr = b.conn.Close()
	})
	return b.closeErr
}

// The net package hands out IPv4 addresses in 16-byte form
func unmap(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
