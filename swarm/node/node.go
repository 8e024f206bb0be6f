package node

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

	"qnet/config"
	"qnet/helper/timer"
	"qnet/metrics"
	"qnet/net/udpbus"
	"qnet/swarm/protocol"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"
)

var (
	ErrNotRunning   = errors.New("node is not running")
	ErrPeerNotFound = errors.New("peer not found")
)

// BindError is returned by Start when the socket cannot be bound. The node stays Stopped.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// MessageHandler is invoked on the receive loop for every inbound message.
// It must return quickly and must not call Start or Stop.
type MessageHandler func(senderID, text string)

// ThoughtCounter is the source of the count announced by SyncState
type ThoughtCounter interface {
	CurrentThoughtCount() int
}

type Node struct {
	// Node ID, random and fixed for the lifetime of the process
	NodeID string

	cfg     *config.Config
	Peers   *PeerRegistry
	metrics *metrics.Metrics

	// Networking, replaced on every Start
	bus atomic.Pointer[udpbus.Bus]

	// Inbound message callback
	handlerMu sync.RWMutex
	handler   MessageHandler

	// Lifecycle. Transitions happen under lifecycle, readers use state.
	lifecycle sync.Mutex
	state     atomic.Int32
	cancel    context.CancelFunc
	group     *errgroup.Group
}

func New(cfg *config.Config, m *metrics.Metrics) *Node {
	if m == nil {
		m = metrics.NewDiscard()
	}

	return &Node{
		NodeID:  newNodeID(),
		cfg:     cfg,
		Peers:   NewPeerRegistry(cfg.Discovery.MaxPeers, cfg.Discovery.Liveness.Std()),
		metrics: m,
	}
}

// Identifiers must not contain ':' since it separates fields on the wire
func newNodeID() string {
	return "node-" + uuid.NewString()[:8]
}

func (n *Node) ID() string {
	return n.NodeID
}

func (n *Node) State() State {
	return State(n.state.Load())
}

func (n *Node) IsRunning() bool {
	return n.State() == Running
}

// LocalAddr reports the bound socket address while running
func (n *Node) LocalAddr() (netip.AddrPort, bool) {
	if !n.IsRunning() {
		return netip.AddrPort{}, false
	}
	return n.bus.Load().LocalAddr(), true
}

// Start binds the socket and launches the receive loop and the periodic announcer.
// ctx only bounds the bind, use Stop to shut the node down. Starting a running node is a no-op.
func (n *Node) Start(ctx context.Context) error {
	n.lifecycle.Lock()
	defer n.lifecycle.Unlock()

	if n.State() == Running {
		return nil
	}

	n.state.Store(int32(Starting))

	addr := net.JoinHostPort(n.cfg.Network.ListenAddress, strconv.Itoa(n.cfg.Network.Port))
	bus, err := udpbus.Listen(ctx, &udpbus.Options{
		ListenAddress:    n.cfg.Network.ListenAddress,
		Port:             n.cfg.Network.Port,
		BroadcastAddress: n.cfg.Network.BroadcastAddress,
		PollInterval:     n.cfg.Network.PollInterval.Std(),
		Metrics:          n.metrics,
	})
	if err != nil {
		n.state.Store(int32(Stopped))
		log.WithField("addr", addr).Errorf("Network error: %v", err)
		return &BindError{Addr: addr, Err: err}
	}

	bus.Subscribe(&PubSub{node: n})
	n.bus.Store(bus)

	rctx, cancel := context.WithCancel(context.Background())
	wg, cctx := errgroup.WithContext(rctx)

	wg.Go(func() error {
		return bus.Serve(cctx)
	})

	wg.Go(func() error {
		interval := &timer.Interval{
			Duration:  n.cfg.Discovery.Interval.Std(),
			Jitter:    n.cfg.Discovery.Jitter.Std(),
			Immediate: true,
		}
		return timer.RunWithTicker(cctx, interval, n.publishDiscover)
	})

	n.cancel = cancel
	n.group = wg
	n.state.Store(int32(Running))

	log.WithField("node", n.NodeID).Infof("Network started on %s as %s", bus.LocalAddr(), n.NodeID)

	return nil
}

// Stop halts both loops, closes the socket and forgets all peers. Stopping a stopped node is a no-op.
func (n *Node) Stop() {
	n.lifecycle.Lock()
	defer n.lifecycle.Unlock()

	if n.State() != Running {
		return
	}

	n.state.Store(int32(Stopping))

	n.cancel()
	if err := n.bus.Load().Close(); err != nil {
		log.Warnf("Failed to close socket: %v", err)
	}
	if err := n.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("Network loop exited with error: %v", err)
	}

	n.Peers.Reset()
	n.metrics.Peers.Set(0)

	n.cancel = nil
	n.group = nil
	n.state.Store(int32(Stopped))

	log.WithField("node", n.NodeID).Info("Network stopped")
}

// SetMessageHandler registers the inbound message callback, replacing any previous one
func (n *Node) SetMessageHandler(h MessageHandler) {
	n.handlerMu.Lock()
	defer n.handlerMu.Unlock()
	n.handler = h
}

func (n *Node) messageHandler() MessageHandler {
	n.handlerMu.RLock()
	defer n.handlerMu.RUnlock()
	return n.handler
}

// Broadcast sends text to every node on the broadcast domain
func (n *Node) Broadcast(text string) error {
	return n.broadcast(&protocol.Message{SenderID: n.NodeID, Payload: text})
}

// SendTo sends text to a single peer. Peers that expired from ListPeers stay addressable until evicted.
func (n *Node) SendTo(peerID string, text string) error {
	if !n.IsRunning() {
		return ErrNotRunning
	}

	addr, ok := n.Peers.Find(peerID)
	if !ok {
		log.Warnf("Node %s not found", peerID)
		return fmt.Errorf("%w: %s", ErrPeerNotFound, peerID)
	}

	err := n.bus.Load().SendTo(addr, &protocol.Message{SenderID: n.NodeID, Payload: text})
	if err != nil {
		log.Warnf("Failed to send message to %s: %v", peerID, err)
	}
	return err
}

// ListPeers returns the peers seen within the liveness window
func (n *Node) ListPeers() []Peer {
	peers := n.Peers.Snapshot(time.Now())
	n.metrics.Peers.Set(float64(len(peers)))
	return peers
}

// SyncState broadcasts the current thought count as a SYNC message
func (n *Node) SyncState(tc ThoughtCounter) error {
	return n.broadcast(protocol.NewSync(n.NodeID, tc.CurrentThoughtCount()))
}

func (n *Node) broadcast(msg *protocol.Message) error {
	if !n.IsRunning() {
		return ErrNotRunning
	}

	err := n.bus.Load().Broadcast(msg)
	if err != nil {
		log.Warnf("Failed to broadcast message: %v", err)
	}
	return err
}

// This is run via the RunWithTicker() helper. A failed send is retried on the next tick.
func (n *Node) publishDiscover(ctx context.Context) error {
	if err := n.bus.Load().Broadcast(&protocol.Discover{SenderID: n.NodeID}); err != nil {
		log.Warnf("Failed to publish discovery announcement: %v", err)
	}
	return nil
}
