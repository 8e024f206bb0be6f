package node

import (
	"net/netip"
	"time"

	"qnet/swarm/protocol"

	log "github.com/sirupsen/logrus"
)

// PubSub dispatches decoded frames coming off the receive loop
type PubSub struct {
	node *Node
}

func (s *PubSub) HandleFrame(f protocol.Frame, from netip.AddrPort) {
	switch f := f.(type) {
	case *protocol.Discover:
		s.Discover(f, from)
	case *protocol.Message:
		s.Message(f)
	}
}

// Discover records the announcing peer. Peers that were unknown or stale get a direct
// reply so both sides learn about each other within one round trip.
func (s *PubSub) Discover(msg *protocol.Discover, from netip.AddrPort) {
	// Check if we received our own announcement
	if msg.SenderID == s.node.NodeID {
		return
	}
	if msg.SenderID == "" {
		log.Debugf("Discover: empty identifier from %s, ignoring", from)
		return
	}

	now := time.Now()
	known := s.node.Peers.Upsert(msg.SenderID, from, now)
	s.node.metrics.Peers.Set(float64(len(s.node.Peers.Snapshot(now))))

	if known {
		return
	}

	log.Infof("Discover: node: %s, address: %s", msg.SenderID, from)

	if err := s.node.bus.Load().SendTo(from, &protocol.Discover{SenderID: s.node.NodeID}); err != nil {
		log.Warnf("Failed to reply to %s: %v", msg.SenderID, err)
	}
}

// Message hands the payload to the registered handler. Our own broadcasts loop back
// through the socket and are delivered like any other message.
func (s *PubSub) Message(msg *protocol.Message) {
	h := s.node.messageHandler()
	if h == nil {
		log.Debugf("Message from %s dropped, no handler registered", msg.SenderID)
		return
	}

	h(msg.SenderID, msg.Payload)
}
