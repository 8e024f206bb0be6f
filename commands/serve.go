package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"qnet/config"
	"qnet/datamodel/message"
	"qnet/datamodel/thought"
	"qnet/datastore/leveldb"
	"qnet/metrics"
	"qnet/swarm/node"
	"qnet/swarm/protocol"

	"github.com/manifoldco/promptui"
	"github.com/prometheus/client_golang/prometheus"

	log "github.com/sirupsen/logrus"
)

// RunServe starts the node and runs the interactive console until the user quits
func RunServe(ctx context.Context, cfg *config.Config) {
	mlog, err := leveldb.NewMessageLog(cfg.DataStore.MessageLogPath)
	if err != nil {
		log.Fatalf("Failed to open message log: %v", err)
	}
	defer mlog.Close()

	if cfg.Metrics.ListenAddress != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.ListenAddress, prometheus.DefaultGatherer); err != nil {
				log.Errorf("Metrics server failed: %v", err)
			}
		}()
	}

	n := node.New(cfg, metrics.DefaultMetrics)
	c := newConsole(n, thought.NewStore(), mlog, os.Stdout)

	n.SetMessageHandler(c.onMessage)

	if err := n.Start(ctx); err != nil {
		log.Errorf("Failed to start network: %v", err)
		return
	}
	defer n.Stop()

	c.run(ctx)
}

type console struct {
	node     *node.Node
	thoughts *thought.Store
	mlog     message.MessageLog
	out      io.Writer

	// Input, replaced in tests
	prompt     func(label string) (string, error)
	selectPeer func(ids []string) (string, error)
}

func newConsole(n *node.Node, ts *thought.Store, mlog message.MessageLog, out io.Writer) *console {
	return &console{
		node:       n,
		thoughts:   ts,
		mlog:       mlog,
		out:        out,
		prompt:     promptLine,
		selectPeer: promptPeer,
	}
}

func promptLine(label string) (string, error) {
	p := promptui.Prompt{Label: label}
	return p.Run()
}

func promptPeer(ids []string) (string, error) {
	s := promptui.Select{Label: "Send to", Items: ids}
	_, id, err := s.Run()
	return id, err
}

// onMessage runs on the receive loop, it must not call back into the node
func (c *console) onMessage(sender, text string) {
	if count, ok := protocol.ParseSync(text); ok {
		fmt.Fprintf(c.out, "\n[Sync from %s]: %d thoughts in superposition\n", sender, count)
	} else {
		fmt.Fprintf(c.out, "\n[Message from %s]: %s\n", sender, text)
	}

	if c.mlog == nil {
		return
	}
	if _, err := c.mlog.Append(&message.Record{SenderID: sender, Payload: text, ReceivedAt: time.Now()}); err != nil {
		log.Errorf("Failed to store message from %s: %v", sender, err)
	}
}

func (c *console) run(ctx context.Context) {
	fmt.Fprintln(c.out, "Quantum Consciousness Network Console")
	fmt.Fprintln(c.out, "Type 'help' for available commands")

	for ctx.Err() == nil {
		c.status()

		line, err := c.prompt(">")
		if err != nil {
			if !errors.Is(err, promptui.ErrInterrupt) && !errors.Is(err, promptui.ErrEOF) && !errors.Is(err, io.EOF) {
				log.Errorf("Failed to read command: %v", err)
			}
			return
		}

		if !c.process(strings.TrimSpace(line)) {
			return
		}
	}
}

// process executes one command line and reports whether the console should keep running
func (c *console) process(line string) bool {
	cmd, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "":
	case "exit", "quit":
		return false
	case "help":
		c.help()
	case "status":
		c.status()
	case "peers":
		c.peers()
	case "send":
		c.send(args)
	case "broadcast":
		c.broadcast(args)
	case "enter":
		c.enter()
	case "thoughts":
		c.listThoughts()
	case "collapse":
		c.collapse()
	case "sync":
		if err := c.node.SyncState(c.thoughts); err != nil {
			fmt.Fprintf(c.out, "Sync failed: %v\n", err)
		} else {
			fmt.Fprintf(c.out, "Synced %d thoughts\n", c.thoughts.CurrentThoughtCount())
		}
	default:
		fmt.Fprintln(c.out, "Unknown command. Type 'help' for available commands.")
	}
	return true
}

func (c *console) help() {
	fmt.Fprint(c.out, `Commands:
  status               show network state
  peers                list live peers
  send [id] [text]     send a message to one peer
  broadcast <text>     send a message to every peer
  enter                enter thoughts, one per line, empty line to finish
  thoughts             list thoughts in superposition
  collapse             collapse the thoughts into one
  sync                 broadcast the current thought count
  quit                 leave the console
`)
}

func (c *console) status() {
	state := "Stopped"
	if c.node.IsRunning() {
		state = "Running"
	}
	fmt.Fprintf(c.out, "\nNetwork: %s (%s)\n", state, c.node.ID())
	fmt.Fprintf(c.out, "Connected peers: %d\n", len(c.node.ListPeers()))
	fmt.Fprintf(c.out, "Thoughts in superposition: %d\n\n", c.thoughts.CurrentThoughtCount())
}

func (c *console) peers() {
	peers := c.node.ListPeers()
	if len(peers) == 0 {
		fmt.Fprintln(c.out, "No peers connected")
		return
	}
	now := time.Now()
	for _, p := range peers {
		fmt.Fprintf(c.out, "- %s (%s), last seen %v ago\n", p.ID, p.Address, now.Sub(p.LastSeen).Round(time.Millisecond))
	}
}

func (c *console) send(args string) {
	id, text, _ := strings.Cut(args, " ")

	if id == "" {
		peers := c.node.ListPeers()
		if len(peers) == 0 {
			fmt.Fprintln(c.out, "No peers connected")
			return
		}
		ids := make([]string, 0, len(peers))
		for _, p := range peers {
			ids = append(ids, p.ID)
		}
		var err error
		if id, err = c.selectPeer(ids); err != nil {
			return
		}
	}

	if text == "" {
		var err error
		if text, err = c.prompt("Message"); err != nil {
			return
		}
	}

	if err := c.node.SendTo(id, text); err != nil {
		fmt.Fprintf(c.out, "Send failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out, "Sent to %s\n", id)
}

func (c *console) broadcast(text string) {
	if text == "" {
		fmt.Fprintln(c.out, "Usage: broadcast <text>")
		return
	}
	if err := c.node.Broadcast(text); err != nil {
		fmt.Fprintf(c.out, "Broadcast failed: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "Broadcast sent")
}

func (c *console) enter() {
	var thoughts []string
	for {
		t, err := c.prompt("Thought")
		if err != nil || t == "" {
			break
		}
		thoughts = append(thoughts, t)
	}

	if len(thoughts) == 0 {
		fmt.Fprintln(c.out, "No thoughts entered")
		return
	}
	c.thoughts.Enter(thoughts)
	fmt.Fprintf(c.out, "Entered %d thoughts into superposition\n", len(thoughts))
}

func (c *console) listThoughts() {
	thoughts := c.thoughts.Thoughts()
	if len(thoughts) == 0 {
		fmt.Fprintln(c.out, "No thoughts in superposition")
		return
	}
	for i, t := range thoughts {
		fmt.Fprintf(c.out, "%d. %s\n", i+1, t)
	}
}

func (c *console) collapse() {
	t, ok := c.thoughts.Collapse()
	if !ok {
		fmt.Fprintln(c.out, "No thoughts to collapse")
		return
	}
	fmt.Fprintf(c.out, "Consciousness collapsed to: %s\n", t)
}
