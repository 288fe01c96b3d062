// Package cascade drives dependent channels from the lifecycle of the channel
// they depend on. The dependencies are a declared table of rules rather than
// calls sprinkled through event handlers.
package cascade

import (
	"fmt"
	"log/slog"

	"github.com/example/larvawatch/internal/channel"
)

// Action is what a rule does to its downstream channel.
type Action int

const (
	Connect Action = iota
	Disconnect
)

func (a Action) String() string {
	switch a {
	case Connect:
		return "connect"
	case Disconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Rule applies Action to Downstream whenever Upstream enters When.
type Rule struct {
	Upstream   channel.Kind
	When       channel.State
	Downstream channel.Kind
	Action     Action
}

// DefaultRules ties the stats channel to the video channel. Stats is released
// as soon as video starts closing, so it is never Open while video is not.
var DefaultRules = []Rule{
	{Upstream: channel.Video, When: channel.Open, Downstream: channel.Stats, Action: Connect},
	{Upstream: channel.Video, When: channel.Closing, Downstream: channel.Stats, Action: Disconnect},
	{Upstream: channel.Video, When: channel.Closed, Downstream: channel.Stats, Action: Disconnect},
}

// Channel is the part of channel.Manager the coordinator drives.
type Channel interface {
	Kind() channel.Kind
	State() channel.State
	Connect() error
	Disconnect()
	Subscribe(channel.Listener)
	SetOpenGuard(func() bool)
}

// Coordinator applies rules synchronously inside the upstream transition, so
// the downstream reacts in the same loop turn.
//
// A connect that arrives while the downstream is still Closing cannot be
// applied yet. It is held and replayed when the downstream settles to Idle,
// provided the upstream is still in the rule's state by then.
type Coordinator struct {
	rules    []Rule
	channels map[channel.Kind]Channel
	deferred map[channel.Kind]Rule
	logger   *slog.Logger
}

// New creates a coordinator for rules.
func New(rules []Rule, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		rules:    append([]Rule(nil), rules...),
		channels: make(map[channel.Kind]Channel),
		deferred: make(map[channel.Kind]Rule),
		logger:   logger,
	}
}

// Rules returns the dependency table.
func (c *Coordinator) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}

// Bind subscribes to every upstream and installs open guards on downstreams
// that are connected by a rule. Downstreams may only become Open while their
// upstream is in the rule's When state.
func (c *Coordinator) Bind(channels ...Channel) error {
	for _, ch := range channels {
		c.channels[ch.Kind()] = ch
	}
	for _, r := range c.rules {
		if r.Upstream == r.Downstream {
			return fmt.Errorf("cascade rule %s->%s: channel cannot depend on itself", r.Upstream, r.Downstream)
		}
		if _, ok := c.channels[r.Upstream]; !ok {
			return fmt.Errorf("cascade rule: upstream %s not bound", r.Upstream)
		}
		if _, ok := c.channels[r.Downstream]; !ok {
			return fmt.Errorf("cascade rule: downstream %s not bound", r.Downstream)
		}
	}

	subscribed := make(map[channel.Kind]bool)
	for _, r := range c.rules {
		if !subscribed[r.Upstream] {
			subscribed[r.Upstream] = true
			c.channels[r.Upstream].Subscribe(c.onTransition)
		}
	}

	guards := make(map[channel.Kind][]Rule)
	for _, r := range c.rules {
		if r.Action == Connect {
			guards[r.Downstream] = append(guards[r.Downstream], r)
		}
	}
	for kind := range guards {
		c.channels[kind].Subscribe(c.onDownstream)
	}
	for kind, rules := range guards {
		rules := rules
		c.channels[kind].SetOpenGuard(func() bool {
			for _, r := range rules {
				if c.channels[r.Upstream].State() != r.When {
					return false
				}
			}
			return true
		})
	}
	return nil
}

func (c *Coordinator) onTransition(t channel.Transition) {
	for _, r := range c.rules {
		if r.Upstream != t.Kind || r.When != t.To {
			continue
		}
		down := c.channels[r.Downstream]
		c.logger.Debug("cascade",
			slog.String("upstream", r.Upstream.String()),
			slog.String("state", t.To.String()),
			slog.String("downstream", r.Downstream.String()),
			slog.String("action", r.Action.String()),
		)
		switch r.Action {
		case Connect:
			if down.State() == channel.Closing {
				c.deferred[r.Downstream] = r
				continue
			}
			c.connect(r, down)
		case Disconnect:
			delete(c.deferred, r.Downstream)
			down.Disconnect()
		}
	}
}

// onDownstream replays a held connect once the downstream has settled.
func (c *Coordinator) onDownstream(t channel.Transition) {
	if t.To != channel.Idle {
		return
	}
	r, ok := c.deferred[t.Kind]
	if !ok {
		return
	}
	delete(c.deferred, t.Kind)
	if c.channels[r.Upstream].State() != r.When {
		return
	}
	c.logger.Debug("cascade replay",
		slog.String("upstream", r.Upstream.String()),
		slog.String("downstream", r.Downstream.String()),
	)
	c.connect(r, c.channels[r.Downstream])
}

func (c *Coordinator) connect(r Rule, down Channel) {
	if err := down.Connect(); err != nil {
		c.logger.Warn("cascade connect failed",
			slog.String("downstream", r.Downstream.String()),
			slog.String("error", err.Error()),
		)
	}
}
