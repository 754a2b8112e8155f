package crew

import (
	"context"
	"time"
)

// TurnCallbacks receives orchestrator lifecycle events
type TurnCallbacks interface {
	// Turn-level callbacks
	BeforeTurn(ctx context.Context, event *TurnEvent)
	AfterTurn(ctx context.Context, event *TurnEvent)

	// Node-level callbacks
	BeforeNode(ctx context.Context, event *NodeEvent)
	AfterNode(ctx context.Context, event *NodeEvent)
}

// TurnEvent describes a turn starting or finishing.
type TurnEvent struct {
	ThreadID   string
	Resume     bool
	Status     TurnStatus
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	NodeVisits int
	Interrupt  *Interrupt
	Error      error
}

// NodeEvent describes one node visit.
type NodeEvent struct {
	ThreadID  string
	Node      string
	Visit     int
	Decision  string
	Messages  int
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Error     error
}

// BaseTurnCallbacks provides a default implementation that does nothing
type BaseTurnCallbacks struct{}

func (n *BaseTurnCallbacks) BeforeTurn(ctx context.Context, event *TurnEvent) {}
func (n *BaseTurnCallbacks) AfterTurn(ctx context.Context, event *TurnEvent)  {}
func (n *BaseTurnCallbacks) BeforeNode(ctx context.Context, event *NodeEvent) {}
func (n *BaseTurnCallbacks) AfterNode(ctx context.Context, event *NodeEvent)  {}

// NewBaseTurnCallbacks creates a new no-op callbacks implementation.
// Embed BaseTurnCallbacks in your own callbacks to only implement what you need.
func NewBaseTurnCallbacks() TurnCallbacks {
	return &BaseTurnCallbacks{}
}

// CallbackChain fans events out to several callbacks in order.
type CallbackChain struct {
	callbacks []TurnCallbacks
}

// NewCallbackChain creates a new callback chain
func NewCallbackChain(callbacks ...TurnCallbacks) *CallbackChain {
	return &CallbackChain{callbacks: callbacks}
}

// Add adds a callback to the chain
func (c *CallbackChain) Add(callback TurnCallbacks) {
	c.callbacks = append(c.callbacks, callback)
}

func (c *CallbackChain) BeforeTurn(ctx context.Context, event *TurnEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeTurn(ctx, event)
	}
}

func (c *CallbackChain) AfterTurn(ctx context.Context, event *TurnEvent) {
	for _, callback := range c.callbacks {
		callback.AfterTurn(ctx, event)
	}
}

func (c *CallbackChain) BeforeNode(ctx context.Context, event *NodeEvent) {
	for _, callback := range c.callbacks {
		callback.BeforeNode(ctx, event)
	}
}

func (c *CallbackChain) AfterNode(ctx context.Context, event *NodeEvent) {
	for _, callback := range c.callbacks {
		callback.AfterNode(ctx, event)
	}
}
