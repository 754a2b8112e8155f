package crew

import (
	"log/slog"
	"strings"
)

// Channel is a display section.
type Channel string

const (
	ChannelProgress Channel = "progress"
	ChannelFinal    Channel = "final"
)

// Dedup skip reasons
const (
	SkipIdentifier  = "identifier"
	SkipUser        = "user"
	SkipFingerprint = "fingerprint"
)

// Block is one agent's rendered output from one chunk.
type Block struct {
	Channel Channel
	Agent   string
	Text    string
}

// DemuxOptions configures a Demultiplexer.
type DemuxOptions struct {
	// Tracker is shared across the turns of a thread. A fresh tracker is
	// created when nil.
	Tracker *DedupTracker
	Metrics *Metrics
	Logger  *slog.Logger
}

// Demultiplexer turns a turn's event stream into display blocks, showing
// each logical message at most once.
type Demultiplexer struct {
	tracker *DedupTracker
	metrics *Metrics
	logger  *slog.Logger

	blocks           []Block
	awaitingApproval bool
	pendingPlan      string
	done             bool
}

func NewDemultiplexer(opts DemuxOptions) *Demultiplexer {
	if opts.Tracker == nil {
		opts.Tracker = NewDedupTracker()
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	return &Demultiplexer{
		tracker: opts.Tracker,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
}

// Handle processes one event. Its signature matches the orchestrator's event
// handler.
func (d *Demultiplexer) Handle(event StreamEvent) error {
	d.Process(event)
	return nil
}

// Process processes one event and returns the blocks it produced.
func (d *Demultiplexer) Process(event StreamEvent) []Block {
	switch e := event.(type) {
	case *Chunk:
		if block, ok := d.processChunk(e); ok {
			d.blocks = append(d.blocks, block)
			return []Block{block}
		}
	case *Complete:
		d.done = true
		d.awaitingApproval = e.Interrupted
		if e.Interrupted {
			d.pendingPlan = d.lastFinal()
		}
	}
	return nil
}

func (d *Demultiplexer) processChunk(chunk *Chunk) (Block, bool) {
	if chunk == nil || IsInternalNode(strings.ToLower(chunk.AgentName)) {
		return Block{}, false
	}
	var body strings.Builder
	for _, msg := range chunk.Messages {
		id := msg.Identifier()
		if d.tracker.SeenID(id) {
			d.skip(SkipIdentifier, chunk.AgentName, id)
			continue
		}
		if msg.IsHuman() {
			d.tracker.MarkID(id)
			d.skip(SkipUser, chunk.AgentName, id)
			continue
		}
		fp := msg.Fingerprint()
		if fp != "" && d.tracker.SeenFingerprint(fp) {
			d.tracker.MarkID(id)
			d.skip(SkipFingerprint, chunk.AgentName, id)
			continue
		}
		body.WriteString(RenderMessage(msg))
		d.tracker.MarkID(id)
		if fp != "" {
			d.tracker.MarkFingerprint(fp)
		}
	}
	if body.Len() == 0 {
		return Block{}, false
	}
	agent := displayAgent(chunk.AgentName, body.String())
	if agent != chunk.AgentName {
		d.logger.Debug("supervisor narration detected", "agent", chunk.AgentName)
	}
	channel := ChannelProgress
	if IsFinalAgent(agent) {
		channel = ChannelFinal
	}
	return Block{
		Channel: channel,
		Agent:   agent,
		Text:    AgentHeader(agent) + body.String(),
	}, true
}

func (d *Demultiplexer) skip(reason, agent, id string) {
	d.metrics.DedupSkipped(reason)
	d.logger.Debug("message skipped", "reason", reason, "agent", agent, "identifier", id)
}

func (d *Demultiplexer) lastFinal() string {
	for i := len(d.blocks) - 1; i >= 0; i-- {
		if d.blocks[i].Channel == ChannelFinal {
			return d.blocks[i].Text
		}
	}
	return ""
}

// Blocks returns every block produced so far, in order.
func (d *Demultiplexer) Blocks() []Block {
	return d.blocks
}

// Progress returns the concatenated progress section.
func (d *Demultiplexer) Progress() string {
	return d.join(ChannelProgress)
}

// Final returns the concatenated final section.
func (d *Demultiplexer) Final() string {
	return d.join(ChannelFinal)
}

// Transcript returns every block in emission order, trimmed.
func (d *Demultiplexer) Transcript() string {
	return strings.TrimSpace(d.join(""))
}

func (d *Demultiplexer) join(channel Channel) string {
	var sb strings.Builder
	for _, block := range d.blocks {
		if channel == "" || block.Channel == channel {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// AwaitingApproval reports whether the turn ended suspended for review.
func (d *Demultiplexer) AwaitingApproval() bool {
	return d.awaitingApproval
}

// PendingPlan is the last final block shown before the turn suspended.
func (d *Demultiplexer) PendingPlan() string {
	return d.pendingPlan
}

// Done reports whether the turn's Complete event has been seen.
func (d *Demultiplexer) Done() bool {
	return d.done
}
