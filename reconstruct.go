package crew

import "strings"

// Entry roles
const (
	EntryUser      = "user"
	EntryAssistant = "assistant"
)

// Entry is one turn of a reconstructed conversation.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Reconstruct renders a persisted message sequence in the shape the live
// display produced: each user message is an entry, and each run of agent
// output between user messages becomes one assistant entry with a header
// whenever the speaking agent changes.
func Reconstruct(msgs []Message) []Entry {
	var entries []Entry
	var run []Message
	flush := func() {
		if len(run) == 0 {
			return
		}
		if content := renderRun(run); content != "" {
			entries = append(entries, Entry{Role: EntryAssistant, Content: content})
		}
		run = nil
	}
	for _, msg := range msgs {
		if msg.IsHuman() {
			flush()
			entries = append(entries, Entry{Role: EntryUser, Content: msg.Text()})
			continue
		}
		run = append(run, msg)
	}
	flush()
	return entries
}

// renderRun renders consecutive agent and tool messages. Tool results are
// attributed to the closest preceding agent message of the run.
func renderRun(run []Message) string {
	var out strings.Builder
	var body strings.Builder
	current := ""
	writeSection := func() {
		if body.Len() == 0 {
			return
		}
		out.WriteString(AgentHeader(displayAgent(current, body.String())))
		out.WriteString(body.String())
		body.Reset()
	}
	lastAgent := ""
	for _, msg := range run {
		agent := msg.AgentName
		if msg.IsToolResult() {
			switch {
			case lastAgent != "":
				agent = lastAgent
			case msg.ToolName != "":
				agent = msg.ToolName
			default:
				agent = "tool_results"
			}
		} else {
			if agent == "" {
				agent = NodeSupervisor
			}
			lastAgent = agent
		}
		if agent != current {
			writeSection()
			current = agent
		}
		body.WriteString(RenderMessage(msg))
	}
	writeSection()
	return strings.TrimSpace(out.String())
}

// Transcript joins the assistant entries of a reconstructed conversation.
func Transcript(msgs []Message) string {
	var parts []string
	for _, entry := range Reconstruct(msgs) {
		if entry.Role == EntryAssistant {
			parts = append(parts, entry.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// HasProgress reports whether any agent output in msgs belongs in the
// progress section.
func HasProgress(msgs []Message) bool {
	for _, msg := range msgs {
		if msg.IsHuman() || msg.IsToolResult() {
			continue
		}
		agent := msg.AgentName
		if agent == "" {
			agent = NodeSupervisor
		}
		if IsProgressAgent(displayAgent(agent, msg.Text())) {
			return true
		}
	}
	return false
}
