package crew

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// SupervisorMarkers appear in supervisor narration. Output containing any of
// them is attributed to the supervisor unless a planning or report agent
// wrote it.
var SupervisorMarkers = []string{
	"📋 BREAKDOWN:",
	"⏳ CURRENT:",
	"✓ COMPLETED:",
	"📋 REMAINING:",
	"📋 OVERALL NOTE",
}

// IsFinalAgent reports whether the agent's output belongs in the final
// section rather than the progress section.
func IsFinalAgent(agent string) bool {
	switch strings.ToLower(agent) {
	case NodePlanning, NodeReport:
		return true
	}
	return false
}

// IsProgressAgent reports whether the agent's output goes to the progress
// section.
func IsProgressAgent(agent string) bool {
	return agent != "" && !IsFinalAgent(agent) && !IsInternalNode(agent)
}

// displayAgent applies the supervisor narration rule to rendered output.
func displayAgent(agent, output string) string {
	if IsFinalAgent(agent) {
		return agent
	}
	for _, marker := range SupervisorMarkers {
		if strings.Contains(output, marker) {
			return NodeSupervisor
		}
	}
	return agent
}

// AgentHeader is the heading placed above an agent's output.
func AgentHeader(agent string) string {
	return "\n\n**" + strings.ToUpper(agent) + "**\n" + strings.Repeat("-", 40) + "\n\n"
}

// RenderMessage renders one message body: text verbatim, then each tool call
// as a labeled block. Tool results render as a fenced block whose info string
// is "tool_result <name>" so they can be extracted again.
func RenderMessage(msg Message) string {
	var sb strings.Builder
	if msg.Role == RoleToolResult {
		name := msg.ToolName
		if name == "" {
			name = "tool"
		}
		fmt.Fprintf(&sb, "📤 **Result from `%s`**:\n", name)
		fmt.Fprintf(&sb, "```tool_result %s\n%s\n```\n\n", name, renderContent(msg.Content))
		return sb.String()
	}
	if text := msg.Text(); text != "" {
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	for _, call := range msg.ToolCalls {
		sb.WriteString(renderToolCall(call))
	}
	return sb.String()
}

func renderContent(parts []Part) string {
	var out []string
	for _, part := range parts {
		switch part.Type {
		case PartText:
			out = append(out, part.Text)
		default:
			data, err := json.MarshalIndent(part.Data, "", "  ")
			if err != nil {
				out = append(out, fmt.Sprintf("%v", part.Data))
				continue
			}
			out = append(out, string(data))
		}
	}
	return strings.Join(out, "\n")
}

func renderToolCall(call ToolCall) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🔧 Tool: `%s`\n\n", call.Name)
	keys := make([]string, 0, len(call.Arguments))
	for key := range call.Arguments {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		switch value := call.Arguments[key].(type) {
		case string:
			if key == "code" || looksLikeCode(value) {
				fmt.Fprintf(&sb, "**📦 Args:** `%s`:\n```python\n%s\n```\n", key, value)
			} else {
				fmt.Fprintf(&sb, "**📦 Args:** `%s`: `%s`\n\n", key, value)
			}
		case map[string]any, []any:
			data, _ := json.MarshalIndent(value, "", "  ")
			fmt.Fprintf(&sb, "**📦 Args:** `%s`:\n```json\n%s\n```\n", key, data)
		default:
			fmt.Fprintf(&sb, "**📦 Args:** `%s`: `%v`\n\n", key, value)
		}
	}
	return sb.String()
}

func looksLikeCode(s string) bool {
	s = strings.TrimSpace(s)
	return strings.HasPrefix(s, "import") || strings.HasPrefix(s, "def") || strings.HasPrefix(s, "#")
}
