package crew

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role identifies which variant of Message a value is.
type Role string

const (
	RoleUser       Role = "user"
	RoleAgent      Role = "agent"
	RoleToolResult Role = "tool_result"
)

// Part types
const (
	PartText = "text"
	PartJSON = "json"
	// PartFile carries the path of an attached file in Text.
	PartFile = "file"
)

// Part is one element of a message's ordered content.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data any    `json:"data,omitempty"`
}

// TextPart returns a text content part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// FilePart returns a part referencing an attached file.
func FilePart(path string) Part {
	return Part{Type: PartFile, Text: path}
}

// JSONPart returns a structured content part.
func JSONPart(data any) Part {
	return Part{Type: PartJSON, Data: data}
}

// ToolCall is a tool invocation requested by an agent message.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Message is a single conversation entry. Role selects the variant: human
// messages carry only content, agent messages may carry tool calls, and tool
// results carry the tool name and the id of the call they answer.
type Message struct {
	ID         string     `json:"id,omitempty"`
	Role       Role       `json:"role"`
	AgentName  string     `json:"agent_name,omitempty"`
	Content    []Part     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
}

// NewMessageID returns a new random message identifier.
func NewMessageID() string {
	return uuid.NewString()
}

// NewHumanMessage returns a user message with a fresh identifier. Attached
// file paths are kept as separate parts so they never show in Text.
func NewHumanMessage(text string, files ...string) Message {
	msg := Message{
		ID:      NewMessageID(),
		Role:    RoleUser,
		Content: []Part{TextPart(text)},
	}
	for _, path := range files {
		msg.Content = append(msg.Content, FilePart(path))
	}
	return msg
}

// NewAgentMessage returns an agent message attributed to the named agent.
func NewAgentMessage(agentName, text string, calls ...ToolCall) Message {
	msg := Message{
		Role:      RoleAgent,
		AgentName: agentName,
		ToolCalls: calls,
	}
	if text != "" {
		msg.Content = []Part{TextPart(text)}
	}
	return msg.normalized()
}

// NewToolResultMessage returns the result of a tool call. Content may be a
// string or any JSON-serializable structure.
func NewToolResultMessage(agentName, toolName, toolCallID string, content any) Message {
	msg := Message{
		Role:       RoleToolResult,
		AgentName:  agentName,
		ToolName:   toolName,
		ToolCallID: toolCallID,
	}
	switch c := content.(type) {
	case nil:
	case string:
		msg.Content = []Part{TextPart(c)}
	default:
		msg.Content = []Part{JSONPart(c)}
	}
	return msg.normalized()
}

func (m Message) IsHuman() bool {
	return m.Role == RoleUser
}

func (m Message) IsToolResult() bool {
	return m.Role == RoleToolResult
}

// Text returns the concatenated text parts of the message.
func (m Message) Text() string {
	var sb strings.Builder
	for _, part := range m.Content {
		if part.Type == PartText {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// Files returns the paths of the files attached to the message.
func (m Message) Files() []string {
	var files []string
	for _, part := range m.Content {
		if part.Type == PartFile {
			files = append(files, part.Text)
		}
	}
	return files
}

// Prompt returns the text with the attached file paths appended, the form
// agents receive.
func (m Message) Prompt() string {
	return promptWithFiles(m.Text(), m.Files())
}

// contentSnapshot renders every content part, structured parts as compact JSON.
func (m Message) contentSnapshot() string {
	var sb strings.Builder
	for _, part := range m.Content {
		switch part.Type {
		case PartText, PartFile:
			sb.WriteString(part.Text)
		default:
			sb.WriteString(canonicalJSON(part.Data))
		}
	}
	return sb.String()
}

// Identifier returns the stable dedup key of the message. The native id wins;
// tool results fall back to their tool call id; anything else gets a
// deterministic signature of its name and content.
func (m Message) Identifier() string {
	if m.ID != "" {
		return m.ID
	}
	if m.Role == RoleToolResult && m.ToolCallID != "" {
		return "tool_call:" + m.ToolCallID
	}
	name := m.AgentName
	if m.Role == RoleToolResult {
		name = m.ToolName
		if name == "" {
			name = "tool"
		}
	}
	if name == "" {
		name = string(m.Role)
	}
	signature := name + ":" + truncate(m.contentSnapshot(), 200)
	for _, call := range m.ToolCalls {
		signature += "|" + call.Name + ":" + truncate(canonicalJSON(call.Arguments), 200)
	}
	digest := sha1.Sum([]byte(signature))
	return "signature:" + hex.EncodeToString(digest[:])[:16]
}

// Fingerprint returns the content signature used to detect re-emission of
// logically identical output under a different identifier. It is empty when
// the message has nothing to display.
func (m Message) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString(truncate(strings.TrimSpace(m.Text()), 300))
	for _, call := range m.ToolCalls {
		sb.WriteString("TOOL:")
		sb.WriteString(call.Name)
		sb.WriteString(":")
		sb.WriteString(truncate(canonicalJSON(call.Arguments), 200))
	}
	if m.Role == RoleToolResult {
		sb.WriteString("tool_result:")
		sb.WriteString(m.ToolName)
		sb.WriteString(":")
		sb.WriteString(truncate(m.contentSnapshot(), 200))
	}
	if strings.TrimSpace(sb.String()) == "" {
		return ""
	}
	digest := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(digest[:])
}

// normalized returns the message with its structured payloads decoded the way
// a store decodes them: numbers become float64, slices []any and objects
// map[string]any. Empty slices and maps become nil.
func (m Message) normalized() Message {
	if len(m.Content) == 0 {
		m.Content = nil
	} else {
		parts := make([]Part, len(m.Content))
		for i, part := range m.Content {
			part.Data = jsonValue(part.Data)
			parts[i] = part
		}
		m.Content = parts
	}
	if len(m.ToolCalls) == 0 {
		m.ToolCalls = nil
	} else {
		calls := make([]ToolCall, len(m.ToolCalls))
		for i, call := range m.ToolCalls {
			call.Arguments = jsonObject(call.Arguments)
			calls[i] = call
		}
		m.ToolCalls = calls
	}
	return m
}

// clone returns a copy of a normalized message that shares no slices or
// maps with m.
func (m Message) clone() Message {
	if m.Content != nil {
		parts := make([]Part, len(m.Content))
		for i, part := range m.Content {
			part.Data = cloneValue(part.Data)
			parts[i] = part
		}
		m.Content = parts
	}
	if m.ToolCalls != nil {
		calls := make([]ToolCall, len(m.ToolCalls))
		for i, call := range m.ToolCalls {
			if call.Arguments != nil {
				call.Arguments = cloneValue(call.Arguments).(map[string]any)
			}
			calls[i] = call
		}
		m.ToolCalls = calls
	}
	return m
}

func jsonValue(v any) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func jsonObject(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	if obj, ok := jsonValue(m).(map[string]any); ok {
		return obj
	}
	return m
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func canonicalJSON(v any) string {
	if v == nil {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
