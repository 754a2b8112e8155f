package crew

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestMessageIdentifier(t *testing.T) {
	t.Run("native id wins", func(t *testing.T) {
		msg := NewAgentMessage(NodeResearch, "found it")
		msg.ID = "msg-1"
		require.Equal(t, "msg-1", msg.Identifier())
	})

	t.Run("tool result falls back to call id", func(t *testing.T) {
		msg := NewToolResultMessage(NodeResearch, "search", "call_7", "3 hits")
		require.Equal(t, "tool_call:call_7", msg.Identifier())
	})

	t.Run("signature is deterministic", func(t *testing.T) {
		a := NewAgentMessage(NodeData, "rows cleaned",
			ToolCall{Name: "python_repl", Arguments: map[string]any{"code": "df.dropna()", "n": 1}})
		b := NewAgentMessage(NodeData, "rows cleaned",
			ToolCall{Name: "python_repl", Arguments: map[string]any{"n": 1, "code": "df.dropna()"}})
		require.True(t, strings.HasPrefix(a.Identifier(), "signature:"))
		require.Len(t, a.Identifier(), len("signature:")+16)
		require.Equal(t, a.Identifier(), b.Identifier())
	})

	t.Run("signature depends on agent and content", func(t *testing.T) {
		a := NewAgentMessage(NodeData, "rows cleaned")
		require.NotEqual(t, a.Identifier(), NewAgentMessage(NodeResearch, "rows cleaned").Identifier())
		require.NotEqual(t, a.Identifier(), NewAgentMessage(NodeData, "rows dropped").Identifier())
	})

	t.Run("human messages get fresh ids", func(t *testing.T) {
		require.NotEqual(t, NewHumanMessage("hi").Identifier(), NewHumanMessage("hi").Identifier())
	})
}

func TestMessageFingerprint(t *testing.T) {
	t.Run("same content under different ids", func(t *testing.T) {
		a := NewAgentMessage(NodeReport, "## Report")
		a.ID = "first"
		b := NewAgentMessage(NodeReport, "## Report  ")
		b.ID = "second"
		require.NotEqual(t, a.Identifier(), b.Identifier())
		require.Equal(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("tool calls are part of the fingerprint", func(t *testing.T) {
		a := NewAgentMessage(NodeResearch, "", ToolCall{Name: "literature_search", Arguments: map[string]any{"query": "bbb"}})
		b := NewAgentMessage(NodeResearch, "", ToolCall{Name: "literature_search", Arguments: map[string]any{"query": "herg"}})
		require.NotEmpty(t, a.Fingerprint())
		require.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("tool results include the tool name", func(t *testing.T) {
		a := NewToolResultMessage(NodeData, "python_repl", "c1", map[string]any{"rows": 10})
		b := NewToolResultMessage(NodeData, "train_model", "c2", map[string]any{"rows": 10})
		require.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("empty message has no fingerprint", func(t *testing.T) {
		require.Empty(t, NewAgentMessage(NodeSupervisor, "   ").Fingerprint())
		require.Empty(t, Message{Role: RoleAgent}.Fingerprint())
	})
}

func TestMessageTextAndParts(t *testing.T) {
	msg := Message{
		Role: RoleAgent,
		Content: []Part{
			TextPart("a"),
			JSONPart(map[string]any{"skip": true}),
			TextPart("b"),
		},
	}
	require.Equal(t, "ab", msg.Text())
	require.False(t, msg.IsHuman())
	require.True(t, NewHumanMessage("x").IsHuman())
	require.True(t, NewToolResultMessage("a", "t", "c", nil).IsToolResult())
	require.Empty(t, NewToolResultMessage("a", "t", "c", nil).Content)
}

func TestIdentifierStableProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		agent := rapid.SampledFrom(append([]string{NodePlanning, NodeSupervisor, NodeReport}, WorkerNodes...)).Draw(t, "agent")
		text := rapid.String().Draw(t, "text")
		msg := NewAgentMessage(agent, text)
		copied := msg
		if msg.Identifier() != copied.Identifier() {
			t.Fatalf("identifier changed between copies")
		}
		if msg.Fingerprint() != copied.Fingerprint() {
			t.Fatalf("fingerprint changed between copies")
		}
	})
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "héll", truncate("héllo", 4))
	require.Equal(t, "hi", truncate("hi", 4))
}
