package crew

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGraphValidation(t *testing.T) {
	end := &Node{Name: NodeEnd}

	t.Run("empty graph", func(t *testing.T) {
		_, err := NewGraph()
		require.Error(t, err)
	})

	t.Run("missing start", func(t *testing.T) {
		_, err := NewGraph(&Node{Name: "a", Edges: []*Edge{{To: NodeEnd}}}, end)
		require.ErrorContains(t, err, NodeStart)
	})

	t.Run("missing end", func(t *testing.T) {
		_, err := NewGraph(&Node{Name: NodeStart, Edges: []*Edge{{To: "a"}}}, &Node{Name: "a", Edges: []*Edge{{To: NodeStart}}})
		require.ErrorContains(t, err, NodeEnd)
	})

	t.Run("unknown edge target", func(t *testing.T) {
		_, err := NewGraph(&Node{Name: NodeStart, Edges: []*Edge{{To: "missing"}}}, end)
		require.ErrorContains(t, err, "missing")
	})

	t.Run("duplicate node", func(t *testing.T) {
		_, err := NewGraph(
			&Node{Name: NodeStart, Edges: []*Edge{{To: NodeEnd}}},
			&Node{Name: NodeStart, Edges: []*Edge{{To: NodeEnd}}},
			end,
		)
		require.ErrorContains(t, err, "duplicate")
	})

	t.Run("dead end", func(t *testing.T) {
		_, err := NewGraph(&Node{Name: NodeStart, Edges: []*Edge{{To: "a"}}}, &Node{Name: "a"}, end)
		require.ErrorContains(t, err, "no outgoing edges")
	})

	t.Run("edge into start", func(t *testing.T) {
		_, err := NewGraph(&Node{Name: NodeStart, Edges: []*Edge{{To: NodeStart}}}, end)
		require.Error(t, err)
	})

	t.Run("end with edges", func(t *testing.T) {
		_, err := NewGraph(&Node{Name: NodeStart, Edges: []*Edge{{To: NodeEnd}}}, &Node{Name: NodeEnd, Edges: []*Edge{{To: NodeStart}}})
		require.Error(t, err)
	})
}

func TestCrewGraphRouting(t *testing.T) {
	g := NewCrewGraph()

	next := func(from string, in RouteInput) string {
		to, err := g.Next(from, in)
		require.NoError(t, err)
		return to
	}

	require.Equal(t, NodePlanning, next(NodeStart, RouteInput{Decision: string(RoutePlan)}))
	require.Equal(t, NodeSupervisor, next(NodeStart, RouteInput{Decision: string(RouteSkip)}))

	require.Equal(t, NodeHumanChat, next(NodePlanning, RouteInput{State: stateWithHumans("build a model")}))
	require.Equal(t, NodeSupervisor, next(NodePlanning, RouteInput{State: stateWithHumans("build a model", "approved")}))
	require.Equal(t, NodePlanning, next(NodeHumanChat, RouteInput{}))

	for _, worker := range WorkerNodes {
		require.Equal(t, worker, next(NodeSupervisor, RouteInput{Decision: worker}))
		require.Equal(t, NodeSupervisor, next(worker, RouteInput{}))
	}
	require.Equal(t, NodeReport, next(NodeSupervisor, RouteInput{Decision: ""}))
	require.Equal(t, NodeEnd, next(NodeReport, RouteInput{}))

	_, err := g.Next(NodeSupervisor, RouteInput{Decision: "unknown_agent"})
	require.ErrorContains(t, err, "no route")

	_, err = g.Next("nowhere", RouteInput{})
	require.Error(t, err)
}

func TestGraphString(t *testing.T) {
	out := NewCrewGraph().String()
	require.Contains(t, out, "__start__ -> planning_agent [plan]\n")
	require.Contains(t, out, "human_chat -> planning_agent [always]\n")
	require.Contains(t, out, "supervisor -> report_agent [delegation done]\n")
	require.Equal(t, strings.Count(out, "\n"), strings.Count(out, " -> "))
}

func TestIsInternalNode(t *testing.T) {
	require.True(t, IsInternalNode(NodeStart))
	require.True(t, IsInternalNode(NodeHumanChat))
	require.False(t, IsInternalNode(NodeSupervisor))
	require.False(t, IsInternalNode(NodeReport))
}
