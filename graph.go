package crew

import (
	"fmt"
	"sort"
	"strings"
)

// Node names of the crew workflow.
const (
	NodeStart      = "__start__"
	NodePlanning   = "planning_agent"
	NodeHumanChat  = "human_chat"
	NodeSupervisor = "supervisor"
	NodeResearch   = "research_agent"
	NodePrediction = "prediction_agent"
	NodeData       = "data_agent"
	NodeReport     = "report_agent"
	NodeEnd        = "__end__"
)

// WorkerNodes are the agents the supervisor may delegate to.
var WorkerNodes = []string{NodeResearch, NodePrediction, NodeData}

// IsInternalNode reports whether updates from the named node are hidden from
// display.
func IsInternalNode(name string) bool {
	switch name {
	case NodeStart, NodeHumanChat, NodeEnd:
		return true
	}
	return false
}

// RouteInput is what an edge condition sees: the state after the node ran and
// the node's routing decision, if it made one.
type RouteInput struct {
	State    *WorkflowState
	Decision string
}

// Condition decides whether an edge is taken.
type Condition func(in RouteInput) bool

// DecisionIs returns a condition that holds when the node decided value.
func DecisionIs(value string) Condition {
	return func(in RouteInput) bool { return in.Decision == value }
}

// Edge is an outgoing transition. Edges without a condition always match.
type Edge struct {
	To   string    `json:"to"`
	When Condition `json:"-"`
	// Label describes the condition for display.
	Label string `json:"label,omitempty"`
}

// Node is one vertex of the workflow graph.
type Node struct {
	Name  string  `json:"name"`
	Edges []*Edge `json:"edges,omitempty"`
}

// Graph is a validated node/edge table. Edges are evaluated in order and the
// first whose condition holds is taken.
type Graph struct {
	nodes       []*Node
	nodesByName map[string]*Node
}

// NewGraph validates the nodes and returns a graph. NodeStart and NodeEnd
// must be present, NodeEnd must have no edges, and every edge target must
// exist.
func NewGraph(nodes ...*Node) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("graph must have at least one node")
	}
	nodesByName := make(map[string]*Node, len(nodes))
	for _, node := range nodes {
		if node.Name == "" {
			return nil, fmt.Errorf("node name required")
		}
		if _, ok := nodesByName[node.Name]; ok {
			return nil, fmt.Errorf("duplicate node %q", node.Name)
		}
		nodesByName[node.Name] = node
	}
	if err := validateGraph(nodesByName); err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}
	return &Graph{nodes: nodes, nodesByName: nodesByName}, nil
}

func validateGraph(nodesByName map[string]*Node) error {
	if _, ok := nodesByName[NodeStart]; !ok {
		return fmt.Errorf("node %q required", NodeStart)
	}
	end, ok := nodesByName[NodeEnd]
	if !ok {
		return fmt.Errorf("node %q required", NodeEnd)
	}
	if len(end.Edges) > 0 {
		return fmt.Errorf("node %q cannot have outgoing edges", NodeEnd)
	}
	for _, node := range nodesByName {
		if node.Name != NodeEnd && len(node.Edges) == 0 {
			return fmt.Errorf("node %q has no outgoing edges", node.Name)
		}
		for _, edge := range node.Edges {
			if _, ok := nodesByName[edge.To]; !ok {
				return fmt.Errorf("edge from %q to node %q not found", node.Name, edge.To)
			}
			if edge.To == NodeStart {
				return fmt.Errorf("edge from %q cannot target %q", node.Name, NodeStart)
			}
		}
	}
	return nil
}

// Node returns a node by name.
func (g *Graph) Node(name string) (*Node, bool) {
	node, ok := g.nodesByName[name]
	return node, ok
}

// Nodes returns the nodes in declaration order.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// NodeNames returns the sorted names of all nodes.
func (g *Graph) NodeNames() []string {
	names := make([]string, 0, len(g.nodesByName))
	for name := range g.nodesByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Next evaluates the outgoing edges of from and returns the target of the
// first edge that matches.
func (g *Graph) Next(from string, in RouteInput) (string, error) {
	node, ok := g.nodesByName[from]
	if !ok {
		return "", fmt.Errorf("node %q not found", from)
	}
	for _, edge := range node.Edges {
		if edge.When == nil || edge.When(in) {
			return edge.To, nil
		}
	}
	return "", fmt.Errorf("no route from %q for decision %q", from, in.Decision)
}

// String renders the edge table, one edge per line.
func (g *Graph) String() string {
	var sb strings.Builder
	for _, node := range g.nodes {
		for _, edge := range node.Edges {
			label := edge.Label
			if label == "" {
				label = "always"
			}
			fmt.Fprintf(&sb, "%s -> %s [%s]\n", node.Name, edge.To, label)
		}
	}
	return sb.String()
}

// NewCrewGraph returns the plan, review, delegate and report workflow.
func NewCrewGraph() *Graph {
	var supervisorEdges []*Edge
	for _, worker := range WorkerNodes {
		supervisorEdges = append(supervisorEdges, &Edge{
			To:    worker,
			When:  DecisionIs(worker),
			Label: "delegate " + worker,
		})
	}
	supervisorEdges = append(supervisorEdges, &Edge{
		To:    NodeReport,
		When:  DecisionIs(""),
		Label: "delegation done",
	})

	nodes := []*Node{
		{Name: NodeStart, Edges: []*Edge{
			{To: NodePlanning, When: DecisionIs(string(RoutePlan)), Label: "plan"},
			{To: NodeSupervisor, When: DecisionIs(string(RouteSkip)), Label: "skip"},
		}},
		{Name: NodePlanning, Edges: []*Edge{
			{To: NodeSupervisor, When: func(in RouteInput) bool {
				return RouteFromPlanning(in.State) == NodeSupervisor
			}, Label: "plan approved"},
			{To: NodeHumanChat, Label: "review"},
		}},
		{Name: NodeHumanChat, Edges: []*Edge{{To: NodePlanning}}},
		{Name: NodeSupervisor, Edges: supervisorEdges},
	}
	for _, worker := range WorkerNodes {
		nodes = append(nodes, &Node{Name: worker, Edges: []*Edge{{To: NodeSupervisor}}})
	}
	nodes = append(nodes,
		&Node{Name: NodeReport, Edges: []*Edge{{To: NodeEnd}}},
		&Node{Name: NodeEnd},
	)
	g, err := NewGraph(nodes...)
	if err != nil {
		panic(err)
	}
	return g
}
