package crew

import "strings"

// ApprovalTerms are matched case-insensitively as substrings of free-text
// replies to a plan. Short terms such as "ok" also match inside longer words
// and phrases like "not good enough".
var ApprovalTerms = []string{
	"approved",
	"approve",
	"looks good",
	"send to supervisor",
	"proceed",
	"go ahead",
	"execute",
	"ok",
	"good",
	"yes",
}

// ApproveToken is the exact resume input that approves a plan under review.
const ApproveToken = "approved"

// IsApproval reports whether text contains any approval term.
func IsApproval(text string) bool {
	lower := strings.ToLower(text)
	for _, term := range ApprovalTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// RouteFromStart picks the first node of a turn. Input with no extractable
// text always plans.
func RouteFromStart(route Route, text string) string {
	if strings.TrimSpace(text) == "" {
		return NodePlanning
	}
	if route == RouteSkip {
		return NodeSupervisor
	}
	return NodePlanning
}

// RouteFromPlanning decides whether a plan goes to the supervisor or back to
// the human for review. The first human message of the thread is the original
// request and never counts as approval.
func RouteFromPlanning(state *WorkflowState) string {
	if state == nil {
		return NodeHumanChat
	}
	if state.PlanApproved {
		return NodeSupervisor
	}
	human := state.HumanMessages()
	if len(human) < 2 {
		return NodeHumanChat
	}
	if IsApproval(human[len(human)-1]) {
		return NodeSupervisor
	}
	return NodeHumanChat
}
