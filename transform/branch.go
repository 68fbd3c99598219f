package transform

import (
	"context"
	"fmt"

	"github.com/relaycore/agentcore/message"
	"github.com/relaycore/agentcore/session"
)

// BranchSummarySystemPrompt is the fixed instruction used when summarizing
// an abandoned subtree on navigation.
const BranchSummarySystemPrompt = "Summarize what was explored and changed in the branch being left, including any files read or modified, so work resumed elsewhere has the relevant context."

// readWriteTools names the tool calls whose arguments are inspected for a
// "path" field when accumulating ReadFiles/ModifiedFiles, per spec §4.9
// ("derived from read|write|edit tool calls"). A real embedder's tool
// names may differ; callers needing different names should fork this list.
var readWriteTools = map[string]string{
	"read":  "read",
	"write": "write",
	"edit":  "write",
}

// fileTrackingFromMessages walks assistant tool-call blocks to recover the
// set of files read/modified, matching the accumulation rule spec §4.9
// describes for branch_summary entries.
func fileTrackingFromMessages(messages []message.AgentMessage) session.BranchSummaryDetails {
	reads := map[string]bool{}
	writes := map[string]bool{}
	for _, m := range messages {
		if m.Role != message.RoleAssistant {
			continue
		}
		for _, call := range m.ToolCalls() {
			kind, ok := readWriteTools[call.ToolName]
			if !ok {
				continue
			}
			path, _ := call.Arguments["path"].(string)
			if path == "" {
				continue
			}
			if kind == "read" {
				reads[path] = true
			} else {
				writes[path] = true
			}
		}
	}
	return session.BranchSummaryDetails{
		ReadFiles:     keys(reads),
		ModifiedFiles: keys(writes),
	}
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// mergeDetails unions two file-tracking sets, implementing the "survive
// across summaries" accumulation rule of spec §4.9: a previously embedded
// branch_summary entry's lists are carried forward rather than discarded.
func mergeDetails(a, b session.BranchSummaryDetails) session.BranchSummaryDetails {
	reads := map[string]bool{}
	writes := map[string]bool{}
	for _, f := range a.ReadFiles {
		reads[f] = true
	}
	for _, f := range b.ReadFiles {
		reads[f] = true
	}
	for _, f := range a.ModifiedFiles {
		writes[f] = true
	}
	for _, f := range b.ModifiedFiles {
		writes[f] = true
	}
	return session.BranchSummaryDetails{ReadFiles: keys(reads), ModifiedFiles: keys(writes)}
}

// BranchSummary implements spec §4.9's branch-summarization operation:
// given a session's old leaf and a new target, find the deepest common
// ancestor, collect entries from oldLeaf back to that ancestor, prepare
// them under tokenBudget (walking newest-to-oldest so the most relevant
// content survives truncation), summarize, and return one branchSummary
// message to be added to the context on the way to the new leaf.
func BranchSummary(ctx context.Context, store *session.Store, oldLeaf, newLeaf string, tokenBudget int, summarize SummarizeFunc) (message.AgentMessage, session.BranchSummaryDetails, error) {
	ancestor, err := store.CommonAncestor(oldLeaf, newLeaf)
	if err != nil {
		return message.AgentMessage{}, session.BranchSummaryDetails{}, fmt.Errorf("transform: branch summary: %w", err)
	}

	branch, err := store.GetBranch(oldLeaf)
	if err != nil {
		return message.AgentMessage{}, session.BranchSummaryDetails{}, err
	}

	// Walk from oldLeaf back to (excluding) the ancestor, collecting
	// entries newest-to-oldest until tokenBudget is spent, then re-reverse
	// to chronological order for serialization.
	var collected []message.AgentMessage
	details := session.BranchSummaryDetails{}
	spent := 0
	for i := len(branch) - 1; i >= 0; i-- {
		id := branch[i]
		if id == ancestor {
			break
		}
		entry, ok := store.Entry(id)
		if !ok {
			continue
		}
		if entry.Type == session.KindBranchSummary && entry.Details != nil {
			details = mergeDetails(details, *entry.Details)
		}
		if entry.Type != session.KindMessage || entry.Message == nil {
			continue
		}
		cost := EstimateMessageTokens(*entry.Message)
		if spent+cost > tokenBudget && len(collected) > 0 {
			break
		}
		spent += cost
		collected = append(collected, *entry.Message)
	}
	// collected is newest-first; reverse to chronological order.
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}

	details = mergeDetails(details, fileTrackingFromMessages(collected))

	summary, err := summarize(ctx, BranchSummarySystemPrompt, SerializeTranscript(collected))
	if err != nil {
		return message.AgentMessage{}, session.BranchSummaryDetails{}, fmt.Errorf("transform: branch summarize: %w", err)
	}

	msg := message.AgentMessage{
		Role:          message.RoleCustom,
		CustomVariant: "branchSummary",
		CustomPayload: summary,
		Content:       []message.ContentBlock{{Type: message.BlockText, Text: summary}},
	}
	return msg, details, nil
}
