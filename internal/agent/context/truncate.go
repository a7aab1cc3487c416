package context

import "github.com/haasonsaas/relay/pkg/models"

// splitSystemPrefix separates the leading system messages from the rest of
// the sequence. Truncation never touches the system prefix.
func splitSystemPrefix(msgs []models.Message) (system, rest []models.Message) {
	i := 0
	for i < len(msgs) && msgs[i].Role == models.RoleSystem {
		i++
	}
	return msgs[:i], msgs[i:]
}

// reanchorToUser advances the sequence start to the next user message so the
// remainder never begins mid-turn. Returns an empty slice when no user
// message remains.
func reanchorToUser(msgs []models.Message) []models.Message {
	for i := range msgs {
		if msgs[i].Role == models.RoleUser {
			return msgs[i:]
		}
	}
	return nil
}

// DropOldestTurns removes the oldest complete turns from the sequence,
// keeping the system prefix and at least keepRecent trailing messages
// intact. A turn starts at each user message. The second return value is
// false when no complete turn could be discarded.
func DropOldestTurns(msgs []models.Message, turns, keepRecent int) ([]models.Message, bool) {
	if turns <= 0 {
		return msgs, false
	}
	system, rest := splitSystemPrefix(msgs)
	if len(rest) <= keepRecent {
		return msgs, false
	}

	var userStarts []int
	for i := range rest {
		if rest[i].Role == models.RoleUser {
			userStarts = append(userStarts, i)
		}
	}
	// Dropping N turns advances the start to the (N+1)-th user message.
	if len(userStarts) <= turns {
		return msgs, false
	}
	cut := userStarts[turns]

	// Never cut into the protected tail. Fall back to the latest turn
	// boundary that still preserves keepRecent messages.
	limit := len(rest) - keepRecent
	if cut > limit {
		cut = -1
		for _, s := range userStarts {
			if s > 0 && s <= limit {
				cut = s
			}
		}
	}
	if cut <= 0 {
		return msgs, false
	}

	out := make([]models.Message, 0, len(system)+len(rest)-cut)
	out = append(out, system...)
	out = append(out, rest[cut:]...)
	return out, true
}

// Halve removes the middle 50% of the non-system portion and re-anchors the
// trailing half to start on a user message. It always terminates with a
// bounded result regardless of how pathological the input is.
func Halve(msgs []models.Message) []models.Message {
	system, rest := splitSystemPrefix(msgs)
	if len(rest) < 2 {
		return msgs
	}
	lo := len(rest) / 4
	hi := len(rest) - len(rest)/4
	if hi <= lo {
		return msgs
	}

	tail := reanchorToUser(rest[hi:])
	out := make([]models.Message, 0, len(system)+lo+len(tail))
	out = append(out, system...)
	out = append(out, rest[:lo]...)
	out = append(out, tail...)
	return out
}

// RepairToolPairing drops tool messages whose matching assistant tool call
// was truncated away, preserving the tool-call/tool-result adjacency
// invariant. A tool message survives only when it has at least two
// preceding messages and a preceding assistant message issued the matching
// call.
func RepairToolPairing(msgs []models.Message) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for i := range msgs {
		m := msgs[i]
		if m.Role != models.RoleTool {
			out = append(out, m)
			continue
		}
		if len(out) < 2 {
			continue
		}
		if !hasMatchingCall(out, m.ToolCallID) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func hasMatchingCall(prefix []models.Message, toolCallID string) bool {
	for i := len(prefix) - 1; i >= 0; i-- {
		m := prefix[i]
		if m.Role != models.RoleAssistant || len(m.ToolCalls) == 0 {
			continue
		}
		if toolCallID == "" {
			return true
		}
		for _, tc := range m.ToolCalls {
			if tc.ID == toolCallID {
				return true
			}
		}
	}
	return false
}
