package context

import (
	"testing"

	"github.com/haasonsaas/relay/pkg/models"
)

func msg(role models.Role, content string) models.Message {
	return models.Message{Role: role, Content: content}
}

func toolCallMsg(id string) models.Message {
	return models.Message{
		Role:      models.RoleAssistant,
		ToolCalls: []models.ToolCall{{ID: id, Name: "search"}},
	}
}

func toolResultMsg(id string) models.Message {
	return models.Message{Role: models.RoleTool, ToolCallID: id, Content: "result"}
}

func roles(msgs []models.Message) []models.Role {
	out := make([]models.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestDropOldestTurns(t *testing.T) {
	history := []models.Message{
		msg(models.RoleSystem, "sys"),
		msg(models.RoleUser, "q1"),
		msg(models.RoleAssistant, "a1"),
		msg(models.RoleUser, "q2"),
		msg(models.RoleAssistant, "a2"),
		msg(models.RoleUser, "q3"),
		msg(models.RoleAssistant, "a3"),
	}

	out, changed := DropOldestTurns(history, 1, 2)
	if !changed {
		t.Fatal("expected a turn to be dropped")
	}
	if out[0].Role != models.RoleSystem {
		t.Error("system message must be preserved")
	}
	if out[1].Content != "q2" {
		t.Errorf("expected remainder to start at q2, got %q", out[1].Content)
	}
	if out[1].Role != models.RoleUser {
		t.Errorf("remainder must start on a user message, got %v", out[1].Role)
	}
}

func TestDropOldestTurnsNoCompleteTurn(t *testing.T) {
	single := []models.Message{msg(models.RoleUser, "only")}
	out, changed := DropOldestTurns(single, 1, 2)
	if changed {
		t.Error("single message has no complete turn to discard")
	}
	if len(out) != 1 {
		t.Errorf("input must pass through unchanged, got %d messages", len(out))
	}
}

func TestDropOldestTurnsMoreTurnsThanHistory(t *testing.T) {
	history := []models.Message{
		msg(models.RoleUser, "q1"),
		msg(models.RoleAssistant, "a1"),
		msg(models.RoleUser, "q2"),
		msg(models.RoleAssistant, "a2"),
	}
	// Discarding 5 turns would leave nothing; the input passes through so
	// the manager can fall back to halving instead.
	out, changed := DropOldestTurns(history, 5, 2)
	if changed {
		t.Error("expected pass-through when every turn would be discarded")
	}
	if len(out) != 4 {
		t.Errorf("expected unchanged history, got %v", roles(out))
	}
}

func TestDropOldestTurnsProtectsRecentTail(t *testing.T) {
	history := []models.Message{
		msg(models.RoleUser, "q1"),
		msg(models.RoleAssistant, "a1"),
		msg(models.RoleUser, "q2"),
		msg(models.RoleAssistant, "a2"),
		msg(models.RoleUser, "q3"),
		msg(models.RoleAssistant, "a3"),
	}
	// Dropping 2 turns would cut at q3, inside the protected tail of 4;
	// the cut falls back to the q2 boundary.
	out, changed := DropOldestTurns(history, 2, 4)
	if !changed {
		t.Fatal("expected fallback to the latest safe boundary")
	}
	if len(out) != 4 || out[0].Content != "q2" {
		t.Errorf("expected remainder to start at q2, got %v", roles(out))
	}
}

func TestHalveReanchorsToUser(t *testing.T) {
	var history []models.Message
	history = append(history, msg(models.RoleSystem, "sys"))
	for i := 0; i < 8; i++ {
		history = append(history, msg(models.RoleUser, "q"))
		history = append(history, msg(models.RoleAssistant, "a"))
	}

	out := Halve(history)
	if len(out) >= len(history) {
		t.Fatalf("halving must shrink the sequence: %d -> %d", len(history), len(out))
	}
	if out[0].Role != models.RoleSystem {
		t.Error("system prefix must survive halving")
	}

	// The trailing (re-anchored) segment must start on a user message.
	rest := out[1:]
	lo := 16 / 4 // head quarter of the non-system portion
	if rest[lo].Role != models.RoleUser {
		t.Errorf("re-anchored tail starts with %v, want user", rest[lo].Role)
	}
}

func TestHalveSingleMessage(t *testing.T) {
	single := []models.Message{msg(models.RoleUser, "only")}
	out := Halve(single)
	if len(out) != 1 || out[0].Content != "only" {
		t.Errorf("halving a single message must be a no-op, got %v", out)
	}
}

func TestRepairToolPairing(t *testing.T) {
	tests := []struct {
		name  string
		input []models.Message
		want  []models.Role
	}{
		{
			name: "valid pairing kept",
			input: []models.Message{
				msg(models.RoleUser, "q"),
				toolCallMsg("tc-1"),
				toolResultMsg("tc-1"),
				msg(models.RoleAssistant, "a"),
			},
			want: []models.Role{models.RoleUser, models.RoleAssistant, models.RoleTool, models.RoleAssistant},
		},
		{
			name: "orphaned leading tool dropped",
			input: []models.Message{
				toolResultMsg("tc-1"),
				msg(models.RoleUser, "q"),
				msg(models.RoleAssistant, "a"),
			},
			want: []models.Role{models.RoleUser, models.RoleAssistant},
		},
		{
			name: "tool without matching call dropped",
			input: []models.Message{
				msg(models.RoleUser, "q"),
				msg(models.RoleAssistant, "a"),
				toolResultMsg("tc-missing"),
			},
			want: []models.Role{models.RoleUser, models.RoleAssistant},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roles(RepairToolPairing(tt.input))
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}
