package context

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/relay/pkg/models"
)

type fakeSummaryProvider struct {
	summary string
	err     error
	seen    []models.Message
}

func (f *fakeSummaryProvider) Summarize(_ context.Context, messages []models.Message, _ string) (string, error) {
	f.seen = messages
	return f.summary, f.err
}

func TestManageUnlimitedBudgetIsNoOp(t *testing.T) {
	mgr := NewManager(TurnTruncation{}, nil)
	history := []models.Message{
		msg(models.RoleUser, strings.Repeat("a", 10000)),
		msg(models.RoleAssistant, strings.Repeat("b", 10000)),
	}

	for _, maxTokens := range []int{0, -1, -100} {
		out := mgr.Manage(context.Background(), history, Budget{MaxTokens: maxTokens})
		if len(out) != len(history) {
			t.Errorf("MaxTokens=%d: expected no-op, got %d messages", maxTokens, len(out))
		}
	}
}

func TestManageBelowThresholdUnchanged(t *testing.T) {
	mgr := NewManager(TurnTruncation{}, nil)
	history := []models.Message{msg(models.RoleUser, "short")}

	out := mgr.Manage(context.Background(), history, Budget{MaxTokens: 100})
	if len(out) != 1 || out[0].Content != "short" {
		t.Errorf("expected unchanged history, got %v", out)
	}
}

// A single user message of 300 non-CJK characters estimates to ~90 tokens.
// With max_tokens=100 the ratio is 0.90 > 0.82, so compression fires; turn
// truncation finds no complete turn to discard and the halving fallback
// runs without erroring.
func TestManageSingleMessageFallsThroughToHalving(t *testing.T) {
	mgr := NewManager(TurnTruncation{}, nil)
	history := []models.Message{msg(models.RoleUser, strings.Repeat("a", 300))}

	out := mgr.Manage(context.Background(), history, Budget{MaxTokens: 100, TurnsToDiscard: 1})
	if len(out) != 1 {
		t.Fatalf("expected the single message to survive, got %d messages", len(out))
	}
	if out[0].Role != models.RoleUser {
		t.Errorf("expected user message, got %v", out[0].Role)
	}
}

func TestManageTurnTruncationShrinks(t *testing.T) {
	var history []models.Message
	history = append(history, msg(models.RoleSystem, "sys"))
	for i := 0; i < 10; i++ {
		history = append(history, msg(models.RoleUser, strings.Repeat("q", 200)))
		history = append(history, msg(models.RoleAssistant, strings.Repeat("a", 200)))
	}

	budget := Budget{MaxTokens: 700, TurnsToDiscard: 4, KeepRecent: 4}
	mgr := NewManager(TurnTruncation{}, nil)
	out := mgr.Manage(context.Background(), history, budget)

	if len(out) >= len(history) {
		t.Fatalf("expected compression, got %d -> %d messages", len(history), len(out))
	}
	if out[0].Role != models.RoleSystem {
		t.Error("system message must survive compression")
	}
	if out[1].Role != models.RoleUser {
		t.Errorf("remainder must start on a user message, got %v", out[1].Role)
	}
}

func TestManageIdempotentWhenSatisfied(t *testing.T) {
	var history []models.Message
	for i := 0; i < 20; i++ {
		history = append(history, msg(models.RoleUser, strings.Repeat("q", 100)))
		history = append(history, msg(models.RoleAssistant, strings.Repeat("a", 100)))
	}

	budget := Budget{MaxTokens: 500, TurnsToDiscard: 8, KeepRecent: 4}
	mgr := NewManager(TurnTruncation{}, nil)

	first := mgr.Manage(context.Background(), history, budget)
	if ratio(EstimateMessages(first), budget.MaxTokens) <= CompressionThreshold {
		second := mgr.Manage(context.Background(), first, budget)
		if len(second) != len(first) {
			t.Errorf("manage not idempotent: %d -> %d messages", len(first), len(second))
		}
	}
}

func TestManageAlwaysTerminatesBounded(t *testing.T) {
	// Pathological compressor that grows the input must still terminate
	// with a bounded result through the halving fallback.
	grower := compressorFunc(func(_ context.Context, msgs []models.Message, _ Budget) ([]models.Message, error) {
		out := append([]models.Message(nil), msgs...)
		out = append(out, msg(models.RoleAssistant, strings.Repeat("x", 1000)))
		return out, nil
	})

	var history []models.Message
	for i := 0; i < 12; i++ {
		history = append(history, msg(models.RoleUser, strings.Repeat("q", 500)))
		history = append(history, msg(models.RoleAssistant, strings.Repeat("a", 500)))
	}

	mgr := NewManager(grower, nil)
	out := mgr.Manage(context.Background(), history, Budget{MaxTokens: 100})
	if len(out) >= len(history)+1 {
		t.Errorf("halving fallback did not bound the result: %d messages", len(out))
	}
}

func TestManageCompressorErrorFailsOpen(t *testing.T) {
	failing := compressorFunc(func(_ context.Context, _ []models.Message, _ Budget) ([]models.Message, error) {
		return nil, errors.New("model unavailable")
	})

	var history []models.Message
	for i := 0; i < 8; i++ {
		history = append(history, msg(models.RoleUser, strings.Repeat("q", 200)))
		history = append(history, msg(models.RoleAssistant, strings.Repeat("a", 200)))
	}

	mgr := NewManager(failing, nil)
	out := mgr.Manage(context.Background(), history, Budget{MaxTokens: 200})
	// The original history is retained, then halved by the fallback.
	if len(out) == 0 {
		t.Fatal("compressor failure must not lose the whole history")
	}
}

func TestManageRepairsToolPairing(t *testing.T) {
	// Build history where halving will sever an assistant/tool pair.
	var history []models.Message
	for i := 0; i < 6; i++ {
		history = append(history, msg(models.RoleUser, strings.Repeat("q", 300)))
		history = append(history, toolCallMsg("tc-x"))
		history = append(history, toolResultMsg("tc-x"))
		history = append(history, msg(models.RoleAssistant, strings.Repeat("a", 300)))
	}

	mgr := NewManager(Identity{}, nil)
	out := mgr.Manage(context.Background(), history, Budget{MaxTokens: 300})

	for i, m := range out {
		if m.Role != models.RoleTool {
			continue
		}
		if i < 2 {
			t.Fatalf("tool message at index %d has no room for its call", i)
		}
		if !hasMatchingCall(out[:i], m.ToolCallID) {
			t.Fatalf("tool message at index %d has no matching assistant call", i)
		}
	}
}

type compressorFunc func(context.Context, []models.Message, Budget) ([]models.Message, error)

func (f compressorFunc) Compress(ctx context.Context, msgs []models.Message, b Budget) ([]models.Message, error) {
	return f(ctx, msgs, b)
}
