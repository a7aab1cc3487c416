package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/relay/pkg/models"
)

func TestRegistryValidatesArguments(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(echoTool{}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tests := []struct {
		name      string
		args      string
		wantErr   bool
		wantMatch string
	}{
		{"valid", `{"text":"hi"}`, false, "hi"},
		{"missing required field", `{}`, true, "invalid arguments"},
		{"wrong type", `{"text": 42}`, true, "invalid arguments"},
		{"malformed json", `{"text":`, true, "invalid arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, isErr := registry.Execute(context.Background(), models.ToolCall{
				ID:        "tc-1",
				Name:      "echo",
				Arguments: json.RawMessage(tt.args),
			})
			if isErr != tt.wantErr {
				t.Fatalf("isError = %v, want %v (result %q)", isErr, tt.wantErr, result)
			}
			if !strings.Contains(result, tt.wantMatch) {
				t.Errorf("result %q must contain %q", result, tt.wantMatch)
			}
		})
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	registry := NewRegistry()
	result, isErr := registry.Execute(context.Background(), models.ToolCall{Name: "nope"})
	if !isErr || !strings.Contains(result, "unknown tool") {
		t.Errorf("got %q, isError=%v", result, isErr)
	}
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(echoTool{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := registry.Register(echoTool{}); err == nil {
		t.Error("duplicate registration must fail")
	}
}

func TestRegistryDescriptorsSorted(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(panicTool{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := registry.Register(echoTool{}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	descs := registry.Descriptors()
	if len(descs) != 2 || descs[0].Name != "echo" || descs[1].Name != "panic" {
		t.Errorf("descriptors = %+v, want name order", descs)
	}
}

func TestRegistryApprovalFlags(t *testing.T) {
	registry := NewRegistry()
	registry.RequireApproval("send_payment", " delete_account ", "")

	if !registry.RequiresApproval("send_payment") {
		t.Error("send_payment must be flagged")
	}
	if !registry.RequiresApproval("delete_account") {
		t.Error("flag names must be trimmed")
	}
	if registry.RequiresApproval("echo") {
		t.Error("unflagged tool must not require approval")
	}
}
