package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestCurrentTimeDefaultsToUTC(t *testing.T) {
	out, err := CurrentTime{}.Execute(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(out, "UTC") {
		t.Errorf("got %q, want UTC suffix", out)
	}
}

func TestCurrentTimeRejectsUnknownZone(t *testing.T) {
	args := json.RawMessage(`{"timezone": "Mars/Olympus_Mons"}`)
	if _, err := (CurrentTime{}).Execute(context.Background(), args); err == nil {
		t.Fatal("want error for unknown timezone")
	}
}
