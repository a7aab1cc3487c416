// Package tools holds the built-in tools registered by the serve command.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// CurrentTime reports the current time, optionally in a named IANA zone.
type CurrentTime struct{}

func (CurrentTime) Name() string { return "current_time" }

func (CurrentTime) Description() string {
	return "Returns the current date and time, optionally in a specific IANA timezone."
}

func (CurrentTime) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"timezone": {
				"type": "string",
				"description": "IANA timezone name, e.g. America/New_York. Defaults to UTC."
			}
		}
	}`)
}

func (CurrentTime) Execute(_ context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Timezone string `json:"timezone"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &params); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}
	loc := time.UTC
	if params.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(params.Timezone)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", params.Timezone)
		}
	}
	return time.Now().In(loc).Format(time.RFC1123), nil
}
