// Package tts defines the text-to-speech boundary consumed by the voice
// driver.
package tts

import "context"

// Synthesizer converts a span of text into encoded audio.
//
// Thread Safety:
// Implementations must be safe for concurrent use.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// SynthesizerFunc adapts a function to the Synthesizer interface.
type SynthesizerFunc func(ctx context.Context, text string) ([]byte, error)

func (f SynthesizerFunc) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return f(ctx, text)
}

// AudioChunk is one synthesized piece of a reply. Text carries the span the
// audio was rendered from; Err marks a chunk whose synthesis failed.
type AudioChunk struct {
	Text string
	Data []byte
	Err  error
}
