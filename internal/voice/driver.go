// Package voice adapts agent run output to speech. The driver accumulates
// the loop's text and feeds a text-to-speech synthesizer, yielding audio
// chunks instead of text chunks.
package voice

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/internal/tts"
)

// Options configures the voice driver.
type Options struct {
	// Streaming synthesizes the reply in chunks as deltas arrive instead
	// of one shot at the end.
	Streaming bool

	// ChunkChars is the minimum accumulated characters before a streaming
	// chunk is cut.
	// Default: 280
	ChunkChars int

	// QueueDepth bounds the synthesis backlog between the event consumer
	// and the synthesizer. A slow synthesizer applies backpressure to the
	// producer rather than buffering without bound.
	// Default: 8
	QueueDepth int

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// DefaultOptions returns the standard voice configuration.
func DefaultOptions() Options {
	return Options{
		ChunkChars: 280,
		QueueDepth: 8,
	}
}

func (o Options) sanitized() Options {
	if o.ChunkChars <= 0 {
		o.ChunkChars = 280
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = 8
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Driver turns a run's event stream into synthesized audio.
type Driver struct {
	synth tts.Synthesizer
	opts  Options
}

// NewDriver creates a voice driver over the given synthesizer.
func NewDriver(synth tts.Synthesizer, opts Options) *Driver {
	return &Driver{synth: synth, opts: opts.sanitized()}
}

// Run consumes an agent event stream and returns a channel of audio chunks,
// closed when the run and all pending synthesis finish. Error events end
// the stream after voicing the error reply so the user hears something.
func (d *Driver) Run(ctx context.Context, events <-chan agent.Event) <-chan tts.AudioChunk {
	out := make(chan tts.AudioChunk)
	// Bounded hand-off between text accumulation and synthesis.
	spans := make(chan string, d.opts.QueueDepth)

	go d.synthesizeLoop(ctx, spans, out)
	go d.consume(events, spans)
	return out
}

// consume splits the event stream into synthesis spans. In streaming mode
// text is cut at sentence-ish boundaries once enough has accumulated; in
// single-shot mode the whole reply is one span.
func (d *Driver) consume(events <-chan agent.Event, spans chan<- string) {
	defer close(spans)

	var pending strings.Builder
	flush := func() {
		if text := strings.TrimSpace(pending.String()); text != "" {
			spans <- text
		}
		pending.Reset()
	}

	for event := range events {
		switch event.Kind {
		case agent.EventDelta:
			if !d.opts.Streaming {
				continue
			}
			pending.WriteString(event.Text)
			for pending.Len() >= d.opts.ChunkChars {
				span, rest := cutSpan(pending.String(), d.opts.ChunkChars)
				if span == "" {
					break
				}
				spans <- span
				pending.Reset()
				pending.WriteString(rest)
			}
		case agent.EventFinal:
			if !d.opts.Streaming {
				pending.WriteString(event.Text)
			}
			flush()
		case agent.EventError:
			// Error replies never arrive as deltas; voice them in both
			// modes so the user hears something.
			flush()
			pending.WriteString(event.Text)
			flush()
		}
	}
}

func (d *Driver) synthesizeLoop(ctx context.Context, spans <-chan string, out chan<- tts.AudioChunk) {
	defer close(out)
	for span := range spans {
		data, err := d.synth.Synthesize(ctx, span)
		if err != nil {
			d.opts.Logger.Error("speech synthesis failed", "chars", len(span), "error", err)
			out <- tts.AudioChunk{Text: span, Err: err}
			continue
		}
		out <- tts.AudioChunk{Text: span, Data: data}
	}
}

// cutSpan splits text at the last sentence or word boundary at or before
// limit. It returns an empty span when no boundary exists yet, letting the
// caller keep accumulating. The remainder keeps its trailing whitespace so
// deltas appended to it stay separated.
func cutSpan(text string, limit int) (span, rest string) {
	if len(text) <= limit {
		return text, ""
	}
	end := limit
	for end > 0 && !utf8.RuneStart(text[end]) {
		end--
	}
	window := text[:end]
	cut := -1
	for _, sep := range []string{". ", "! ", "? ", "\n"} {
		if i := strings.LastIndex(window, sep); i > cut {
			cut = i + len(sep) - 1
		}
	}
	if cut < 0 {
		if i := strings.LastIndexByte(window, ' '); i > 0 {
			cut = i
		}
	}
	if cut < 0 {
		return "", text
	}
	return strings.TrimSpace(text[:cut+1]), text[cut+1:]
}
