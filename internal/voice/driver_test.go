package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/haasonsaas/relay/internal/agent"
	"github.com/haasonsaas/relay/internal/tts"
)

func echoSynth() tts.Synthesizer {
	return tts.SynthesizerFunc(func(_ context.Context, text string) ([]byte, error) {
		return []byte(text), nil
	})
}

func feedEvents(events []agent.Event) <-chan agent.Event {
	ch := make(chan agent.Event, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch
}

func collectChunks(out <-chan tts.AudioChunk) []tts.AudioChunk {
	var chunks []tts.AudioChunk
	for c := range out {
		chunks = append(chunks, c)
	}
	return chunks
}

func testDriver(synth tts.Synthesizer, opts Options) *Driver {
	opts.Logger = slog.New(slog.DiscardHandler)
	return NewDriver(synth, opts)
}

func TestSingleShotSynthesis(t *testing.T) {
	d := testDriver(echoSynth(), Options{})
	events := feedEvents([]agent.Event{
		{Kind: agent.EventDelta, Text: "ignored in single-shot"},
		{Kind: agent.EventFinal, Text: "the whole reply"},
	})

	chunks := collectChunks(d.Run(context.Background(), events))
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if string(chunks[0].Data) != "the whole reply" {
		t.Errorf("audio = %q", chunks[0].Data)
	}
}

func TestStreamingSynthesisChunksInOrder(t *testing.T) {
	d := testDriver(echoSynth(), Options{Streaming: true, ChunkChars: 20})

	sentence := "First sentence here. Second sentence follows. Third one ends it."
	var events []agent.Event
	for _, word := range strings.SplitAfter(sentence, " ") {
		events = append(events, agent.Event{Kind: agent.EventDelta, Text: word})
	}
	events = append(events, agent.Event{Kind: agent.EventFinal, Text: sentence})

	chunks := collectChunks(d.Run(context.Background(), feedEvents(events)))
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want streaming to split the reply", len(chunks))
	}

	var voiced []string
	for _, c := range chunks {
		if c.Err != nil {
			t.Fatalf("chunk error: %v", c.Err)
		}
		voiced = append(voiced, c.Text)
	}
	joined := strings.Join(strings.Fields(strings.Join(voiced, " ")), " ")
	want := strings.Join(strings.Fields(sentence), " ")
	if joined != want {
		t.Errorf("voiced text = %q, want %q", joined, want)
	}
	if !strings.HasPrefix(voiced[0], "First") {
		t.Errorf("chunks out of order: %v", voiced)
	}
}

func TestSynthesisErrorsAreReported(t *testing.T) {
	boom := errors.New("no voice today")
	synth := tts.SynthesizerFunc(func(context.Context, string) ([]byte, error) {
		return nil, boom
	})
	d := testDriver(synth, Options{})

	chunks := collectChunks(d.Run(context.Background(), feedEvents([]agent.Event{
		{Kind: agent.EventFinal, Text: "hello"},
	})))
	if len(chunks) != 1 || !errors.Is(chunks[0].Err, boom) {
		t.Fatalf("chunks = %+v, want one error chunk", chunks)
	}
}

func TestStreamingErrorReplyIsVoiced(t *testing.T) {
	d := testDriver(echoSynth(), Options{Streaming: true, ChunkChars: 40})
	chunks := collectChunks(d.Run(context.Background(), feedEvents([]agent.Event{
		{Kind: agent.EventDelta, Text: "partial "},
		{Kind: agent.EventError, Text: "Sorry, something went wrong."},
	})))

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want pending text then the error reply", len(chunks))
	}
	if chunks[0].Text != "partial" {
		t.Errorf("chunks[0] = %q", chunks[0].Text)
	}
	if chunks[1].Text != "Sorry, something went wrong." {
		t.Errorf("chunks[1] = %q", chunks[1].Text)
	}
}

func TestErrorReplyIsVoiced(t *testing.T) {
	d := testDriver(echoSynth(), Options{})
	chunks := collectChunks(d.Run(context.Background(), feedEvents([]agent.Event{
		{Kind: agent.EventError, Text: "Sorry, something went wrong."},
	})))
	if len(chunks) != 1 || string(chunks[0].Data) != "Sorry, something went wrong." {
		t.Fatalf("chunks = %+v, want the error reply voiced", chunks)
	}
}
