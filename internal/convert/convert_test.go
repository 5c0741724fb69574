package convert

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type call struct {
	prompt      string
	temperature float32
}

// scriptedGenerator replays a fixed sequence of responses and records
// every invocation.
type scriptedGenerator struct {
	calls     []call
	responses []func() (string, error)
}

func (g *scriptedGenerator) Generate(ctx context.Context, src Source, prompt string, temperature float32) (string, error) {
	g.calls = append(g.calls, call{prompt: prompt, temperature: temperature})
	idx := len(g.calls) - 1
	if idx >= len(g.responses) {
		return "", fmt.Errorf("unexpected call %d", idx+1)
	}
	return g.responses[idx]()
}

func refuse() (string, error) { return "", ErrRefusal }

func ok(s string) func() (string, error) {
	return func() (string, error) { return s, nil }
}

func testSource() Source {
	return Source{URI: "mem://files/src", MIMEType: "application/pdf"}
}

func TestConvertSucceedsFirstAttempt(t *testing.T) {
	gen := &scriptedGenerator{responses: []func() (string, error){ok("<html><body>hi</body></html>")}}
	eng := NewEngine(gen)

	out := eng.Convert(context.Background(), testSource(), "")
	if out.Class != ClassSuccess {
		t.Fatalf("expected success, got %s (%v)", out.Class, out.Cause)
	}
	if out.Attempts != 1 || len(gen.calls) != 1 {
		t.Fatalf("expected a single upstream call, got %d", len(gen.calls))
	}
	if gen.calls[0].prompt != DefaultPrompt {
		t.Fatalf("expected default prompt, got %q", gen.calls[0].prompt)
	}
	if out.HTML != "<html><body>hi</body></html>" {
		t.Fatalf("unexpected html: %q", out.HTML)
	}
}

func TestConvertUsesCallerPrompt(t *testing.T) {
	gen := &scriptedGenerator{responses: []func() (string, error){ok("<p>x</p>")}}
	NewEngine(gen).Convert(context.Background(), testSource(), "summarize the tables")
	if gen.calls[0].prompt != "summarize the tables" {
		t.Fatalf("caller prompt not used: %q", gen.calls[0].prompt)
	}
}

func TestConvertBlockedAfterThreeDistinctAttempts(t *testing.T) {
	gen := &scriptedGenerator{responses: []func() (string, error){refuse, refuse, refuse}}
	out := NewEngine(gen).Convert(context.Background(), testSource(), "")

	if out.Class != ClassBlocked {
		t.Fatalf("expected blocked, got %s", out.Class)
	}
	if out.Reason != "content-protection" {
		t.Fatalf("unexpected reason: %q", out.Reason)
	}
	if out.Attempts != MaxAttempts || len(gen.calls) != MaxAttempts {
		t.Fatalf("expected exactly %d attempts, got %d", MaxAttempts, len(gen.calls))
	}

	seenPrompts := map[string]bool{}
	for i, c := range gen.calls {
		if seenPrompts[c.prompt] {
			t.Fatalf("prompt repeated on attempt %d", i+1)
		}
		seenPrompts[c.prompt] = true
		if i > 0 && c.temperature <= gen.calls[i-1].temperature {
			t.Fatalf("temperature not monotonically increasing: %v", gen.calls)
		}
	}
}

func TestConvertEscalatesOnRefusalThenSucceeds(t *testing.T) {
	gen := &scriptedGenerator{responses: []func() (string, error){refuse, ok("<p>rephrased</p>")}}
	out := NewEngine(gen).Convert(context.Background(), testSource(), "")
	if out.Class != ClassSuccess || out.Attempts != 2 {
		t.Fatalf("expected success on attempt 2, got %s after %d", out.Class, out.Attempts)
	}
	if gen.calls[1].prompt != ParaphrasePrompt {
		t.Fatalf("expected paraphrase prompt on retry, got %q", gen.calls[1].prompt)
	}
}

func TestConvertEmptyCompletionConsumesRetrySlot(t *testing.T) {
	gen := &scriptedGenerator{responses: []func() (string, error){ok(""), ok("<p>better</p>")}}
	out := NewEngine(gen).Convert(context.Background(), testSource(), "")
	if out.Class != ClassSuccess || out.Attempts != 2 {
		t.Fatalf("expected success on attempt 2, got %s after %d", out.Class, out.Attempts)
	}
}

func TestConvertAllEmptyCompletionsNotReportedAsRefusal(t *testing.T) {
	gen := &scriptedGenerator{responses: []func() (string, error){ok(""), ok(""), ok("")}}
	out := NewEngine(gen).Convert(context.Background(), testSource(), "")

	if out.Class != ClassBlocked || out.Attempts != MaxAttempts {
		t.Fatalf("expected blocked after %d attempts, got %s after %d", MaxAttempts, out.Class, out.Attempts)
	}
	if out.Reason != "empty completion" {
		t.Fatalf("no refusal occurred, reason must say so: %q", out.Reason)
	}
}

func TestConvertMixedRefusalAndEmptyKeepsRefusalReason(t *testing.T) {
	gen := &scriptedGenerator{responses: []func() (string, error){refuse, ok(""), ok("")}}
	out := NewEngine(gen).Convert(context.Background(), testSource(), "")

	if out.Class != ClassBlocked || out.Reason != "content-protection" {
		t.Fatalf("one refusal in the ladder keeps the refusal reason, got %s %q", out.Class, out.Reason)
	}
}

func TestConvertTransientFailureStopsImmediately(t *testing.T) {
	gen := &scriptedGenerator{responses: []func() (string, error){
		func() (string, error) { return "", fmt.Errorf("generate: %w", ErrUnavailable) },
	}}
	out := NewEngine(gen).Convert(context.Background(), testSource(), "")
	if out.Class != ClassTransient {
		t.Fatalf("expected transient, got %s", out.Class)
	}
	if len(gen.calls) != 1 {
		t.Fatalf("transient failure must not burn retry slots, got %d calls", len(gen.calls))
	}
	if !errors.Is(out.Cause, ErrUnavailable) {
		t.Fatalf("cause lost: %v", out.Cause)
	}
}

func TestConvertFatalFailureNoRetries(t *testing.T) {
	gen := &scriptedGenerator{responses: []func() (string, error){
		func() (string, error) { return "", fmt.Errorf("generate: %w", ErrUnsupported) },
	}}
	out := NewEngine(gen).Convert(context.Background(), testSource(), "")
	if out.Class != ClassFatal {
		t.Fatalf("expected fatal, got %s", out.Class)
	}
	if len(gen.calls) != 1 {
		t.Fatalf("fatal failure must not retry, got %d calls", len(gen.calls))
	}
}

func TestCleanHTMLStripsFences(t *testing.T) {
	cases := map[string]string{
		"```html\n<p>a</p>\n```": "<p>a</p>",
		"```\n<p>b</p>\n```":     "<p>b</p>",
		"  <p>c</p>  ":           "<p>c</p>",
		"":                       "",
	}
	for in, want := range cases {
		if got := CleanHTML(in); got != want {
			t.Fatalf("CleanHTML(%q)=%q, want %q", in, got, want)
		}
	}
}
