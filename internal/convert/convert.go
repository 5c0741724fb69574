package convert

import (
	"context"
	"errors"
	"strings"
	"time"

	"docbridge.org/internal/obs"
)

// Errors a Generator must map upstream failures onto. Anything else is
// treated as non-retryable.
var (
	// ErrRefusal marks a content-protection refusal: the model declined
	// to reproduce the source material.
	ErrRefusal = errors.New("convert: content-protection refusal")
	// ErrUnavailable marks a transient upstream failure (timeout, 5xx,
	// throttling).
	ErrUnavailable = errors.New("convert: upstream unavailable")
	// ErrUnsupported marks a malformed or unsupported input document.
	ErrUnsupported = errors.New("convert: unsupported document")
)

// Source references a document already uploaded to the remote store.
type Source struct {
	URI      string
	MIMEType string
}

// Generator invokes the upstream model once.
type Generator interface {
	Generate(ctx context.Context, src Source, prompt string, temperature float32) (string, error)
}

// Class tags the terminal outcome of one conversion.
type Class string

const (
	ClassSuccess   Class = "success"
	ClassBlocked   Class = "blocked"
	ClassTransient Class = "transient"
	ClassFatal     Class = "fatal"
)

// Outcome is the single terminal result of a conversion request.
type Outcome struct {
	Class    Class
	HTML     string
	Reason   string
	Cause    error
	Attempts int
}

// MaxAttempts bounds the retry ladder. Retries are scoped to refusals and
// malformed completions; the remedy is prompt mutation, not delay.
const MaxAttempts = 3

type step struct {
	prompt      string
	temperature float32
}

// plan returns the full attempt ladder for a request: the caller's prompt
// (or the default) first, then progressively more extraction-oriented
// prompts at monotonically increasing temperatures.
func plan(callerPrompt string) [MaxAttempts]step {
	first := strings.TrimSpace(callerPrompt)
	if first == "" {
		first = DefaultPrompt
	}
	return [MaxAttempts]step{
		{prompt: first, temperature: 0.2},
		{prompt: ParaphrasePrompt, temperature: 0.5},
		{prompt: ExtractionPrompt, temperature: 0.8},
	}
}

type verdict int

const (
	verdictSuccess verdict = iota
	verdictEscalate
	verdictTransient
	verdictFatal
)

// classify maps one upstream response to the next state. Pure: no I/O,
// unit-testable without the real upstream.
func classify(html string, err error) verdict {
	switch {
	case err == nil && html != "":
		return verdictSuccess
	case err == nil:
		// Empty completion: consume a retry slot.
		return verdictEscalate
	case errors.Is(err, ErrRefusal):
		return verdictEscalate
	case errors.Is(err, ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return verdictTransient
	default:
		return verdictFatal
	}
}

// Engine drives the bounded retry ladder for one document at a time.
// Attempt state is private per call; the engine itself is stateless and
// safe for concurrent use.
type Engine struct {
	gen Generator
}

func NewEngine(gen Generator) *Engine {
	return &Engine{gen: gen}
}

// Convert runs at most MaxAttempts model invocations and returns exactly
// one terminal outcome.
func (e *Engine) Convert(ctx context.Context, src Source, prompt string) Outcome {
	start := time.Now()
	steps := plan(prompt)

	var out Outcome
	refused := false
	for i := 0; i < MaxAttempts; i++ {
		st := steps[i]
		obs.ObserveAttempt()
		raw, err := e.gen.Generate(ctx, src, st.prompt, st.temperature)
		html := CleanHTML(raw)
		out.Attempts = i + 1
		if errors.Is(err, ErrRefusal) {
			refused = true
		}

		switch classify(html, err) {
		case verdictSuccess:
			out.Class = ClassSuccess
			out.HTML = html
			obs.ObserveConversion(string(out.Class), time.Since(start))
			return out
		case verdictTransient:
			out.Class = ClassTransient
			out.Reason = "upstream unavailable"
			out.Cause = err
			obs.ObserveConversion(string(out.Class), time.Since(start))
			return out
		case verdictFatal:
			out.Class = ClassFatal
			out.Reason = "document rejected"
			out.Cause = err
			obs.ObserveConversion(string(out.Class), time.Since(start))
			return out
		case verdictEscalate:
			out.Cause = err
			// next attempt, if any remain
		}
	}

	out.Class = ClassBlocked
	// An exhausted ladder without a single refusal means the model kept
	// returning nothing; don't misreport that as content protection.
	if refused {
		out.Reason = "content-protection"
	} else {
		out.Reason = "empty completion"
	}
	obs.ObserveConversion(string(out.Class), time.Since(start))
	return out
}

// CleanHTML strips code fences the model sometimes wraps output in.
func CleanHTML(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```html")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
