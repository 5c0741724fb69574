// Package dispatch decides how each conversion request runs: inline with
// the caller blocked on the result, or handed to a detached execution
// context with an immediate acknowledgment.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"docbridge.org/internal/artifact"
	"docbridge.org/internal/convert"
	"docbridge.org/internal/obs"
	"docbridge.org/internal/stream"
)

// Mode selects the execution style for a batch.
type Mode string

const (
	ModeSync       Mode = "sync"
	ModeBackground Mode = "background"
)

// maxConcurrent bounds how many files of one batch convert at once.
const maxConcurrent = 4

// Request is one file to convert, immutable once dispatched.
type Request struct {
	Filename      string
	Data          []byte
	Prompt        string
	ReturnContent bool
}

// FileResult is the independently reported outcome for one file of a
// synchronous batch.
type FileResult struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	HTML     string `json:"html,omitempty"`
	URI      string `json:"file_uri,omitempty"`
}

// Dispatcher fans a batch out over the conversion engine and routes
// successful HTML into the artifact registry. One dispatcher serves one
// authenticated request; it carries no mutable state of its own.
type Dispatcher struct {
	engine   *convert.Engine
	registry artifact.Registry
	events   *stream.Stream
}

func New(engine *convert.Engine, registry artifact.Registry, events *stream.Stream) *Dispatcher {
	return &Dispatcher{engine: engine, registry: registry, events: events}
}

type plannedFile struct {
	req      Request
	pdfName  string
	htmlName string
}

// plan derives display names for every file and rejects the whole batch
// when any candidate collides with an existing artifact or with another
// file in the batch. Collisions abort rather than silently rename.
func (d *Dispatcher) plan(ctx context.Context, reqs []Request) ([]plannedFile, error) {
	existing, err := d.registry.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	taken := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		taken[a.DisplayName] = struct{}{}
	}

	planned := make([]plannedFile, 0, len(reqs))
	for _, req := range reqs {
		pf := plannedFile{
			req:      req,
			pdfName:  artifact.DisplayName(req.Filename, artifact.KindPDF),
			htmlName: artifact.DisplayName(req.Filename, artifact.KindHTML),
		}
		for _, name := range []string{pf.pdfName, pf.htmlName} {
			if _, ok := taken[name]; ok {
				return nil, fmt.Errorf("%w: %q", artifact.ErrDuplicate, name)
			}
			taken[name] = struct{}{}
		}
		planned = append(planned, pf)
	}
	return planned, nil
}

// DispatchSync converts every file, blocking until the batch completes.
// Results keep input order and one file's failure never aborts its
// siblings.
func (d *Dispatcher) DispatchSync(ctx context.Context, reqs []Request) ([]FileResult, error) {
	planned, err := d.plan(ctx, reqs)
	if err != nil {
		return nil, err
	}

	results := make([]FileResult, len(planned))
	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	for i, pf := range planned {
		i, pf := i, pf
		g.Go(func() error {
			results[i] = d.processFile(ctx, pf, ModeSync)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// DispatchBackground acknowledges the batch immediately and converts in a
// detached context. Failures are not surfaced to the caller; completion is
// observable through the artifact listing and the event stream.
func (d *Dispatcher) DispatchBackground(ctx context.Context, reqs []Request) ([]string, error) {
	planned, err := d.plan(ctx, reqs)
	if err != nil {
		return nil, err
	}

	accepted := make([]string, 0, len(planned))
	for _, pf := range planned {
		accepted = append(accepted, pf.pdfName)
	}

	// Keep request-scoped values but detach from the caller's cancellation;
	// the jobs outlive the acknowledgment response.
	bg := context.WithoutCancel(ctx)
	for _, pf := range planned {
		pf := pf
		go func() {
			res := d.processFile(bg, pf, ModeBackground)
			if res.Status != string(convert.ClassSuccess) {
				obs.LogRequest(map[string]any{
					"ts":       time.Now().UTC().Format(time.RFC3339Nano),
					"level":    "error",
					"msg":      "background_conversion_failed",
					"filename": res.Filename,
					"status":   res.Status,
					"reason":   res.Reason,
				})
			}
		}()
	}
	return accepted, nil
}

// processFile runs the full pipeline for one file: store the source,
// drive the retry-governed conversion, store the HTML artifact.
func (d *Dispatcher) processFile(ctx context.Context, pf plannedFile, mode Mode) FileResult {
	res := FileResult{Filename: pf.pdfName}

	src, err := d.registry.Store(ctx, pf.pdfName, pf.req.Data, artifact.KindPDF.MIMEType)
	if err != nil {
		res.Status, res.Reason = storeFailure(err)
		d.publish(res, mode)
		return res
	}

	out := d.engine.Convert(ctx, convert.Source{URI: src.URI, MIMEType: artifact.KindPDF.MIMEType}, pf.req.Prompt)
	res.Status = string(out.Class)
	res.Reason = out.Reason
	if out.Class != convert.ClassSuccess {
		d.publish(res, mode)
		return res
	}

	stored, err := d.registry.Store(ctx, pf.htmlName, []byte(out.HTML), artifact.KindHTML.MIMEType)
	if err != nil {
		res.Status, res.Reason = storeFailure(err)
		d.publish(res, mode)
		return res
	}

	res.URI = stored.URI
	if pf.req.ReturnContent {
		res.HTML = out.HTML
	}
	d.publish(res, mode)
	return res
}

func (d *Dispatcher) publish(res FileResult, mode Mode) {
	if d.events == nil {
		return
	}
	d.events.Publish(stream.ConversionEvent{
		Filename:  res.Filename,
		Outcome:   res.Status,
		Reason:    res.Reason,
		URI:       res.URI,
		Mode:      string(mode),
		Timestamp: time.Now().UTC(),
	})
}

func storeFailure(err error) (status, reason string) {
	switch {
	case errors.Is(err, artifact.ErrDuplicate):
		return "duplicate", "display name already exists"
	case errors.Is(err, artifact.ErrUnavailable):
		return string(convert.ClassTransient), "artifact store unavailable"
	default:
		return string(convert.ClassFatal), err.Error()
	}
}
