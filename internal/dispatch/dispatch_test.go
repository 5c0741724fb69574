package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"docbridge.org/internal/artifact"
	"docbridge.org/internal/convert"
	"docbridge.org/internal/stream"
)

// echoGenerator fakes the model by reading the stored source back from
// the registry; marker strings in the document select the failure mode.
type echoGenerator struct {
	reg  artifact.Registry
	gate chan struct{} // when set, Generate blocks until the gate closes
}

func (g *echoGenerator) Generate(ctx context.Context, src convert.Source, prompt string, temperature float32) (string, error) {
	if g.gate != nil {
		<-g.gate
	}
	content, _, err := g.reg.Fetch(ctx, src.URI)
	if err != nil {
		return "", errors.Join(convert.ErrUnavailable, err)
	}
	s := string(content)
	switch {
	case strings.Contains(s, "MALFORMED"):
		return "", convert.ErrUnsupported
	case strings.Contains(s, "REFUSE"):
		return "", convert.ErrRefusal
	}
	return "<div>" + s + "</div>", nil
}

func newTestDispatcher(reg artifact.Registry, events *stream.Stream, gate chan struct{}) *Dispatcher {
	gen := &echoGenerator{reg: reg, gate: gate}
	return New(convert.NewEngine(gen), reg, events)
}

func TestDispatchSyncIsolatesPerFileFailures(t *testing.T) {
	reg := artifact.NewInMemory()
	d := newTestDispatcher(reg, nil, nil)

	reqs := []Request{
		{Filename: "one.pdf", Data: []byte("first"), ReturnContent: true},
		{Filename: "two.pdf", Data: []byte("MALFORMED"), ReturnContent: true},
		{Filename: "three.pdf", Data: []byte("third"), ReturnContent: true},
	}
	results, err := d.DispatchSync(context.Background(), reqs)
	if err != nil {
		t.Fatalf("DispatchSync: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	if results[0].Filename != "one.pdf" || results[1].Filename != "two.pdf" || results[2].Filename != "three.pdf" {
		t.Fatalf("input order not preserved: %+v", results)
	}
	if results[0].Status != string(convert.ClassSuccess) || results[2].Status != string(convert.ClassSuccess) {
		t.Fatalf("expected siblings to succeed: %+v", results)
	}
	if results[1].Status != string(convert.ClassFatal) {
		t.Fatalf("expected fatal for malformed file, got %+v", results[1])
	}
	if results[0].URI == "" || results[0].HTML != "<div>first</div>" {
		t.Fatalf("success result incomplete: %+v", results[0])
	}
	if results[1].URI != "" {
		t.Fatalf("failed file must not reference an artifact: %+v", results[1])
	}

	// Both successful HTML artifacts landed in the registry.
	for _, name := range []string{"one.html", "three.html"} {
		ok, err := artifact.Exists(context.Background(), reg, name)
		if err != nil || !ok {
			t.Fatalf("expected %s stored: %v %v", name, ok, err)
		}
	}
}

func TestDispatchSyncOmitsHTMLWhenNotRequested(t *testing.T) {
	reg := artifact.NewInMemory()
	d := newTestDispatcher(reg, nil, nil)

	results, err := d.DispatchSync(context.Background(), []Request{
		{Filename: "doc.pdf", Data: []byte("body"), ReturnContent: false},
	})
	if err != nil {
		t.Fatalf("DispatchSync: %v", err)
	}
	if results[0].Status != string(convert.ClassSuccess) {
		t.Fatalf("unexpected status: %+v", results[0])
	}
	if results[0].HTML != "" {
		t.Fatalf("html returned despite return_content=false")
	}
	if results[0].URI == "" {
		t.Fatalf("uri missing")
	}
}

func TestDispatchRejectsDuplicateNamesUpFront(t *testing.T) {
	reg := artifact.NewInMemory()
	ctx := context.Background()
	if _, err := reg.Store(ctx, "report.html", []byte("old"), "text/html"); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	d := newTestDispatcher(reg, nil, nil)
	_, err := d.DispatchSync(ctx, []Request{{Filename: "report.pdf", Data: []byte("x")}})
	if !errors.Is(err, artifact.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate against existing artifact, got %v", err)
	}

	// Collision inside one batch is rejected the same way.
	_, err = d.DispatchBackground(ctx, []Request{
		{Filename: "a.pdf", Data: []byte("x")},
		{Filename: "a.pdf", Data: []byte("y")},
	})
	if !errors.Is(err, artifact.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate within batch, got %v", err)
	}

	// The seeded artifact is untouched.
	items, err := reg.List(ctx, 0)
	if err != nil || len(items) != 1 || items[0].DisplayName != "report.html" {
		t.Fatalf("registry mutated by rejected batch: %v %+v", err, items)
	}
}

func TestDispatchDuplicateCheckSeesBeyondOneListPage(t *testing.T) {
	reg := artifact.NewInMemory()
	ctx := context.Background()

	// Push the colliding artifact past the default listing page.
	for i := 0; i < 104; i++ {
		name := fmt.Sprintf("filler-%03d.pdf", i)
		if _, err := reg.Store(ctx, name, []byte("x"), "application/pdf"); err != nil {
			t.Fatalf("seed store: %v", err)
		}
	}
	if _, err := reg.Store(ctx, "report.html", []byte("old"), "text/html"); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	d := newTestDispatcher(reg, nil, nil)
	_, err := d.DispatchSync(ctx, []Request{{Filename: "report.pdf", Data: []byte("new")}})
	if !errors.Is(err, artifact.ErrDuplicate) {
		t.Fatalf("duplicate beyond the first page not detected: %v", err)
	}

	all, err := reg.All(ctx)
	if err != nil || len(all) != 105 {
		t.Fatalf("registry mutated by rejected batch: %v, %d items", err, len(all))
	}
}

func TestDispatchBackgroundAcknowledgesBeforeCompletion(t *testing.T) {
	reg := artifact.NewInMemory()
	events := stream.New()
	gate := make(chan struct{})
	d := newTestDispatcher(reg, events, gate)

	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	eventCh := events.Subscribe(subCtx)

	reqCtx, reqCancel := context.WithCancel(context.Background())
	accepted, err := d.DispatchBackground(reqCtx, []Request{
		{Filename: "slow.pdf", Data: []byte("payload")},
	})
	if err != nil {
		t.Fatalf("DispatchBackground: %v", err)
	}
	if len(accepted) != 1 || accepted[0] != "slow.pdf" {
		t.Fatalf("unexpected acknowledgment: %v", accepted)
	}

	// Acknowledged while the conversion is still gated.
	if ok, err := artifact.Exists(context.Background(), reg, "slow.html"); err != nil || ok {
		t.Fatalf("conversion finished before gate opened: %v %v", ok, err)
	}

	// The caller going away must not cancel the detached job.
	reqCancel()
	close(gate)

	select {
	case evt := <-eventCh:
		if evt.Filename != "slow.pdf" || evt.Outcome != string(convert.ClassSuccess) || evt.Mode != string(ModeBackground) {
			t.Fatalf("unexpected event: %+v", evt)
		}
		if evt.URI == "" {
			t.Fatalf("event missing artifact uri: %+v", evt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion event")
	}

	if ok, err := artifact.Exists(context.Background(), reg, "slow.html"); err != nil || !ok {
		t.Fatalf("artifact not observable via listing: %v %v", ok, err)
	}
}

func TestDispatchSyncReportsBlockedDocuments(t *testing.T) {
	reg := artifact.NewInMemory()
	d := newTestDispatcher(reg, nil, nil)

	results, err := d.DispatchSync(context.Background(), []Request{
		{Filename: "refused.pdf", Data: []byte("REFUSE")},
	})
	if err != nil {
		t.Fatalf("DispatchSync: %v", err)
	}
	if results[0].Status != string(convert.ClassBlocked) {
		t.Fatalf("expected blocked, got %+v", results[0])
	}
	if results[0].Reason != "content-protection" {
		t.Fatalf("unexpected reason: %q", results[0].Reason)
	}
	// The source upload remains listed, the HTML artifact does not exist.
	if ok, _ := artifact.Exists(context.Background(), reg, "refused.html"); ok {
		t.Fatalf("blocked conversion must not store html")
	}
}
