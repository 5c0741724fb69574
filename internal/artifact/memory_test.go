package artifact

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestInMemoryStoreRejectsDuplicateDisplayName(t *testing.T) {
	reg := NewInMemory()
	ctx := context.Background()

	first, err := reg.Store(ctx, "report.html", []byte("<html>one</html>"), "text/html")
	if err != nil {
		t.Fatalf("first store: %v", err)
	}

	if _, err := reg.Store(ctx, "report.html", []byte("<html>two</html>"), "text/html"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// First artifact is untouched.
	content, mime, err := reg.Fetch(ctx, first.URI)
	if err != nil {
		t.Fatalf("fetch after duplicate attempt: %v", err)
	}
	if string(content) != "<html>one</html>" || mime != "text/html" {
		t.Fatalf("original artifact modified: %q %q", content, mime)
	}
}

func TestInMemoryLifecycle(t *testing.T) {
	reg := NewInMemory()
	ctx := context.Background()

	a, err := reg.Store(ctx, "doc.html", []byte("<p>hi</p>"), "text/html")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if a.ExpiresAt.Sub(a.CreatedAt) != RetentionWindow {
		t.Fatalf("unexpected retention: %v", a.ExpiresAt.Sub(a.CreatedAt))
	}

	info, err := reg.Info(ctx, a.Name)
	if err != nil || info.DisplayName != "doc.html" {
		t.Fatalf("info: %v %+v", err, info)
	}

	ok, err := Exists(ctx, reg, "doc.html")
	if err != nil || !ok {
		t.Fatalf("Exists: %v %v", ok, err)
	}
	ok, err = Exists(ctx, reg, "missing.html")
	if err != nil || ok {
		t.Fatalf("Exists(missing): %v %v", ok, err)
	}

	if err := reg.Delete(ctx, a.Name); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := reg.Delete(ctx, a.Name); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := reg.Info(ctx, a.Name); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestInMemoryListOrderAndBound(t *testing.T) {
	reg := NewInMemory()
	ctx := context.Background()

	names := []string{"a.html", "b.html", "c.html"}
	for _, n := range names {
		if _, err := reg.Store(ctx, n, []byte(n), "text/html"); err != nil {
			t.Fatalf("store %s: %v", n, err)
		}
	}

	items, err := reg.List(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, n := range names {
		if items[i].DisplayName != n {
			t.Fatalf("order broken at %d: %s", i, items[i].DisplayName)
		}
	}

	items, err = reg.List(ctx, 2)
	if err != nil || len(items) != 2 {
		t.Fatalf("bounded list: %v, %d items", err, len(items))
	}
}

func TestInMemoryAllSeesPastListDefaultBound(t *testing.T) {
	reg := NewInMemory()
	ctx := context.Background()

	for i := 0; i < 120; i++ {
		name := fmt.Sprintf("doc-%03d.pdf", i)
		if _, err := reg.Store(ctx, name, []byte("x"), "application/pdf"); err != nil {
			t.Fatalf("store %s: %v", name, err)
		}
	}

	items, err := reg.List(ctx, 0)
	if err != nil || len(items) != 100 {
		t.Fatalf("default list: %v, %d items", err, len(items))
	}

	all, err := reg.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 120 {
		t.Fatalf("All returned %d items, want 120", len(all))
	}

	found, err := Exists(ctx, reg, "doc-119.pdf")
	if err != nil || !found {
		t.Fatalf("Exists must see artifacts beyond the default page: %v %v", found, err)
	}
}
