package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docbridge.org/internal/artifact"
	"docbridge.org/internal/convert"
	"docbridge.org/internal/gemini"
	"docbridge.org/internal/obs"
	"docbridge.org/internal/stream"
)

// API is the HTTP layer. One instance serves all requests; per-request
// state (credential, dispatcher) is derived inside handlers.
type API struct {
	mux     *http.ServeMux
	version string
	model   string
	events  *stream.Stream

	rateBurst    int
	ratePerSec   int
	maxBodyBytes int64

	// Upstream seams, swapped by the handler tests.
	validateKey  func(ctx context.Context, apiKey string) error
	newRegistry  func(apiKey string) artifact.Registry
	newGenerator func(apiKey string) convert.Generator
}

// New wires the API onto a shared upstream client.
func New(client *gemini.Client, events *stream.Stream, version string) *API {
	a := &API{
		mux:          http.NewServeMux(),
		version:      version,
		model:        client.Model(),
		events:       events,
		rateBurst:    20,
		ratePerSec:   10,
		maxBodyBytes: 64 << 20,
		validateKey:  client.ValidateKey,
		newRegistry: func(apiKey string) artifact.Registry {
			return gemini.NewRegistry(client, apiKey)
		},
		newGenerator: func(apiKey string) convert.Generator {
			return gemini.NewGenerator(client, apiKey)
		},
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("/v1/convert", a.handleConvert)
	a.mux.HandleFunc("/v1/files", a.handleFilesCollection)
	a.mux.HandleFunc("/v1/files/", a.handleFileResource)
	a.mux.HandleFunc("/v1/fetch", a.handleFetch)
	a.mux.HandleFunc("/v1/events", a.Stream)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", a.Root)

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = LoggingJSON(h)
	h = RequestID(h)
	h = CORS(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":        "PDF to HTML conversion API",
		"model":          a.model,
		"authentication": "POST /v1/auth/token with your upstream API key to get a bearer token",
		"usage":          "POST /v1/convert with PDF files and your bearer token; set background=true for async processing",
		"files":          "GET /v1/files lists stored artifacts (retained for 48 hours)",
	})
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "docbridge-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	// No local durable dependencies; ready as soon as the server runs.
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "docbridge-api",
		"model":   a.model,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("page_size must be an integer")
	}
	if val < min || val > max {
		return 0, errors.New("page_size must be between 1 and 1000")
	}
	return val, nil
}

// handleArtifactError folds gateway failures into the HTTP taxonomy.
func handleArtifactError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, artifact.ErrDuplicate):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, artifact.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, artifact.ErrUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "upstream file store unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
