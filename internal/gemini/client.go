// Package gemini is the wire client for the Generative Language API: the
// generateContent surface the conversions run on and the file store the
// artifacts live in. Adapters in this package bind an API key to the
// shared client and present the domain interfaces.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultBaseURL is the public Generative Language endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	// DefaultModel performs the PDF to HTML conversion.
	DefaultModel = "gemini-2.0-flash"

	apiKeyHeader = "x-goog-api-key"
)

// Wire-level failure classes. Adapters translate these into the domain
// taxonomies; nothing above this package sees transport shapes.
var (
	ErrUnauthorized = errors.New("gemini: unauthorized")
	ErrNotFound     = errors.New("gemini: not found")
	ErrBadRequest   = errors.New("gemini: rejected request")
	ErrUnavailable  = errors.New("gemini: unavailable")
	// ErrRecitation is the content-protection refusal: generation stopped
	// because the output would reproduce protected material.
	ErrRecitation = errors.New("gemini: recitation refusal")
)

// Client holds the process-wide upstream configuration. It is immutable
// after construction and shared across concurrent requests; the caller's
// API key travels per call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithModel(m string) Option {
	return func(c *Client) { c.model = m }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient creates a client with sensible defaults. Generation calls can
// take minutes on large documents, hence the long client timeout; callers
// bound individual calls with their request context.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model reports the configured model name.
func (c *Client) Model() string { return c.model }

// File is the upstream file-store record.
type File struct {
	Name           string    `json:"name"`
	URI            string    `json:"uri"`
	DisplayName    string    `json:"displayName"`
	MIMEType       string    `json:"mimeType"`
	State          string    `json:"state"`
	CreateTime     time.Time `json:"createTime"`
	UpdateTime     time.Time `json:"updateTime"`
	ExpirationTime time.Time `json:"expirationTime"`
}

// ValidateKey makes one lightweight authorized call to prove the key is
// accepted upstream.
func (c *Client) ValidateKey(ctx context.Context, apiKey string) error {
	resp, err := c.do(ctx, apiKey, http.MethodGet, "/v1beta/models?pageSize=1", "", nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	return statusErr(resp)
}

// GenerateRequest is one model invocation over an uploaded document.
type GenerateRequest struct {
	FileURI      string
	FileMIMEType string
	Prompt       string
	Temperature  float32
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"file_data,omitempty"`
}

type fileData struct {
	MIMEType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type generationConfig struct {
	Temperature float32 `json:"temperature"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// GenerateContent invokes the model once with a file part and a prompt
// part and returns the concatenated text of the first candidate. A
// RECITATION finish reason maps to ErrRecitation.
func (c *Client) GenerateContent(ctx context.Context, apiKey string, req GenerateRequest) (string, error) {
	body := generateContentRequest{
		Contents: []content{{
			Parts: []part{
				{FileData: &fileData{MIMEType: req.FileMIMEType, FileURI: req.FileURI}},
				{Text: req.Prompt},
			},
		}},
		GenerationConfig: &generationConfig{Temperature: req.Temperature},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	path := "/v1beta/models/" + c.model + ":generateContent"
	resp, err := c.do(ctx, apiKey, http.MethodPost, path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer drain(resp)
	if err := statusErr(resp); err != nil {
		return "", err
	}

	var out generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Candidates) == 0 {
		if out.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: %s", ErrRecitation, out.PromptFeedback.BlockReason)
		}
		return "", nil
	}
	cand := out.Candidates[0]
	if cand.FinishReason == "RECITATION" {
		return "", ErrRecitation
	}
	var text bytes.Buffer
	for _, p := range cand.Content.Parts {
		text.WriteString(p.Text)
	}
	return text.String(), nil
}

// UploadFile stores content in the file API under a display name using
// the multipart upload protocol.
func (c *Client) UploadFile(ctx context.Context, apiKey, displayName string, content []byte, mimeType string) (File, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	meta, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return File{}, fmt.Errorf("create metadata part: %w", err)
	}
	metaBody := map[string]any{"file": map[string]any{"display_name": displayName}}
	if err := json.NewEncoder(meta).Encode(metaBody); err != nil {
		return File{}, fmt.Errorf("encode metadata: %w", err)
	}

	media, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {mimeType}})
	if err != nil {
		return File{}, fmt.Errorf("create media part: %w", err)
	}
	if _, err := media.Write(content); err != nil {
		return File{}, fmt.Errorf("write media: %w", err)
	}
	if err := w.Close(); err != nil {
		return File{}, fmt.Errorf("finalize multipart: %w", err)
	}

	contentType := "multipart/related; boundary=" + w.Boundary()
	resp, err := c.do(ctx, apiKey, http.MethodPost, "/upload/v1beta/files?uploadType=multipart", contentType, &buf)
	if err != nil {
		return File{}, err
	}
	defer drain(resp)
	if err := statusErr(resp); err != nil {
		return File{}, err
	}

	var out struct {
		File File `json:"file"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return File{}, fmt.Errorf("decode upload response: %w", err)
	}
	return out.File, nil
}

// GetFile returns metadata for a remote name ("files/...").
func (c *Client) GetFile(ctx context.Context, apiKey, name string) (File, error) {
	resp, err := c.do(ctx, apiKey, http.MethodGet, "/v1beta/"+name, "", nil)
	if err != nil {
		return File{}, err
	}
	defer drain(resp)
	if err := statusErr(resp); err != nil {
		return File{}, err
	}
	var out File
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return File{}, fmt.Errorf("decode file: %w", err)
	}
	return out, nil
}

// DeleteFile removes a remote file by name.
func (c *Client) DeleteFile(ctx context.Context, apiKey, name string) error {
	resp, err := c.do(ctx, apiKey, http.MethodDelete, "/v1beta/"+name, "", nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	return statusErr(resp)
}

// FileList is one page of the remote listing.
type FileList struct {
	Files         []File `json:"files"`
	NextPageToken string `json:"nextPageToken"`
}

// ListFiles returns one page of stored files, resuming from pageToken
// when given. The service never retains cursor state between calls.
func (c *Client) ListFiles(ctx context.Context, apiKey string, pageSize int, pageToken string) (FileList, error) {
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 100
	}
	path := "/v1beta/files?pageSize=" + strconv.Itoa(pageSize)
	if pageToken != "" {
		path += "&pageToken=" + url.QueryEscape(pageToken)
	}
	resp, err := c.do(ctx, apiKey, http.MethodGet, path, "", nil)
	if err != nil {
		return FileList{}, err
	}
	defer drain(resp)
	if err := statusErr(resp); err != nil {
		return FileList{}, err
	}
	var out FileList
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return FileList{}, fmt.Errorf("decode file list: %w", err)
	}
	return out, nil
}

// ListAllFiles walks every page of the listing. Duplicate checks must see
// the complete store, not just the first page.
func (c *Client) ListAllFiles(ctx context.Context, apiKey string) ([]File, error) {
	var all []File
	token := ""
	for {
		page, err := c.ListFiles(ctx, apiKey, 0, token)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Files...)
		if page.NextPageToken == "" {
			return all, nil
		}
		token = page.NextPageToken
	}
}

func (c *Client) do(ctx context.Context, apiKey, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Connection failures and client-side timeouts are all transient
		// from the caller's point of view.
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}

// statusErr folds upstream HTTP statuses into the wire error classes.
func statusErr(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: status %d", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", ErrNotFound, resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrBadRequest, resp.StatusCode, readDetail(resp.Body))
	}
}

func readDetail(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 512))
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return string(bytes.TrimSpace(data))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
