package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"docbridge.org/internal/artifact"
	"docbridge.org/internal/audit"
	"docbridge.org/internal/auth"
	"docbridge.org/internal/convert"
	"docbridge.org/internal/dispatch"
)

type convertResponse struct {
	Message   string                `json:"message"`
	Filenames []string              `json:"filenames"`
	Results   []dispatch.FileResult `json:"results,omitempty"`
	FileURIs  []string              `json:"file_uris,omitempty"`
}

type listFilesResponse struct {
	Files     []artifact.Artifact `json:"files"`
	TotalSize int                 `json:"total_size"`
}

// dispatcherFor builds the per-request pipeline bound to the caller's
// upstream credential.
func (a *API) dispatcherFor(credential string) *dispatch.Dispatcher {
	reg := a.newRegistry(credential)
	eng := convert.NewEngine(a.newGenerator(credential))
	return dispatch.New(eng, reg, a.events)
}

func (a *API) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	credential, ok := auth.CredentialFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing credential")
		return
	}

	if err := r.ParseMultipartForm(a.maxBodyBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart body: "+err.Error())
		return
	}
	uploads := r.MultipartForm.File["files"]
	if len(uploads) == 0 {
		writeError(w, r, http.StatusBadRequest, "no files uploaded")
		return
	}

	prompt := r.FormValue("prompt")
	background := parseBool(r.FormValue("background"), false)
	returnHTML := parseBool(r.FormValue("return_html"), true)

	reqs := make([]dispatch.Request, 0, len(uploads))
	for _, fh := range uploads {
		f, err := fh.Open()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "cannot read upload "+fh.Filename)
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "cannot read upload "+fh.Filename)
			return
		}
		if len(data) == 0 {
			writeError(w, r, http.StatusBadRequest, "empty upload "+fh.Filename)
			return
		}
		reqs = append(reqs, dispatch.Request{
			Filename:      fh.Filename,
			Data:          data,
			Prompt:        prompt,
			ReturnContent: returnHTML,
		})
	}

	d := a.dispatcherFor(credential)

	if background {
		accepted, err := d.DispatchBackground(r.Context(), reqs)
		if err != nil {
			handleArtifactError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "convert.background.accepted", map[string]any{
			"filenames": accepted,
		})
		writeJSON(w, http.StatusAccepted, convertResponse{
			Message:   "Files submitted for background processing. Converted HTML will appear in the file listing once processing completes.",
			Filenames: accepted,
		})
		return
	}

	results, err := d.DispatchSync(r.Context(), reqs)
	if err != nil {
		handleArtifactError(w, r, err)
		return
	}

	filenames := make([]string, 0, len(results))
	var uris []string
	for _, res := range results {
		filenames = append(filenames, res.Filename)
		if res.URI != "" {
			uris = append(uris, res.URI)
		}
	}
	_ = audit.LogEvent(r.Context(), "convert.sync", map[string]any{
		"filenames": filenames,
		"stored":    len(uris),
	})

	writeJSON(w, http.StatusOK, convertResponse{
		Message:   "Files processed. Converted HTML artifacts are available in the file listing.",
		Filenames: filenames,
		Results:   results,
		FileURIs:  uris,
	})
}

func (a *API) handleFilesCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	credential, ok := auth.CredentialFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing credential")
		return
	}

	pageSize, err := parsePositiveInt(r.URL.Query().Get("page_size"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	reg := a.newRegistry(credential)
	items, err := reg.List(r.Context(), pageSize)
	if err != nil {
		handleArtifactError(w, r, err)
		return
	}
	if items == nil {
		items = []artifact.Artifact{}
	}
	writeJSON(w, http.StatusOK, listFilesResponse{Files: items, TotalSize: len(items)})
}

func (a *API) handleFileResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/files/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	credential, ok := auth.CredentialFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing credential")
		return
	}
	name := "files/" + id
	reg := a.newRegistry(credential)

	switch r.Method {
	case http.MethodGet:
		info, err := reg.Info(r.Context(), name)
		if err != nil {
			handleArtifactError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	case http.MethodDelete:
		if err := reg.Delete(r.Context(), name); err != nil {
			handleArtifactError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "artifact.delete", map[string]any{
			"name": name,
		})
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "File " + name + " deleted successfully",
		})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) handleFetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	credential, ok := auth.CredentialFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing credential")
		return
	}
	uri := strings.TrimSpace(r.URL.Query().Get("uri"))
	if uri == "" {
		writeError(w, r, http.StatusBadRequest, "uri query parameter is required")
		return
	}

	reg := a.newRegistry(credential)
	content, mimeType, err := reg.Fetch(r.Context(), uri)
	if err != nil {
		handleArtifactError(w, r, err)
		return
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func parseBool(raw string, def bool) bool {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}
