package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                           "/",
		"/metrics":                   "/metrics",
		"/v1/files":                  "/v1/files",
		"/v1/files/abc123":           "/v1/files/:id",
		"/v1/files/abc123/extra":     "/v1/files/abc123/extra",
		"/v1/convert":                "/v1/convert",
		"/v1/fetch?uri=files/abc123": "/v1/fetch",
		"/v1/auth/token":             "/v1/auth/token",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
