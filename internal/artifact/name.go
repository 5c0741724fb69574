package artifact

import (
	"path"
	"strings"
	"unicode/utf8"
)

// MaxDisplayName bounds the length of stored display names.
const MaxDisplayName = 40

// Kind is a converted-content kind with its canonical extension.
type Kind struct {
	MIMEType string
	Ext      string
}

var (
	KindPDF  = Kind{MIMEType: "application/pdf", Ext: ".pdf"}
	KindHTML = Kind{MIMEType: "text/html", Ext: ".html"}
)

// DisplayName derives the candidate display name for a converted output:
// the original filename normalized, its extension replaced with the
// kind's canonical one, truncated to MaxDisplayName without cutting into
// the extension. The result is deterministic; collision checking is the
// caller's job and collisions abort rather than rename.
func DisplayName(filename string, kind Kind) string {
	base := path.Base(strings.TrimSpace(strings.ReplaceAll(filename, "\\", "/")))
	if base == "." || base == "/" {
		base = ""
	}
	base = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, base)

	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" {
		base = "document"
	}
	name := base + kind.Ext

	if len(name) <= MaxDisplayName {
		return name
	}
	maxBase := MaxDisplayName - len(kind.Ext)
	if maxBase <= 0 {
		// Extension alone exceeds the bound; hard truncate.
		return truncateRunes(name, MaxDisplayName)
	}
	return truncateRunes(base, maxBase) + kind.Ext
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
