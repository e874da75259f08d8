// Package medianame resolves the output filename advertised to clients.
// Resolution is a pure function over the upstream Content-Disposition header
// and the source URL; it never fails.
package medianame

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// DefaultName is returned whenever no usable name can be derived.
const DefaultName = "video.mp4"

// recognized container extensions; anything else gets .mp4 appended.
var recognizedExts = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".avi":  {},
	".mov":  {},
	".webm": {},
	".flv":  {},
}

// filenameToken matches a quoted or bare filename= parameter. The upstream
// header is attacker-controlled, so this stays deliberately permissive and
// the result is sanitized afterwards.
var filenameToken = regexp.MustCompile(`(?i)filename\s*=\s*"?([^";]+)"?`)

// Resolve derives the output filename from an optional Content-Disposition
// value and the source URL. The result is non-empty and carries a
// recognized video extension.
func Resolve(disposition, rawURL string) string {
	name := fromDisposition(disposition)
	if name == "" {
		name = fromURL(rawURL)
	}
	name = sanitize(name)
	if name == "" {
		return DefaultName
	}
	if _, ok := recognizedExts[strings.ToLower(path.Ext(name))]; !ok {
		name += ".mp4"
	}
	return name
}

func fromDisposition(disposition string) string {
	if disposition == "" {
		return ""
	}
	m := filenameToken.FindStringSubmatch(disposition)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(strings.Trim(m[1], `"`))
}

func fromURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	// Last path segment; a trailing slash means there is none.
	segs := strings.Split(u.Path, "/")
	return segs[len(segs)-1]
}

// sanitize strips directory components and header-breaking characters so the
// name is safe to embed in a response Content-Disposition.
func sanitize(name string) string {
	if name == "" {
		return ""
	}
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f || r == '"' {
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	if out == "." || out == ".." || out == "/" {
		return ""
	}
	return out
}
