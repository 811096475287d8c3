package util

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

func Normalize(s string) string {
	return norm.NFKD.String(s)
}

// SanitizeFilename reduces a client supplied file name to a safe base name:
// directory components are dropped, the name is NFKD-normalized and anything
// outside [A-Za-z0-9._-] is replaced with '_'. An empty result becomes "file".
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return "file"
	}
	var sb strings.Builder
	for _, r := range Normalize(name) {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining marks left over from decomposition
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	out := strings.TrimLeft(sb.String(), ".")
	if out == "" {
		return "file"
	}
	if len(out) > 128 {
		out = out[len(out)-128:]
	}
	return out
}
