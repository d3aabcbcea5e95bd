package extract

import (
	"mime"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/encoding/htmlindex"
)

// extractText reads a plain text or markdown file verbatim. Files in a
// non UTF-8 charset are decoded to UTF-8.
func extractText(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", failure(path, "%v", err)
	}
	if len(b) == 0 {
		return "", nil
	}

	mt := mimetype.Detect(b)
	if !isText(mt) {
		return "", failure(path, "content is %s, not text", mt.String())
	}

	charset := "utf-8"
	if _, params, err := mime.ParseMediaType(mt.String()); err == nil && params["charset"] != "" {
		charset = strings.ToLower(params["charset"])
	}

	if charset == "utf-8" {
		s := strings.TrimPrefix(string(b), "\uFEFF")
		if !utf8.ValidString(s) {
			return "", failure(path, "invalid UTF-8")
		}
		return s, nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", failure(path, "unknown charset %q", charset)
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return "", failure(path, "decode %s: %v", charset, err)
	}
	return strings.TrimPrefix(string(out), "\uFEFF"), nil
}

func isText(mt *mimetype.MIME) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
