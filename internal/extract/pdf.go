package extract

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

// extractPDF concatenates the plain text of every page, adding a newline
// after each page. A PDF without a text layer is an extraction failure.
func extractPDF(path string) (text string, err error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", failure(path, "%v", err)
	}
	if !mt.Is("application/pdf") {
		return "", failure(path, "content is %s, not a PDF", mt.String())
	}

	// the parser panics on some malformed cross reference tables
	defer func() {
		if r := recover(); r != nil {
			text, err = "", failure(path, "corrupt PDF: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", failure(path, "%v", err)
	}
	defer func() { _ = f.Close() }()

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		s, perr := p.GetPlainText(nil)
		if perr != nil {
			log.Warn().Err(perr).Str("file", path).Int("page", i).Msg("skipping unreadable page")
			continue
		}
		sb.WriteString(s)
		sb.WriteString("\n")
	}

	text = sb.String()
	if strings.TrimSpace(text) == "" {
		return "", failure(path, "no extractable text layer")
	}
	return text, nil
}
