// Package extract turns uploaded documents into plain text.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/seanblong/knowledgebase/pkg/models"
)

// FileType is a lower-case extension including the dot, e.g. ".pdf".
type FileType string

const (
	PDF      FileType = ".pdf"
	DOCX     FileType = ".docx"
	Text     FileType = ".txt"
	Markdown FileType = ".md"
)

// SupportedTypes lists every extension Extract accepts.
var SupportedTypes = []FileType{PDF, DOCX, Text, Markdown}

// TypeOf returns the declared type of a file name.
func TypeOf(filename string) FileType {
	return FileType(strings.ToLower(filepath.Ext(filename)))
}

// Supported reports whether ext (with or without the leading dot) can be extracted.
func Supported(ext string) bool {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	for _, t := range SupportedTypes {
		if string(t) == ext {
			return true
		}
	}
	return false
}

// Extractor is the Text Extractor used by the document manager.
type Extractor interface {
	Extract(path string, fileType FileType) (string, error)
}

// FileExtractor reads documents from the local file system.
type FileExtractor struct{}

func New() *FileExtractor {
	return &FileExtractor{}
}

// Extract returns the text of the file at path. Unknown types fail with
// models.ErrUnsupportedFormat; unreadable or corrupt content fails with
// models.ErrExtractionFailure.
func (FileExtractor) Extract(path string, fileType FileType) (string, error) {
	switch FileType(strings.ToLower(string(fileType))) {
	case PDF:
		return extractPDF(path)
	case DOCX:
		return extractDOCX(path)
	case Text, Markdown:
		return extractText(path)
	default:
		return "", fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, fileType)
	}
}

func failure(path, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", models.ErrExtractionFailure, filepath.Base(path), fmt.Sprintf(format, args...))
}
