// Package stylecorpus turns prior minutes documents of mixed formats into a
// single plain-text corpus used to derive style guidelines.
package stylecorpus

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"minutes-studio/internal/fallback"
)

// Separator joins the text of consecutive documents.
const Separator = "\n\n"

type Document struct {
	Name    string
	Content []byte
}

type Format int

const (
	FormatUnknown Format = iota
	FormatPlainText
	FormatDOCX
	FormatHTML
)

// errUnsupported marks files skipped because of their extension.
var errUnsupported = errors.New("unsupported style file format")

type SkipObserver func(format string)

type Extractor struct {
	logger *slog.Logger
	onSkip SkipObserver
}

func New(logger *slog.Logger, onSkip SkipObserver) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger, onSkip: onSkip}
}

// FormatOf dispatches on the lowercased file extension.
func FormatOf(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".md", ".markdown":
		return FormatPlainText
	case ".docx":
		return FormatDOCX
	case ".html", ".htm":
		return FormatHTML
	default:
		return FormatUnknown
	}
}

// Extract returns the non-empty texts of docs joined in input order. Files
// that cannot be read or have an unknown extension contribute nothing.
func (e *Extractor) Extract(docs []Document) string {
	results := fallback.Collect(docs, func(doc Document) (string, string, error) {
		text, err := extract(doc)
		return doc.Name, text, err
	})

	for _, failed := range fallback.Failures(results) {
		format := "unknown"
		if errors.Is(failed.Err, errUnsupported) {
			e.logger.Debug("style file ignored", "file", failed.Name)
		} else {
			format = formatLabel(FormatOf(failed.Name))
			e.logger.Warn("style file extraction failed", "file", failed.Name, "error", failed.Err)
		}
		if e.onSkip != nil {
			e.onSkip(format)
		}
	}

	texts := make([]string, 0, len(results))
	for _, text := range fallback.Successes(results) {
		if text = strings.TrimSpace(text); text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, Separator)
}

func extract(doc Document) (string, error) {
	switch FormatOf(doc.Name) {
	case FormatPlainText:
		return decodeText(doc.Content), nil
	case FormatDOCX:
		return extractDOCX(doc.Content)
	case FormatHTML:
		return extractHTML(doc.Content)
	default:
		return "", errUnsupported
	}
}

func decodeText(b []byte) string {
	b = bytes.TrimPrefix(b, []byte("\xef\xbb\xbf"))
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), "�")
}

func formatLabel(f Format) string {
	switch f {
	case FormatPlainText:
		return "text"
	case FormatDOCX:
		return "docx"
	case FormatHTML:
		return "html"
	default:
		return "unknown"
	}
}
