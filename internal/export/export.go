package export

import (
	"errors"
	"fmt"
	"strings"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatText Format = "txt"
	FormatDoc  Format = "doc"
	FormatDOCX Format = "docx"
)

// DefaultTitle is used when a document has no title.
const DefaultTitle = "議事録"

var ErrUnknownFormat = errors.New("unknown export format")

// Section headings shared by every renderer.
const (
	headingSummary    = "要約"
	headingMinutes    = "議事録"
	headingTranscript = "文字起こし"
)

type Document struct {
	Title      string
	Summary    string
	Minutes    string
	Transcript string
}

type Rendered struct {
	ContentType string
	Filename    string
	Body        []byte
}

// Render produces doc in the requested format. FormatDoc is the HTML
// document labeled as application/msword, which word processors open.
func Render(format Format, doc Document) (Rendered, error) {
	doc.Title = strings.TrimSpace(doc.Title)
	if doc.Title == "" {
		doc.Title = DefaultTitle
	}
	base := filenameBase(doc.Title)

	switch format {
	case FormatHTML:
		body, err := HTML(doc)
		if err != nil {
			return Rendered{}, err
		}
		return Rendered{ContentType: "text/html; charset=utf-8", Filename: base + ".html", Body: body}, nil
	case FormatDoc:
		body, err := HTML(doc)
		if err != nil {
			return Rendered{}, err
		}
		return Rendered{ContentType: "application/msword", Filename: base + ".doc", Body: body}, nil
	case FormatText:
		return Rendered{ContentType: "text/plain; charset=utf-8", Filename: base + ".txt", Body: Text(doc)}, nil
	case FormatDOCX:
		body, err := DOCX(doc)
		if err != nil {
			return Rendered{}, err
		}
		return Rendered{
			ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			Filename:    base + ".docx",
			Body:        body,
		}, nil
	default:
		return Rendered{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// Text renders doc as plain text with bracketed section headers.
func Text(doc Document) []byte {
	var b strings.Builder
	b.WriteString(doc.Title)
	b.WriteString("\n\n")
	writeTextSection(&b, headingSummary, doc.Summary)
	writeTextSection(&b, headingMinutes, doc.Minutes)
	if strings.TrimSpace(doc.Transcript) != "" {
		writeTextSection(&b, headingTranscript, doc.Transcript)
	}
	return []byte(strings.TrimRight(b.String(), "\n") + "\n")
}

func writeTextSection(b *strings.Builder, heading, body string) {
	b.WriteString("【" + heading + "】\n")
	b.WriteString(strings.TrimSpace(body))
	b.WriteString("\n\n")
}

func filenameBase(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, title)
	if name = strings.TrimSpace(name); name == "" {
		return "minutes"
	}
	return name
}
