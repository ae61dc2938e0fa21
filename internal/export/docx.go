package export

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/gomutex/godocx"
	"github.com/gomutex/godocx/docx"
)

const (
	fontName  = "Yu Gothic"
	fontSize  = 11
	fontColor = "000000"
)

var (
	reHeading  = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	reBold     = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reBullet   = regexp.MustCompile(`^(?:[\-\*]\s+|・\s*)(.+)$`)
	reNumbered = regexp.MustCompile(`^\d+[\.．)]\s+(.+)$`)
)

// DOCX renders doc as an Office Open XML document. Markdown headings,
// bullets and bold spans in the minutes body become styled runs; lines
// starting with ■ are treated as headings.
func DOCX(doc Document) ([]byte, error) {
	d, err := godocx.NewDocument()
	if err != nil {
		return nil, fmt.Errorf("create docx: %w", err)
	}

	addStyledRun(d.AddParagraph(""), doc.Title, true, 16)

	addStyledRun(d.AddParagraph(""), headingSummary, true, 14)
	for _, line := range nonEmptyLines(doc.Summary) {
		addRichText(d.AddParagraph(""), line)
	}

	addStyledRun(d.AddParagraph(""), headingMinutes, true, 14)
	addMarkdown(d, doc.Minutes)

	if strings.TrimSpace(doc.Transcript) != "" {
		addStyledRun(d.AddParagraph(""), headingTranscript, true, 14)
		for _, line := range nonEmptyLines(doc.Transcript) {
			d.AddParagraph("").AddText(line).Font(fontName).Size(fontSize).Color(fontColor)
		}
	}

	return save(d)
}

// save goes through a temporary file since the document writer targets paths.
func save(d *docx.RootDoc) ([]byte, error) {
	f, err := os.CreateTemp("", "minutes-*.docx")
	if err != nil {
		return nil, fmt.Errorf("create temp docx: %w", err)
	}
	path := f.Name()
	_ = f.Close()
	defer os.Remove(path)

	if err := d.SaveTo(path); err != nil {
		return nil, fmt.Errorf("save docx: %w", err)
	}
	return os.ReadFile(path)
}

func addMarkdown(d *docx.RootDoc, markdown string) {
	for _, line := range nonEmptyLines(markdown) {
		if line == "---" {
			continue
		}
		if m := reHeading.FindStringSubmatch(line); m != nil {
			addStyledRun(d.AddParagraph(""), m[2], true, headingSize(len(m[1])))
			continue
		}
		if strings.HasPrefix(line, "■") {
			addStyledRun(d.AddParagraph(""), line, true, 13)
			continue
		}
		if m := reBullet.FindStringSubmatch(line); m != nil {
			addRichText(d.AddParagraph(""), "・ "+m[1])
			continue
		}
		if reNumbered.MatchString(line) {
			addRichText(d.AddParagraph(""), line)
			continue
		}
		addRichText(d.AddParagraph(""), line)
	}
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func headingSize(level int) uint64 {
	switch level {
	case 1:
		return 15
	case 2:
		return 14
	case 3:
		return 13
	default:
		return 12
	}
}

func addStyledRun(p *docx.Paragraph, text string, bold bool, size uint64) {
	run := p.AddText(cleanMarkdownInline(text)).Font(fontName).Size(size).Color(fontColor)
	if bold {
		run.Bold(true)
	}
}

func addRichText(p *docx.Paragraph, text string) {
	parts := reBold.Split(text, -1)
	matches := reBold.FindAllStringSubmatch(text, -1)

	for i, part := range parts {
		if part != "" {
			p.AddText(cleanMarkdownInline(part)).Font(fontName).Size(fontSize).Color(fontColor)
		}
		if i < len(matches) {
			p.AddText(cleanMarkdownInline(matches[i][1])).Font(fontName).Size(fontSize).Color(fontColor).Bold(true)
		}
	}
}

func cleanMarkdownInline(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	s = strings.ReplaceAll(s, "`", "")
	return s
}
