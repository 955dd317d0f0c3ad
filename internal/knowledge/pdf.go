package knowledge

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// MaxPDFPages limits the number of pages to process
	MaxPDFPages = 500

	// MinBlockLength drops headers, footers and other fragments
	MinBlockLength = 30

	// paragraphGap is the vertical gap, in line heights, that starts a new block
	paragraphGap = 1.5
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	digitsOnly = regexp.MustCompile(`^\d+$`)
)

// ExtractPDFBlocks returns the cleaned text blocks of a PDF in document order.
//
// This is a best-effort heuristic. Blocks shorter than MinBlockLength or made
// only of digits are dropped, and blocks that look like a mis-decoded copy of
// other text (an underscore, or more 'r' than 's') are skipped.
func ExtractPDFBlocks(data []byte) (blocks []string, err error) {
	// the pdf package panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			blocks, err = nil, fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	totalPages := pdfReader.NumPage()
	if totalPages > MaxPDFPages {
		return nil, fmt.Errorf("PDF has too many pages (%d), max allowed is %d", totalPages, MaxPDFPages)
	}

	blocks = []string{}
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		page := pdfReader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		for _, raw := range pageBlocks(page) {
			if cleaned, ok := cleanBlock(raw); ok {
				blocks = append(blocks, cleaned)
			}
		}
	}

	return blocks, nil
}

// pageBlocks skips a page whose content stream cannot be interpreted
func pageBlocks(page pdf.Page) (blocks []string) {
	defer func() {
		if r := recover(); r != nil {
			blocks = nil
		}
	}()
	return groupBlocks(page.Content().Text)
}

type textLine struct {
	y    float64
	size float64
	text strings.Builder
}

// groupBlocks rebuilds the page's lines from positioned glyphs, in content
// stream order, and splits them into blocks wherever the baseline jumps by
// more than paragraphGap line heights or moves back up the page.
func groupBlocks(texts []pdf.Text) []string {
	var lines []*textLine
	for _, t := range texts {
		size := math.Max(t.FontSize, 1)
		if n := len(lines); n > 0 && math.Abs(lines[n-1].y-t.Y) <= size/2 {
			lines[n-1].text.WriteString(t.S)
			continue
		}
		line := &textLine{y: t.Y, size: size}
		line.text.WriteString(t.S)
		lines = append(lines, line)
	}

	var blocks []string
	var current []string
	for i, line := range lines {
		if i > 0 {
			prev := lines[i-1]
			gap := prev.y - line.y
			if gap < 0 || gap > paragraphGap*math.Max(prev.size, line.size) {
				blocks = append(blocks, strings.Join(current, "\n"))
				current = nil
			}
		}
		current = append(current, line.text.String())
	}
	if len(current) > 0 {
		blocks = append(blocks, strings.Join(current, "\n"))
	}
	return blocks
}

// cleanBlock applies the block filters and collapses whitespace
func cleanBlock(raw string) (string, bool) {
	text := strings.TrimSpace(strings.ReplaceAll(raw, "\x00", ""))

	if len(text) < MinBlockLength || digitsOnly.MatchString(text) {
		return "", false
	}
	if looksGarbled(text) {
		return "", false
	}

	text = whitespace.ReplaceAllString(text, " ")
	return text, text != ""
}

func looksGarbled(text string) bool {
	return strings.Contains(text, "_") || strings.Count(text, "r") > strings.Count(text, "s")
}
