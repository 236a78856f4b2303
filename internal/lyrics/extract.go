package lyrics

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Extractor turns a lyrics page into plain lyric text.
type Extractor interface {
	Extract(page io.Reader) (string, error)
}

const containerSelector = `div[data-lyrics-container="true"]`

// Markup inside a lyrics container that is not part of the lyrics.
var noiseSelectors = []string{
	`[data-exclude-from-selection="true"]`,
	`.LyricsHeader__Container-sc-d6abeb2b-1`,
	`.ContributorsCreditSong__Container-sc-3ec5a79c-0`,
	`.SongBioPreview__Container-sc-8d233cbc-0`,
	`.LyricsHeader__SongBioPreview-sc-d6abeb2b-12`,
	`button`,
	`svg`,
	`.Dropdown__Container-sc-791290da-0`,
	`[class*="Header"]`,
	`[class*="Tooltip"]`,
	`[class*="Metadata"]`,
	`[style*="opacity:0"]`,
	`[style*="position:absolute"]`,
	`[tabindex="0"][style*="pointer-events:none"]`,
}

// HTMLExtractor extracts lyrics from Genius song pages.
type HTMLExtractor struct {
	noise string
}

// NewHTMLExtractor creates an extractor with the default noise selectors.
func NewHTMLExtractor() *HTMLExtractor {
	return &HTMLExtractor{noise: strings.Join(noiseSelectors, ", ")}
}

// Extract returns the text of every lyrics container in document order,
// one line per line break, with boilerplate lines removed.
func (e *HTMLExtractor) Extract(page io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(page)
	if err != nil {
		return "", fmt.Errorf("parsing lyrics page: %w", err)
	}

	var b strings.Builder
	doc.Find(containerSelector).Each(func(_ int, container *goquery.Selection) {
		container.Find(e.noise).Remove()
		container.Find("br").Each(func(_ int, br *goquery.Selection) {
			br.ReplaceWithNodes(&html.Node{Type: html.TextNode, Data: "\n"})
		})

		if text := CleanLines(container.Text()); text != "" {
			b.WriteString(text)
			b.WriteByte('\n')
		}
	})

	return strings.TrimSpace(b.String()), nil
}

var boilerplate = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\d+\s+Contributors?$`),
	regexp.MustCompile(`(?i)^.*Lyrics$`),
	regexp.MustCompile(`(?i)^Read More`),
	regexp.MustCompile(`(?i)^Translations$`),
}

var blurbs = []string{"is a melodic piece", "collaboration between"}

// CleanLines trims every line of text, drops blank and boilerplate lines,
// and joins the rest with newlines.
func CleanLines(text string) string {
	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isBoilerplate(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func isBoilerplate(line string) bool {
	for _, re := range boilerplate {
		if re.MatchString(line) {
			return true
		}
	}
	for _, b := range blurbs {
		if strings.Contains(line, b) {
			return true
		}
	}
	return false
}
