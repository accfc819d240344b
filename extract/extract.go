// Package extract turns rendered registry search pages into listings and
// Markdown snapshots.
package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/bizscout/models"
	"golang.org/x/net/html"
)

var (
	// "ACME CO-OPERATIVE INC. (1234567)"
	reNameNumber = regexp.MustCompile(`^(.*?)\s*\((\d{5,})\)\s*$`)
	reNumberOnly = regexp.MustCompile(`^\d{5,}$`)
	reStatus     = regexp.MustCompile(`(?i)^status\s*:\s*(.+)$`)
	reType       = regexp.MustCompile(`(?i)\b(corporation|co-?operative|partnership|sole proprietorship|business name|not-for-profit|non-profit|charit)`)
)

// Extractor finds result boxes with a fixed CSS selector. It is safe for
// concurrent use.
type Extractor struct {
	items cascadia.Sel
	conv  *converter.Converter
}

// New compiles the result-box selector.
func New(itemSelector string) (*Extractor, error) {
	sel, err := cascadia.Parse(itemSelector)
	if err != nil {
		return nil, err
	}
	return &Extractor{items: sel, conv: newMarkdownConverter()}, nil
}

func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// Listings returns one Listing per result box, in document order.
func (e *Extractor) Listings(rawHTML string) ([]models.Listing, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}
	var out []models.Listing
	for _, box := range cascadia.QueryAll(doc, e.items) {
		if l, ok := parseListing(textLines(box)); ok {
			out = append(out, l)
		}
	}
	return out, nil
}

// Snapshot renders the result boxes as Markdown. Without any result box the
// whole document is converted, so no-results pages still show their message.
func (e *Extractor) Snapshot(rawHTML string) (string, error) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", err
	}
	matches := cascadia.QueryAll(doc, e.items)
	if len(matches) == 0 {
		return e.conv.ConvertString(rawHTML)
	}

	var buf bytes.Buffer
	for _, node := range matches {
		if err := html.Render(&buf, node); err != nil {
			return "", err
		}
	}
	return e.conv.ConvertString(buf.String())
}

func parseListing(lines []string) (models.Listing, bool) {
	if len(lines) == 0 {
		return models.Listing{}, false
	}

	var l models.Listing
	if m := reNameNumber.FindStringSubmatch(lines[0]); m != nil {
		l.Name, l.Number = m[1], m[2]
	} else {
		l.Name = lines[0]
	}

	var detail []string
	for _, line := range lines[1:] {
		switch {
		case l.Number == "" && reNumberOnly.MatchString(line):
			l.Number = line
		case reStatus.MatchString(line):
			if l.Status == "" {
				l.Status = strings.TrimSpace(reStatus.FindStringSubmatch(line)[1])
			}
		case l.Type == "" && !strings.Contains(line, ":") && reType.MatchString(line):
			l.Type = line
		default:
			detail = append(detail, line)
		}
	}
	l.Detail = strings.Join(detail, " | ")
	return l, l.Name != ""
}

// textLines collects the trimmed, non-blank text nodes under n.
func textLines(n *html.Node) []string {
	var lines []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				lines = append(lines, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return lines
}
