package registry

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/bizscout/models"
	"golang.org/x/net/html"
)

const (
	corpNumberLabel     = "Corporation number:"
	businessNumberLabel = "Business Number:"
)

// Parse extracts corporations from a result page. A page with no result
// items yields an empty slice and no error.
func Parse(body []byte) ([]models.Corporation, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var out []models.Corporation
	doc.Find("ol.list-unstyled > li.pad-md.row").Each(func(_ int, item *goquery.Selection) {
		link := item.Find("a").First()
		if link.Length() == 0 {
			return
		}
		corp := models.Corporation{
			// Bilingual names are split by <br>; keep the first.
			CorporateName: firstText(link.Nodes[0]),
		}
		item.Find("span").Each(func(_ int, span *goquery.Selection) {
			text := strings.TrimSpace(span.Text())
			switch {
			case strings.Contains(text, corpNumberLabel):
				corp.CorporationNumber = strings.TrimSpace(strings.Replace(text, corpNumberLabel, "", 1))
			case strings.Contains(text, businessNumberLabel):
				corp.BusinessNumber = strings.TrimSpace(strings.Replace(text, businessNumberLabel, "", 1))
			}
		})
		out = append(out, corp)
	})
	return out, nil
}

// firstText returns the first non-blank text node under n, trimmed.
func firstText(n *html.Node) string {
	if n.Type == html.TextNode {
		return strings.TrimSpace(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := firstText(c); t != "" {
			return t
		}
	}
	return ""
}
