package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultItemSelector matches paper links on a proceedings index page.
const DefaultItemSelector = "li.conference a[href], li.none a[href]"

// ExtractItems lists the catalog entries on an index page in document order.
// Anchors with an empty or unparsable href are skipped.
func ExtractItems(doc *goquery.Document, selector string, partition int) []ItemReference {
	if doc == nil {
		return nil
	}
	if strings.TrimSpace(selector) == "" {
		selector = DefaultItemSelector
	}
	items := []ItemReference{}
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		resolved, err := ResolveURL(doc.Url, href)
		if err != nil {
			return
		}
		items = append(items, ItemReference{
			Partition: partition,
			Title:     strings.TrimSpace(s.Text()),
			URL:       resolved,
		})
	})
	return items
}

// ExtractTargets lists the document links on a detail page whose href ends in one of
// the extensions, in document order.
func ExtractTargets(doc *goquery.Document, extensions []string) []DownloadTarget {
	if doc == nil {
		return nil
	}
	targets := []DownloadTarget{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		ext, ok := matchExtension(href, extensions)
		if !ok {
			return
		}
		resolved, err := ResolveURL(doc.Url, href)
		if err != nil {
			return
		}
		targets = append(targets, DownloadTarget{
			URL:   resolved,
			Index: len(targets),
			Ext:   ext,
		})
	})
	return targets
}
