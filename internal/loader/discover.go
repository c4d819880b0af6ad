package loader

import (
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// moduleSelector finds the statically declared module graph of a page.
// Matches come back in document order.
var moduleSelector = cascadia.MustCompile(
	`link[rel="modulepreload"], script[type="module"][src], link[rel="preload"][as="script"]`,
)

// DiscoverModules parses an HTML document and returns the absolute URLs of
// the modules it declares, in document order without duplicates. Only
// URLs on the page's origin are returned; third-party scripts are not
// ours to warm.
func DiscoverModules(page *url.URL, r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	base := page
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if u, err := page.Parse(strings.TrimSpace(href)); err == nil {
			base = u
		}
	}

	var found []string
	seen := make(map[string]bool)
	doc.FindMatcher(moduleSelector).Each(func(_ int, s *goquery.Selection) {
		attr := "href"
		if goquery.NodeName(s) == "script" {
			attr = "src"
		}
		raw := strings.TrimSpace(s.AttrOr(attr, ""))
		if raw == "" {
			return
		}
		u, err := base.Parse(raw)
		if err != nil || !sameOrigin(page, u) {
			return
		}
		u.Fragment = ""
		abs := u.String()
		if !seen[abs] {
			seen[abs] = true
			found = append(found, abs)
		}
	})
	return found, nil
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}
