package scraper

import (
	"context"

	"github.com/PuerkitoBio/goquery"
)

func (ex *Extractor) readLocations(page *Page) ([]Location, int) {
	nodes, _ := ex.Resolver.ResolveNodes(page.Selection, "location.item", ex.Rules.Field("location.item"))
	if nodes == nil {
		return nil, 0
	}
	var locations []Location
	omitted := 0
	nodes.Each(func(_ int, node *goquery.Selection) {
		var location Location
		location.Name, _ = ex.Resolver.ResolveText(node, "location.name", ex.Rules.Field("location.name"))
		if location.Name == "" {
			omitted++
			return
		}
		if href, ok := ex.Resolver.ResolveText(node, "location.url", ex.Rules.Field("location.url")); ok {
			location.URL, _ = page.CanonicalURL(href)
		}
		locations = append(locations, location)
	})
	return locations, omitted
}

// Locations collects the places on the target's map tab.
func (ex *Extractor) Locations(ctx context.Context, target Target) (Section[Location], error) {
	return collect(ctx, ex, "locations_visited", target.SectionURL("map", nil), ex.readLocations)
}
