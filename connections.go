package scraper

import (
	"context"

	"github.com/PuerkitoBio/goquery"
)

type connectionTab struct {
	kind    ConnectionKind
	name    string // section name, also the rule prefix tried before connection.*
	section string // profile tab
}

var connectionTabs = map[ConnectionKind]connectionTab{
	ConnectionFriend:    {ConnectionFriend, "friends", "friends"},
	ConnectionFollowing: {ConnectionFollowing, "following", "following"},
	ConnectionGroup:     {ConnectionGroup, "groups", "groups"},
	ConnectionPage:      {ConnectionPage, "pages", "likes"},
}

func (tab connectionTab) field(ex *Extractor, name string) RuleSet {
	return ex.Rules.Field(tab.name+"."+name, "connection."+name)
}

func (ex *Extractor) readConnection(page *Page, tab connectionTab, node *goquery.Selection) (Connection, bool) {
	connection := Connection{Kind: tab.kind}
	connection.Name, _ = ex.Resolver.ResolveText(node, "connection.name", tab.field(ex, "name"))
	if connection.Name == "" {
		return connection, false
	}
	if href, ok := ex.Resolver.ResolveText(node, "connection.url", tab.field(ex, "url")); ok {
		connection.URL, _ = page.CanonicalURL(href)
	}
	// the name is usually one of the bio candidates too
	for _, item := range ex.Resolver.ResolveAll(node, "connection.bio", tab.field(ex, "bio")) {
		if item.Text != connection.Name {
			connection.Bio = item.Text
			break
		}
	}
	return connection, true
}

func (ex *Extractor) connectionReader(tab connectionTab) extractFunc[Connection] {
	return func(page *Page) ([]Connection, int) {
		nodes, _ := ex.Resolver.ResolveNodes(page.Selection, "connection.item", tab.field(ex, "item"))
		if nodes == nil {
			return nil, 0
		}
		var connections []Connection
		omitted := 0
		nodes.Each(func(_ int, node *goquery.Selection) {
			if connection, ok := ex.readConnection(page, tab, node); ok {
				connections = append(connections, connection)
			} else {
				omitted++
			}
		})
		return connections, omitted
	}
}

// Connections collects one of the target's connection lists.
func (ex *Extractor) Connections(ctx context.Context, target Target, kind ConnectionKind) (Section[Connection], error) {
	tab, ok := connectionTabs[kind]
	if !ok {
		return Section[Connection]{Status: StatusFailed, Error: "unknown connection kind " + string(kind)}, nil
	}
	return collect(ctx, ex, tab.name, target.SectionURL(tab.section, nil), ex.connectionReader(tab))
}
