package scraper

import (
	"context"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

func (ex *Extractor) readUserComment(page *Page, node *goquery.Selection) (UserComment, bool) {
	var comment UserComment
	comment.Name, _ = ex.Resolver.ResolveText(node, "activity.summary", ex.Rules.Field("activity.summary"))
	for _, item := range ex.Resolver.ResolveAll(node, "activity.content", ex.Rules.Field("activity.content")) {
		if item.Text != comment.Name {
			comment.Bio = item.Text
			break
		}
	}
	if href, ok := ex.Resolver.ResolveText(node, "activity.url", ex.Rules.Field("activity.url")); ok {
		comment.URL, _ = page.CanonicalURL(href, commentParams...)
	}
	comment.Timestamp, _ = ex.Resolver.ResolveText(node, "activity.timestamp", ex.Rules.Field("activity.timestamp"))
	return comment, comment.Name != "" && (comment.Bio != "" || comment.URL != "")
}

func (ex *Extractor) readActivity(page *Page) ([]UserComment, int) {
	nodes, _ := ex.Resolver.ResolveNodes(page.Selection, "activity.item", ex.Rules.Field("activity.item"))
	if nodes == nil {
		return nil, 0
	}
	var comments []UserComment
	nodes.Each(func(_ int, node *goquery.Selection) {
		// the log also lists likes, shares and so on; only comment entries have a summary
		if comment, ok := ex.readUserComment(page, node); ok {
			comments = append(comments, comment)
		}
	})
	return comments, 0
}

// CommentsByUser collects the comments the target wrote, from the activity log. The log
// is only visible when the session is logged in as the target.
func (ex *Extractor) CommentsByUser(ctx context.Context, target Target) (Section[UserComment], error) {
	params := url.Values{"category_key": {"COMMENTSCLUSTER"}}
	return collect(ctx, ex, "comments_by_user", target.SectionURL("allactivity", params), ex.readActivity)
}
