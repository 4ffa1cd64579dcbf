package scraper

import (
	"context"

	"github.com/PuerkitoBio/goquery"
)

// query parameters that distinguish one comment from another under the same post
var commentParams = []string{"comment_id", "reply_comment_id"}

// linkOf returns the href of node, or of the closest enclosing link.
func linkOf(node *goquery.Selection) (string, bool) {
	if href, ok := node.Attr("href"); ok {
		return href, true
	}
	return node.Closest("a[href]").Attr("href")
}

func (ex *Extractor) counter(scope *goquery.Selection, field string) *int64 {
	text, ok := ex.Resolver.ResolveText(scope, field, ex.Rules.Field(field))
	if !ok {
		return nil
	}
	n, ok := ParseCounter(text)
	if !ok {
		return nil
	}
	return &n
}

// readComments extracts the comments inside one post container. The second result
// counts comment containers with neither author nor text.
func (ex *Extractor) readComments(page *Page, containers *goquery.Selection) ([]Comment, int) {
	collection := NewCollection[Comment]()
	omitted := 0
	containers.EachWithBreak(func(_ int, node *goquery.Selection) bool {
		var comment Comment
		comment.Name, _ = ex.Resolver.ResolveText(node, "comment.author", ex.Rules.Field("comment.author"))
		if text, ok := ex.Resolver.ResolveText(node, "comment.content", ex.Rules.Field("comment.content")); ok && text != comment.Name {
			comment.Bio = text
		}
		if href, ok := ex.Resolver.ResolveText(node, "comment.url", ex.Rules.Field("comment.url")); ok {
			comment.URL, _ = page.CanonicalURL(href, commentParams...)
		}
		comment.Timestamp, _ = ex.Resolver.ResolveText(node, "comment.timestamp", ex.Rules.Field("comment.timestamp"))
		if comment.Name == "" && comment.Bio == "" {
			omitted++
			return true
		}
		collection.Merge(comment)
		return ex.Limits.MaxCommentsPerPost <= 0 || collection.Len() < ex.Limits.MaxCommentsPerPost
	})
	return collection.Items(), omitted
}

func (ex *Extractor) readTagged(page *Page, scope *goquery.Selection, author string) []TaggedAccount {
	collection := NewCollection[TaggedAccount]()
	for _, item := range ex.Resolver.ResolveAll(scope, "post.tagged", ex.Rules.Field("post.tagged")) {
		if item.Text == author {
			continue
		}
		account := TaggedAccount{Entity{Name: item.Text}}
		if href, ok := linkOf(item.Node); ok {
			account.URL, _ = page.CanonicalURL(href)
		}
		collection.Merge(account)
		if ex.Limits.MaxTaggedPerPost > 0 && collection.Len() >= ex.Limits.MaxTaggedPerPost {
			break
		}
	}
	return collection.Items()
}

func (ex *Extractor) readPost(page *Page, container *goquery.Selection) (Post, int) {
	var post Post
	comments, _ := ex.Resolver.ResolveNodes(container, "comment.container", ex.Rules.Field("comment.container"))

	// post fields are read from a copy with the comments cut out, so that a commenter's
	// name or link is never taken for the post's own
	body := container.Clone()
	if nodes, _ := ex.Resolver.ResolveNodes(body, "comment.container", ex.Rules.Field("comment.container")); nodes != nil {
		nodes.Remove()
	}

	if href, ok := ex.Resolver.ResolveText(body, "post.url", ex.Rules.Field("post.url")); ok {
		post.URL, _ = page.CanonicalURL(href)
	}
	post.Name, _ = ex.Resolver.ResolveText(body, "post.author", ex.Rules.Field("post.author"))
	post.Bio, _ = ex.Resolver.ResolveText(body, "post.content", ex.Rules.Field("post.content"))
	post.Timestamp, _ = ex.Resolver.ResolveText(body, "post.timestamp", ex.Rules.Field("post.timestamp"))

	if items := ex.Resolver.ResolveAll(body, "post.location", ex.Rules.Field("post.location")); len(items) > 0 {
		location := &Location{Entity{Name: items[0].Text}}
		if href, ok := linkOf(items[0].Node); ok {
			location.URL, _ = page.CanonicalURL(href)
		}
		post.Location = location
	}
	for _, item := range ex.Resolver.ResolveAll(body, "post.media", ex.Rules.Field("post.media")) {
		if link, err := page.ResolveLink(item.Text); err == nil {
			post.MediaURLs = append(post.MediaURLs, link)
		}
	}
	post.MediaURLs = uniqueStrings(post.MediaURLs)
	post.Tagged = ex.readTagged(page, body, post.Name)

	post.Counters = Counters{
		Reactions: ex.counter(body, "post.reactions"),
		Comments:  ex.counter(body, "post.comments_count"),
		Shares:    ex.counter(body, "post.shares"),
	}

	omitted := 0
	if comments != nil {
		post.Comments, omitted = ex.readComments(page, comments)
	}
	if post.Tagged == nil {
		post.Tagged = []TaggedAccount{}
	}
	if post.Comments == nil {
		post.Comments = []Comment{}
	}
	return post, omitted
}

// readPosts is the extractFunc for post feeds.
func (ex *Extractor) readPosts(page *Page) ([]Post, int) {
	containers, _ := ex.Resolver.ResolveNodes(page.Selection, "post.container", ex.Rules.Field("post.container"))
	if containers == nil {
		return nil, 0
	}
	var posts []Post
	omitted := 0
	containers.Each(func(_ int, container *goquery.Selection) {
		post, skipped := ex.readPost(page, container)
		omitted += skipped
		if post.Key() == "" {
			omitted++
			return
		}
		posts = append(posts, post)
	})
	return posts, omitted
}

// capPosts applies the per-post limits again once sightings from several rounds have
// been merged.
func (ex *Extractor) capPosts(section Section[Post], err error) (Section[Post], error) {
	for i := range section.Items {
		post := &section.Items[i]
		if n := ex.Limits.MaxCommentsPerPost; n > 0 && len(post.Comments) > n {
			post.Comments = post.Comments[:n]
		}
		if n := ex.Limits.MaxTaggedPerPost; n > 0 && len(post.Tagged) > n {
			post.Tagged = post.Tagged[:n]
		}
	}
	return section, err
}

// OwnPosts collects the posts on the target's timeline.
func (ex *Extractor) OwnPosts(ctx context.Context, target Target) (Section[Post], error) {
	return ex.capPosts(collect(ctx, ex, "own_posts", target.URL(), ex.readPosts))
}

// TaggedPosts collects the posts and photos the target is tagged in.
func (ex *Extractor) TaggedPosts(ctx context.Context, target Target) (Section[Post], error) {
	return ex.capPosts(collect(ctx, ex, "tagged_posts", target.SectionURL("photos_of", nil), ex.readPosts))
}

func uniqueStrings(list []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range list {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
