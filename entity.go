package scraper

// Entity is the part every extracted record shares: a display name, the canonical URL
// that keys it within its collection, and an optional free-text bio or caption.
type Entity struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
	Bio  string `json:"bio,omitempty"`
}

// Key returns the dedup key: the canonical URL, or the folded name when there is none.
func (entity Entity) Key() string {
	if entity.URL != "" {
		return entity.URL
	}
	if name := FoldText(entity.Name); name != "" {
		return "name:" + name
	}
	return ""
}

type Profile struct {
	Entity
	PictureURL  string `json:"picture_url,omitempty"`
	Work        string `json:"work,omitempty"`
	Education   string `json:"education,omitempty"`
	CurrentCity string `json:"current_city,omitempty"`
	Hometown    string `json:"hometown,omitempty"`
	Birthday    string `json:"birthday,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// Counters are engagement numbers. A nil field means the counter could not be read.
type Counters struct {
	Reactions *int64 `json:"reactions,omitempty"`
	Comments  *int64 `json:"comments,omitempty"`
	Shares    *int64 `json:"shares,omitempty"`
}

// TaggedAccount refers to another profile by name and URL only.
type TaggedAccount struct {
	Entity
}

// Comment: Name is the commenter, Bio the comment text.
type Comment struct {
	Entity
	Timestamp string `json:"timestamp,omitempty"`
}

func (comment Comment) Key() string {
	if comment.URL != "" {
		return comment.URL
	}
	return "comment:" + FoldText(comment.Name) + "|" + FoldText(comment.Bio)
}

// Post: Name is the author, Bio the post text.
type Post struct {
	Entity
	Timestamp string          `json:"timestamp,omitempty"`
	Location  *Location       `json:"location,omitempty"`
	MediaURLs []string        `json:"media_urls,omitempty"`
	Tagged    []TaggedAccount `json:"tagged_accounts"`
	Comments  []Comment       `json:"comments"`
	Counters  Counters        `json:"counters"`
}

func (post Post) Key() string {
	if post.URL != "" {
		return post.URL
	}
	if post.Bio != "" {
		return "post:" + FoldText(post.Name) + "|" + FoldText(post.Bio)
	}
	return ""
}

// merge completes post with what a later sighting of it shows: comments and tagged
// accounts are unioned in order, counters that became readable replace the old ones and
// empty fields are filled.
func (post Post) merge(later Post) Post {
	if post.Name == "" {
		post.Name = later.Name
	}
	if post.Bio == "" {
		post.Bio = later.Bio
	}
	if post.Timestamp == "" {
		post.Timestamp = later.Timestamp
	}
	if post.Location == nil {
		post.Location = later.Location
	}
	post.MediaURLs = uniqueStrings(append(append([]string(nil), post.MediaURLs...), later.MediaURLs...))
	post.Tagged = unique(append(append([]TaggedAccount{}, post.Tagged...), later.Tagged...))
	post.Comments = unique(append(append([]Comment{}, post.Comments...), later.Comments...))
	if later.Counters.Reactions != nil {
		post.Counters.Reactions = later.Counters.Reactions
	}
	if later.Counters.Comments != nil {
		post.Counters.Comments = later.Counters.Comments
	}
	if later.Counters.Shares != nil {
		post.Counters.Shares = later.Counters.Shares
	}
	return post
}

type ConnectionKind string

const (
	ConnectionFriend    ConnectionKind = "friend"
	ConnectionFollowing ConnectionKind = "following"
	ConnectionGroup     ConnectionKind = "group"
	ConnectionPage      ConnectionKind = "page"
)

type Connection struct {
	Entity
	Kind ConnectionKind `json:"kind"`
}

type Location struct {
	Entity
}

// UserComment is a comment the target wrote elsewhere: Name holds the activity summary
// ("commented on X's post"), Bio the comment text.
type UserComment struct {
	Entity
	Timestamp string `json:"timestamp,omitempty"`
}

func (comment UserComment) Key() string {
	if comment.URL != "" {
		return comment.URL
	}
	return "activity:" + FoldText(comment.Name) + "|" + FoldText(comment.Bio)
}

// Keyed is anything a Collection can hold.
type Keyed interface {
	Key() string
}

// merger is implemented by entities whose later sightings can carry more detail than
// the first, such as a post whose comments render after a scroll.
type merger[T any] interface {
	merge(later T) T
}

// Collection keeps entities unique by Key, in first-seen order.
type Collection[T Keyed] struct {
	items []T
	seen  map[string]int
}

func NewCollection[T Keyed]() *Collection[T] {
	return &Collection[T]{seen: map[string]int{}}
}

// Merge appends the items not yet present and returns how many were new. An item whose
// key is already present is folded into the stored one when T knows how to merge.
// Items with an empty key are not accepted.
func (collection *Collection[T]) Merge(items ...T) int {
	added := 0
	for _, item := range items {
		key := item.Key()
		if key == "" {
			continue
		}
		if i, ok := collection.seen[key]; ok {
			if i >= len(collection.items) {
				continue
			}
			if m, ok := any(collection.items[i]).(merger[T]); ok {
				collection.items[i] = m.merge(item)
			}
			continue
		}
		collection.seen[key] = len(collection.items)
		collection.items = append(collection.items, item)
		added++
	}
	return added
}

func (collection *Collection[T]) Len() int {
	return len(collection.items)
}

// Items returns a copy of the collected entities in insertion order.
func (collection *Collection[T]) Items() []T {
	return append([]T(nil), collection.items...)
}

func (collection *Collection[T]) Truncate(n int) {
	if n >= 0 && n < len(collection.items) {
		collection.items = collection.items[:n]
	}
}

// unique filters items through a fresh Collection.
func unique[T Keyed](items []T) []T {
	if items == nil {
		return nil
	}
	collection := NewCollection[T]()
	collection.Merge(items...)
	out := collection.Items()
	if out == nil {
		out = []T{}
	}
	return out
}
