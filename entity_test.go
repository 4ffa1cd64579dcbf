package scraper

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEntityKeys(t *testing.T) {
	tests := []struct {
		name string
		item Keyed
		key  string
	}{
		{"url wins", Connection{Entity: Entity{Name: "Alice", URL: testBase + "/alice.a"}}, testBase + "/alice.a"},
		{"folded name", Location{Entity{Name: "  Café  Lisboa "}}, "name:café lisboa"},
		{"nameless", TaggedAccount{}, ""},
		{"comment without link", Comment{Entity: Entity{Name: "Bob", Bio: "Nice"}}, "comment:bob|nice"},
		{"post without link", Post{Entity: Entity{Name: "Mark", Bio: "Hello"}}, "post:mark|hello"},
		{"post without text", Post{Entity: Entity{Name: "Mark"}}, ""},
		{"activity", UserComment{Entity: Entity{Name: "Commented on a post", Bio: "Yes"}}, "activity:commented on a post|yes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.Key(); got != tt.key {
				t.Errorf("Key() = %q, want %q", got, tt.key)
			}
		})
	}
}

func TestCollection(t *testing.T) {
	alice := Connection{Entity: Entity{Name: "Alice", URL: testBase + "/alice.a"}, Kind: ConnectionFriend}
	bob := Connection{Entity: Entity{Name: "Bob", URL: testBase + "/bob.b"}, Kind: ConnectionFriend}
	carol := Connection{Entity: Entity{Name: "Carol"}, Kind: ConnectionFriend}
	renamed := alice
	renamed.Name = "Alice A."

	collection := NewCollection[Connection]()
	if n := collection.Merge(alice, bob); n != 2 {
		t.Errorf("first Merge added %d", n)
	}
	if n := collection.Merge(renamed, carol, Connection{}); n != 1 {
		t.Errorf("second Merge added %d", n)
	}
	if diff := cmp.Diff([]Connection{alice, bob, carol}, collection.Items()); diff != "" {
		t.Errorf("(-expected +got)\n%v", diff)
	}

	items := collection.Items()
	items[0].Name = "changed"
	if collection.Items()[0].Name != "Alice" {
		t.Error("Items shares its backing array")
	}

	collection.Truncate(2)
	collection.Truncate(-1)
	if collection.Len() != 2 {
		t.Errorf("Len = %d after Truncate(2)", collection.Len())
	}
}

func TestUnique(t *testing.T) {
	if got := unique[Location](nil); got != nil {
		t.Errorf("unique(nil) = %v", got)
	}
	got := unique([]Location{{Entity{Name: ""}}})
	if got == nil || len(got) != 0 {
		t.Errorf("unique of keyless items = %#v", got)
	}
}

func TestCollectionMergesPosts(t *testing.T) {
	url := testBase + "/zuck/posts/1001"
	alice := Comment{Entity: Entity{Name: "Alice", URL: url + "?comment_id=1"}}
	bob := Comment{Entity: Entity{Name: "Bob", URL: url + "?comment_id=2"}}
	first := Post{
		Entity:   Entity{Name: "Mark", URL: url},
		Tagged:   []TaggedAccount{},
		Comments: []Comment{alice},
		Counters: Counters{Shares: int64p(3)},
	}
	later := Post{
		Entity:    Entity{Name: "Mark", URL: url, Bio: "Hello"},
		MediaURLs: []string{"https://scontent.xx.fbcdn.net/a.jpg"},
		Tagged:    []TaggedAccount{{Entity{Name: "Carol", URL: testBase + "/carol.c"}}},
		Comments:  []Comment{bob, alice},
		Counters:  Counters{Reactions: int64p(12)},
	}

	collection := NewCollection[Post]()
	collection.Merge(first)
	if n := collection.Merge(later); n != 0 {
		t.Errorf("a later sighting counted as %d new posts", n)
	}
	expected := []Post{{
		Entity:    Entity{Name: "Mark", URL: url, Bio: "Hello"},
		MediaURLs: []string{"https://scontent.xx.fbcdn.net/a.jpg"},
		Tagged:    []TaggedAccount{{Entity{Name: "Carol", URL: testBase + "/carol.c"}}},
		Comments:  []Comment{alice, bob},
		Counters:  Counters{Reactions: int64p(12), Shares: int64p(3)},
	}}
	if diff := cmp.Diff(expected, collection.Items()); diff != "" {
		t.Errorf("(-expected +got)\n%v", diff)
	}
}
