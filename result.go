package scraper

import (
	"time"
)

type SectionStatus string

const (
	StatusComplete          SectionStatus = "complete"
	StatusPartial           SectionStatus = "partial"
	StatusPrivacyRestricted SectionStatus = "privacy-restricted"
	StatusFailed            SectionStatus = "failed"
)

// Section is one independently extracted list. Items is nil (JSON null) when nothing
// was collected, and an empty list when the section was read and found empty.
type Section[T any] struct {
	Status  SectionStatus `json:"status"`
	Items   []T           `json:"items"`
	Omitted int           `json:"omitted,omitempty"` // entities seen but not resolvable
	Rounds  int           `json:"rounds,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type ProfileSection struct {
	Status  SectionStatus `json:"status"`
	Data    *Profile      `json:"data"`
	Missing []string      `json:"missing_fields,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type Metadata struct {
	RunID      string    `json:"run_id"`
	Target     string    `json:"target"`
	ProfileURL string    `json:"profile_url"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type PostsSection struct {
	OwnPosts    Section[Post] `json:"own_posts"`
	TaggedPosts Section[Post] `json:"tagged_posts"`
}

type ConnectionsSection struct {
	Friends   Section[Connection] `json:"friends"`
	Following Section[Connection] `json:"following"`
	Groups    Section[Connection] `json:"groups"`
	Pages     Section[Connection] `json:"pages"`
}

// ResultDocument is the root of one run's output.
type ResultDocument struct {
	Metadata       Metadata             `json:"metadata"`
	Profile        ProfileSection       `json:"profile"`
	Posts          PostsSection         `json:"posts"`
	CommentsByUser Section[UserComment] `json:"comments_by_user"`
	Connections    ConnectionsSection   `json:"connections"`
	Locations      Section[Location]    `json:"locations_visited"`
	Errors         []string             `json:"errors,omitempty"`
}

// Parts collects whatever a run produced. Any nil field is a section that was never
// collected.
type Parts struct {
	Profile        *ProfileSection
	OwnPosts       *Section[Post]
	TaggedPosts    *Section[Post]
	CommentsByUser *Section[UserComment]
	Friends        *Section[Connection]
	Following      *Section[Connection]
	Groups         *Section[Connection]
	Pages          *Section[Connection]
	Locations      *Section[Location]
	Errors         []error
}

const notCollected = "section was not collected"

func assembleSection[T Keyed](section *Section[T]) Section[T] {
	if section == nil {
		return Section[T]{Status: StatusFailed, Error: notCollected}
	}
	out := *section
	if out.Status == "" {
		out.Status = StatusFailed
	}
	out.Items = unique(out.Items)
	return out
}

// Assemble builds the result document. It never fails: absent sections become null
// with status failed, and duplicate entities are dropped keeping the first.
func Assemble(metadata Metadata, parts Parts) ResultDocument {
	document := ResultDocument{
		Metadata:       metadata,
		CommentsByUser: assembleSection(parts.CommentsByUser),
		Locations:      assembleSection(parts.Locations),
		Posts: PostsSection{
			OwnPosts:    assembleSection(parts.OwnPosts),
			TaggedPosts: assembleSection(parts.TaggedPosts),
		},
		Connections: ConnectionsSection{
			Friends:   assembleSection(parts.Friends),
			Following: assembleSection(parts.Following),
			Groups:    assembleSection(parts.Groups),
			Pages:     assembleSection(parts.Pages),
		},
	}

	if parts.Profile == nil {
		document.Profile = ProfileSection{Status: StatusFailed, Error: notCollected}
	} else {
		document.Profile = *parts.Profile
		if document.Profile.Status == "" {
			document.Profile.Status = StatusFailed
		}
	}

	for _, err := range parts.Errors {
		if err != nil {
			document.Errors = append(document.Errors, err.Error())
		}
	}
	return document
}

// Sections lists every section's name and status, in document order.
func (document ResultDocument) Sections() []SectionSummary {
	return []SectionSummary{
		{"profile", document.Profile.Status, boolToInt(document.Profile.Data != nil), 0, document.Profile.Error},
		summarize("posts.own_posts", document.Posts.OwnPosts),
		summarize("posts.tagged_posts", document.Posts.TaggedPosts),
		summarize("comments_by_user", document.CommentsByUser),
		summarize("connections.friends", document.Connections.Friends),
		summarize("connections.following", document.Connections.Following),
		summarize("connections.groups", document.Connections.Groups),
		summarize("connections.pages", document.Connections.Pages),
		summarize("locations_visited", document.Locations),
	}
}

type SectionSummary struct {
	Name    string
	Status  SectionStatus
	Items   int
	Omitted int
	Error   string
}

func summarize[T any](name string, section Section[T]) SectionSummary {
	return SectionSummary{name, section.Status, len(section.Items), section.Omitted, section.Error}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
