package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Section names accepted by Scraper.Sections, in the order they are run.
const (
	SectionProfile        = "profile"
	SectionOwnPosts       = "own_posts"
	SectionTaggedPosts    = "tagged_posts"
	SectionCommentsByUser = "comments_by_user"
	SectionFriends        = "friends"
	SectionFollowing      = "following"
	SectionGroups         = "groups"
	SectionPages          = "pages"
	SectionLocations      = "locations"
)

func AllSections() []string {
	return []string{
		SectionProfile, SectionOwnPosts, SectionTaggedPosts, SectionCommentsByUser,
		SectionFriends, SectionFollowing, SectionGroups, SectionPages, SectionLocations,
	}
}

// Scraper runs every requested section for one target and assembles the result.
type Scraper struct {
	Session   *Session // optional; persisted after the run
	Extractor *Extractor
	Sections  []string // empty means AllSections
	Log       Logger
}

func NewScraper(session *Session, checkpoint *CheckpointResolver, pacer *Pacer, limits Limits) *Scraper {
	return &Scraper{
		Session:   session,
		Extractor: NewExtractor(session, checkpoint, pacer, limits),
		Log:       session.Log,
	}
}

func (scraper *Scraper) enabled() map[string]bool {
	sections := scraper.Sections
	if len(sections) == 0 {
		sections = AllSections()
	}
	enabled := map[string]bool{}
	for _, name := range sections {
		enabled[name] = true
	}
	return enabled
}

type sectionStep struct {
	name string
	run  func(ctx context.Context) error
}

// Scrape extracts target section by section. A result document is always returned.
// The error is non-nil when the run stopped early: a run-level failure such as an
// unresolved challenge, or cancellation of ctx. Sections not reached are reported as
// failed. The session, if any, is persisted before Scrape returns.
func (scraper *Scraper) Scrape(ctx context.Context, target Target) (ResultDocument, error) {
	ex := scraper.Extractor
	log := scraper.Log
	if log == nil {
		log = DummyLogger{}
	}
	if ex.Checkpoint != nil {
		ex.Checkpoint.Reset()
	}

	metadata := Metadata{
		RunID:      ulid.Make().String(),
		Target:     target.Raw,
		ProfileURL: target.URL(),
		StartedAt:  time.Now().UTC(),
	}
	log.Printf("run %v: %v", metadata.RunID, target)

	var parts Parts
	steps := []sectionStep{
		{SectionProfile, func(ctx context.Context) error {
			section, err := ex.Profile(ctx, target)
			parts.Profile = &section
			return err
		}},
		{SectionOwnPosts, func(ctx context.Context) error {
			section, err := ex.OwnPosts(ctx, target)
			parts.OwnPosts = &section
			return err
		}},
		{SectionTaggedPosts, func(ctx context.Context) error {
			section, err := ex.TaggedPosts(ctx, target)
			parts.TaggedPosts = &section
			return err
		}},
		{SectionCommentsByUser, func(ctx context.Context) error {
			section, err := ex.CommentsByUser(ctx, target)
			parts.CommentsByUser = &section
			return err
		}},
		{SectionFriends, scraper.connections(target, ConnectionFriend, &parts.Friends)},
		{SectionFollowing, scraper.connections(target, ConnectionFollowing, &parts.Following)},
		{SectionGroups, scraper.connections(target, ConnectionGroup, &parts.Groups)},
		{SectionPages, scraper.connections(target, ConnectionPage, &parts.Pages)},
		{SectionLocations, func(ctx context.Context) error {
			section, err := ex.Locations(ctx, target)
			parts.Locations = &section
			return err
		}},
	}

	enabled := scraper.enabled()
	var runErr error
	ran := 0
	for _, step := range steps {
		if !enabled[step.name] {
			continue
		}
		if ran > 0 {
			if err := ex.Pacer.Pause(ctx, ActionBetweenSections); err != nil {
				runErr = err
				break
			}
		}
		ran++
		if err := step.run(ctx); err != nil {
			runErr = err
			log.Printf("run %v: stopped in %v: %v", metadata.RunID, step.name, err)
			break
		}
	}
	if runErr != nil {
		parts.Errors = append(parts.Errors, runErr)
	}

	metadata.FinishedAt = time.Now().UTC()
	document := Assemble(metadata, parts)

	if scraper.Session != nil {
		if err := scraper.Session.Persist(context.WithoutCancel(ctx)); err != nil {
			log.Printf("run %v: %v", metadata.RunID, err)
			document.Errors = append(document.Errors, fmt.Sprintf("persist: %v", err))
		}
	}
	log.Printf("run %v: finished in %v", metadata.RunID, metadata.FinishedAt.Sub(metadata.StartedAt).Round(time.Second))
	return document, runErr
}

func (scraper *Scraper) connections(target Target, kind ConnectionKind, out **Section[Connection]) func(context.Context) error {
	return func(ctx context.Context) error {
		section, err := scraper.Extractor.Connections(ctx, target, kind)
		*out = &section
		return err
	}
}
