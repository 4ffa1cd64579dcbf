package scraper

import (
	"context"
	"errors"
)

// about fields in the order they are reported as missing
var aboutFields = []string{"work", "education", "current_city", "hometown", "birthday", "email", "phone"}

func (profile *Profile) aboutField(name string) *string {
	switch name {
	case "work":
		return &profile.Work
	case "education":
		return &profile.Education
	case "current_city":
		return &profile.CurrentCity
	case "hometown":
		return &profile.Hometown
	case "birthday":
		return &profile.Birthday
	case "email":
		return &profile.Email
	case "phone":
		return &profile.Phone
	}
	return nil
}

// readProfile fills the empty fields of profile from page.
func (ex *Extractor) readProfile(page *Page, profile *Profile) {
	scope := page.Selection
	if profile.Name == "" {
		profile.Name, _ = ex.Resolver.ResolveText(scope, "profile.name", ex.Rules.Field("profile.name"))
	}
	if profile.Bio == "" {
		profile.Bio, _ = ex.Resolver.ResolveText(scope, "profile.bio", ex.Rules.Field("profile.bio"))
	}
	if profile.PictureURL == "" {
		if src, ok := ex.Resolver.ResolveText(scope, "profile.picture", ex.Rules.Field("profile.picture")); ok {
			if link, err := page.ResolveLink(src); err == nil {
				profile.PictureURL = link
			}
		}
	}
	for _, name := range aboutFields {
		field := profile.aboutField(name)
		if *field != "" {
			continue
		}
		*field, _ = ex.Resolver.ResolveText(scope, "profile."+name, ex.Rules.Field("profile."+name))
	}
}

// Profile reads the target's name, bio and picture from the profile page and the about
// fields from the about tab. A missing name makes the section partial; the about tab
// failing to load only leaves its fields missing.
func (ex *Extractor) Profile(ctx context.Context, target Target) (ProfileSection, error) {
	ex.Log.Printf("section profile: %v", target.URL())
	profile := &Profile{}
	if u, ok := CanonicalURL(target.URL()); ok {
		profile.URL = u
	}

	page, err := ex.open(ctx, ctx, target.URL())
	if err != nil {
		return ex.profileFailed(ctx, nil, err)
	}
	ex.readProfile(page, profile)

	if profile.Name == "" && ex.Detector != nil {
		if _, restricted := ex.Detector.Restricted(page); restricted {
			ex.Log.Printf("section profile: %v", StatusPrivacyRestricted)
			return ProfileSection{Status: StatusPrivacyRestricted}, nil
		}
	}

	section := ProfileSection{Status: StatusComplete, Data: profile}
	if err := ex.Pacer.Pause(ctx, ActionClick); err != nil {
		return ex.profileFailed(ctx, profile, err)
	}
	about, err := ex.open(ctx, ctx, target.SectionURL("about", nil))
	switch {
	case err == nil:
		ex.readProfile(about, profile)
	case IsRunFatal(err) || ctx.Err() != nil:
		return ex.profileFailed(ctx, profile, err)
	default:
		ex.Log.Printf("section profile: about tab: %v", err)
		section.Status = StatusPartial
		section.Error = err.Error()
		ex.failed(ctx, err)
	}

	if profile.Name == "" {
		section.Status = StatusPartial
		section.Missing = append(section.Missing, "name")
		section.Error = ExtractionExhaustedError{Field: "profile.name", Rules: len(ex.Rules.Field("profile.name"))}.Error()
	}
	for _, name := range aboutFields {
		if *profile.aboutField(name) == "" {
			section.Missing = append(section.Missing, name)
		}
	}
	ex.Pacer.Success()
	ex.Log.Printf("section profile: %v (%q), missing %v", section.Status, profile.Name, section.Missing)
	return section, nil
}

func (ex *Extractor) profileFailed(ctx context.Context, profile *Profile, err error) (ProfileSection, error) {
	section := ProfileSection{Status: StatusFailed, Data: profile, Error: err.Error()}
	var timeout NavigationTimeoutError
	switch {
	case IsRunFatal(err):
	case ctx.Err() != nil:
		section.Status = StatusPartial
		err = ctx.Err()
	default:
		if profile != nil || errors.As(err, &timeout) {
			section.Status = StatusPartial
		}
		ex.failed(ctx, err)
		err = nil
	}
	if section.Status == StatusFailed && profile == nil {
		section.Data = nil
	}
	ex.Log.Printf("section profile: %v: %v", section.Status, section.Error)
	return section, err
}
