package scraper

import (
	"errors"
	"fmt"
	"time"
)

type RetryAndRecordError struct {
	Filename string
}

func (error RetryAndRecordError) Error() string {
	return fmt.Sprintf("replay: snapshot %v is missing or has no sidecar; record the run again", error.Filename)
}

// NavigationTimeoutError is recovered locally: the section it hit becomes partial.
type NavigationTimeoutError struct {
	URL string
	Err error
}

func (error NavigationTimeoutError) Error() string {
	return fmt.Sprintf("navigation to %v timed out: %v", error.URL, error.Err)
}

func (error NavigationTimeoutError) Unwrap() error {
	return error.Err
}

// ChallengeTimeoutError means a checkpoint stayed on screen past the wait window.
type ChallengeTimeoutError struct {
	Signature string
	Waited    time.Duration
}

func (error ChallengeTimeoutError) Error() string {
	return fmt.Sprintf("checkpoint %q unresolved after %v; operator action required", error.Signature, error.Waited)
}

// PrivacyRestrictedError never leaves a section extractor; it is turned into a status flag.
type PrivacyRestrictedError struct {
	Section   string
	Indicator string
}

func (error PrivacyRestrictedError) Error() string {
	return fmt.Sprintf("%v: content not available (%q)", error.Section, error.Indicator)
}

type ExtractionExhaustedError struct {
	Field string
	Rules int
}

func (error ExtractionExhaustedError) Error() string {
	return fmt.Sprintf("field %v: all %d locator rules failed", error.Field, error.Rules)
}

type SessionCorruptError struct {
	Path string
	Err  error
}

func (error SessionCorruptError) Error() string {
	return fmt.Sprintf("session store %v is unreadable: %v", error.Path, error.Err)
}

func (error SessionCorruptError) Unwrap() error {
	return error.Err
}

// TooManyChallengesError is returned once a run hits more checkpoints than allowed.
type TooManyChallengesError struct {
	Count int
}

func (error TooManyChallengesError) Error() string {
	return fmt.Sprintf("checkpoint raised %d times in one run; stopping", error.Count)
}

// IsRunFatal reports whether err must stop the whole run and be surfaced to the operator.
func IsRunFatal(err error) bool {
	var challenge ChallengeTimeoutError
	var corrupt SessionCorruptError
	var tooMany TooManyChallengesError
	return errors.As(err, &challenge) || errors.As(err, &corrupt) || errors.As(err, &tooMany)
}
