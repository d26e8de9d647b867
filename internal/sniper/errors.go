package sniper

import "errors"

var (
	// ErrLoginFailed is returned when the site answers a login with the login page again.
	ErrLoginFailed = errors.New("login failed: check email and password")

	// ErrMissingAuthenticityToken is returned when the login form has no CSRF token.
	ErrMissingAuthenticityToken = errors.New("login form has no authenticity token")

	// ErrRewardNotFound is returned when the pledge page has no radio for the reward id.
	ErrRewardNotFound = errors.New("reward not found on pledge page")

	// ErrDescriptionMismatch is returned when the reward text does not start with the expected description.
	ErrDescriptionMismatch = errors.New("reward description mismatch")

	// ErrPledgeBelowReward is returned when the current pledge is lower than the reward minimum.
	ErrPledgeBelowReward = errors.New("original pledge is below the reward minimum")

	// ErrInvalidAmount is returned when a price or pledge value cannot be parsed.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrUnexpectedPage is returned when the site serves a page other than the
	// pledge form where one is required.
	ErrUnexpectedPage = errors.New("unexpected page")

	// ErrMissingForm is returned when the pledge or confirmation form cannot be located.
	ErrMissingForm = errors.New("form not found")
)
