package sniper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/kickscan/internal/fetch"
	"github.com/nao1215/kickscan/internal/kickstarter"
	"github.com/nao1215/kickscan/internal/model"
	"github.com/nao1215/kickscan/internal/pagination"
)

// DefaultInterval is the pause between polls while the reward is sold out.
const DefaultInterval = 10 * time.Second

const (
	loginPath   = "/login"
	sessionPath = "/session"
)

// Session is an HTTP session that keeps cookies between requests.
// *fetch.Client implements it.
type Session interface {
	fetch.Fetcher
	PostForm(ctx context.Context, path string, form url.Values) (*goquery.Document, error)
}

// Credentials are the account login.
type Credentials struct {
	Email    string
	Password string
}

// Target identifies the reward to switch to.
type Target struct {
	Project  model.ProjectRef
	RewardID string

	// Description is the leading text of the reward description. It guards
	// against a reward id typo landing on the wrong tier.
	Description string
}

// Pledge holds the two amounts checked during verification.
type Pledge struct {
	Minimum  float64 `json:"minimum"`
	Original float64 `json:"original"`
}

// Result summarizes a finished run.
type Result struct {
	Pledge   Pledge        `json:"pledge"`
	Polls    int           `json:"polls"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// Sniper polls the pledge page and switches to the target reward.
// A Sniper is not safe for concurrent use.
type Sniper struct {
	session  Session
	creds    Credentials
	target   Target
	interval time.Duration
	sleeper  pagination.Sleeper
	logger   *slog.Logger
	now      func() time.Time

	state    State
	pledge   Pledge
	polls    int
	attempts int
}

// Option configures a Sniper.
type Option func(*Sniper)

// WithInterval sets the pause between polls.
func WithInterval(d time.Duration) Option {
	return func(s *Sniper) { s.interval = d }
}

// WithSleeper replaces the timer-based sleeper, mainly for tests.
func WithSleeper(sleeper pagination.Sleeper) Option {
	return func(s *Sniper) { s.sleeper = sleeper }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sniper) { s.logger = logger }
}

// WithClock replaces time.Now for the run duration.
func WithClock(now func() time.Time) Option {
	return func(s *Sniper) { s.now = now }
}

// New creates a Sniper in the LoggedOut state.
func New(session Session, creds Credentials, target Target, opts ...Option) *Sniper {
	s := &Sniper{
		session:  session,
		creds:    creds,
		target:   target,
		interval: DefaultInterval,
		sleeper:  pagination.TimerSleeper,
		logger:   slog.Default(),
		now:      time.Now,
		state:    StateLoggedOut,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Sniper) State() State {
	return s.state
}

// Attempts returns how many polls found the reward not yet selected.
func (s *Sniper) Attempts() int {
	return s.attempts
}

// Run logs in, verifies the target and polls until the reward is selected,
// the context is cancelled, or an unrecoverable error occurs.
func (s *Sniper) Run(ctx context.Context) (*Result, error) {
	start := s.now()
	result := func() *Result {
		return &Result{
			Pledge:   s.pledge,
			Polls:    s.polls,
			Attempts: s.attempts,
			Duration: s.now().Sub(start),
		}
	}

	s.logger.Info("logging in")
	if err := s.Login(ctx); err != nil {
		return result(), err
	}
	s.logger.Info("verifying reward", "project", s.target.Project.String(), "reward", s.target.RewardID)
	if _, err := s.Verify(ctx); err != nil {
		return result(), err
	}
	s.logger.Info("entering loop",
		"target_reward", s.pledge.Minimum,
		"original_pledge", s.pledge.Original,
		"interval", s.interval,
	)
	for s.state != StateDone {
		if err := s.Poll(ctx); err != nil {
			return result(), err
		}
	}
	s.logger.Info("reward selected", "attempts", s.attempts, "polls", s.polls)
	return result(), nil
}

// Login submits the login form. The session keeps the resulting cookie.
func (s *Sniper) Login(ctx context.Context) error {
	doc, err := s.session.Fetch(ctx, loginPath, nil)
	if err != nil {
		return err
	}
	token := doc.Find("#login input[name=authenticity_token]").First()
	if token.Length() == 0 {
		token = doc.Find("input[name=authenticity_token]").First()
	}
	value, ok := token.Attr("value")
	if !ok {
		return ErrMissingAuthenticityToken
	}

	form := url.Values{
		"utf8":               {"✓"},
		"authenticity_token": {value},
		"email":              {s.creds.Email},
		"password":           {s.creds.Password},
		"remember_me":        {"1"},
		"commit":             {"Log me in!"},
	}
	doc, err = s.session.PostForm(ctx, sessionPath, form)
	if err != nil {
		return err
	}
	if pageID(doc) == pageLogin {
		s.state = StateLoggedOut
		return ErrLoginFailed
	}
	s.state = StateAwaitingTarget
	s.logger.Debug("logged in", "email", s.creds.Email)
	return nil
}

// Verify loads the pledge page once and checks the target reward: it must
// exist, match the expected description and cost no more than the current
// pledge.
func (s *Sniper) Verify(ctx context.Context) (Pledge, error) {
	doc, err := s.session.Fetch(ctx, s.managePath(), nil)
	if err != nil {
		return Pledge{}, err
	}
	if id := pageID(doc); id != pagePledgeEdit {
		return Pledge{}, fmt.Errorf("%w: expected pledge form, got %q", ErrUnexpectedPage, id)
	}

	reward, err := s.findReward(doc)
	if err != nil {
		return Pledge{}, err
	}
	short := strings.TrimSpace(reward.Find(".short").First().Text())
	if !strings.HasPrefix(short, s.target.Description) {
		return Pledge{}, fmt.Errorf("%w: reward %s reads %q", ErrDescriptionMismatch, s.target.RewardID, short)
	}

	minimum, err := parsePrice(reward.Find(".radio").First().AttrOr("title", ""))
	if err != nil {
		return Pledge{}, fmt.Errorf("reward minimum: %w", err)
	}
	original, err := parsePrice(doc.Find("#backing_original_pledge").AttrOr("value", ""))
	if err != nil {
		return Pledge{}, fmt.Errorf("original pledge: %w", err)
	}
	if original < minimum {
		return Pledge{}, fmt.Errorf("%w: %s < %s", ErrPledgeBelowReward, formatAmount(original), formatAmount(minimum))
	}

	s.pledge = Pledge{Minimum: minimum, Original: original}
	return s.pledge, nil
}

// Poll loads the pledge page once and acts on it.
func (s *Sniper) Poll(ctx context.Context) error {
	s.polls++
	doc, err := s.session.Fetch(ctx, s.managePath(), nil)
	if err != nil {
		return err
	}

	switch id := pageID(doc); id {
	case pageLogin:
		s.state = StateLoggedOut
		s.logger.Warn("session expired, logging in again")
		return s.Login(ctx)
	case pagePledgeEdit:
	default:
		s.logger.Warn("unexpected page, retrying", "page", id)
		return s.sleeper.Sleep(ctx, s.interval)
	}

	reward, err := s.findReward(doc)
	if err != nil {
		return err
	}
	s.state = classState(reward.AttrOr("class", ""))
	switch s.state {
	case StateDone:
		return nil
	case StateArmed:
		s.logger.Info("attempting snipe", "attempt", s.attempts+1)
		if err := s.submit(ctx, doc, reward); err != nil {
			return err
		}
	}
	s.attempts++
	s.logger.Debug("reward not selected yet", "state", s.state.String(), "attempts", s.attempts)
	return s.sleeper.Sleep(ctx, s.interval)
}

// submit switches the pledge to the target reward and confirms the change.
func (s *Sniper) submit(ctx context.Context, doc *goquery.Document, reward *goquery.Selection) error {
	radio := doc.Find(rewardSelector(s.target.RewardID)).First()
	form := radio.Closest("form")
	if form.Length() == 0 {
		return fmt.Errorf("%w: pledge form around reward %s", ErrMissingForm, s.target.RewardID)
	}

	values := formValues(form)
	if name, ok := radio.Attr("name"); ok {
		values.Set(name, radio.AttrOr("value", s.target.RewardID))
	}
	if s.pledge.Original > s.pledge.Minimum {
		s.logger.Info("setting pledge to target reward", "amount", s.pledge.Minimum)
		if name, ok := form.Find("#backing_amount").Attr("name"); ok {
			values.Set(name, formatAmount(s.pledge.Minimum))
		}
	}

	confirm, err := s.session.PostForm(ctx, formAction(form, s.managePath()), values)
	if err != nil {
		return err
	}

	confirmForm := confirm.Find(".confirm-yes").First().Closest("form")
	if confirmForm.Length() == 0 {
		s.logger.Warn("no confirmation form after submitting pledge", "reward_class", reward.AttrOr("class", ""))
		return nil
	}
	_, err = s.session.PostForm(ctx, formAction(confirmForm, s.managePath()), formValues(confirmForm))
	return err
}

func (s *Sniper) findReward(doc *goquery.Document) (*goquery.Selection, error) {
	radio := doc.Find(rewardSelector(s.target.RewardID)).First()
	if radio.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRewardNotFound, s.target.RewardID)
	}
	return radio.Parent(), nil
}

func (s *Sniper) managePath() string {
	return kickstarter.ManagePledgePath(s.target.Project)
}

func rewardSelector(id string) string {
	return "#backing_backer_reward_id_" + id
}

func pageID(doc *goquery.Document) string {
	return doc.Find("body").AttrOr("id", "")
}
