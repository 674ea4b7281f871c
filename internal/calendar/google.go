package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// ClientSecretFile is the OAuth client file expected in the credentials
// directory, as downloaded from the Google Cloud console.
const ClientSecretFile = "client_secret.json"

// DefaultRedirectURL matches the server's OAuth callback route.
const DefaultRedirectURL = "http://localhost:8010/google-auth/callback"

// StateTTL is how long an AuthURL state stays redeemable.
const StateTTL = 10 * time.Minute

// Google creates events on the user's primary Google calendar. Each user
// authorizes once through AuthURL and Exchange; the resulting token is
// kept in the credentials directory.
type Google struct {
	dir    string
	oauth  *oauth2.Config
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]pendingAuth // keyed by oauth state

	// extra options for calendar.NewService
	serviceOpts []option.ClientOption
}

// NewGoogle loads the OAuth client from dir. An empty redirectURL uses
// DefaultRedirectURL.
func NewGoogle(dir, redirectURL string) (*Google, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credentials dir: %w", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, ClientSecretFile))
	if err != nil {
		return nil, fmt.Errorf("read client secret: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, gcal.CalendarScope)
	if err != nil {
		return nil, fmt.Errorf("parse client secret: %w", err)
	}
	if redirectURL == "" {
		redirectURL = DefaultRedirectURL
	}
	cfg.RedirectURL = redirectURL
	return &Google{
		dir:     dir,
		oauth:   cfg,
		logger:  slog.Default(),
		now:     time.Now,
		pending: make(map[string]pendingAuth),
	}, nil
}

type pendingAuth struct {
	userID  string
	expires time.Time
}

func (g *Google) tokenPath(userID string) string {
	return filepath.Join(g.dir, url.PathEscape(userID)+"_token.json")
}

// AuthURL returns the consent page URL for userID. The state is a random
// single-use value remembered here, so a callback can only bind a token
// to the user who started the flow.
func (g *Google) AuthURL(userID string) string {
	state := uuid.NewString()
	now := g.now()

	g.mu.Lock()
	for k, p := range g.pending {
		if now.After(p.expires) {
			delete(g.pending, k)
		}
	}
	g.pending[state] = pendingAuth{userID: userID, expires: now.Add(StateTTL)}
	g.mu.Unlock()

	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// redeem consumes a pending state and returns its user.
func (g *Google) redeem(state string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pending[state]
	if !ok {
		return "", false
	}
	delete(g.pending, state)
	if g.now().After(p.expires) {
		return "", false
	}
	return p.userID, true
}

// Exchange redeems state, trades the authorization code for a token and
// stores it for the user the state was issued to.
func (g *Google) Exchange(ctx context.Context, state, code string) (string, error) {
	userID, ok := g.redeem(state)
	if !ok {
		return "", &CalendarError{Op: "exchange", Err: ErrInvalidState}
	}
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return "", &CalendarError{Op: "exchange", UserID: userID, Err: err}
	}
	if err := g.saveToken(userID, tok); err != nil {
		return "", &CalendarError{Op: "exchange", UserID: userID, Err: err}
	}
	return userID, nil
}

// Authorized reports whether a token is stored for the user.
func (g *Google) Authorized(userID string) bool {
	_, err := os.Stat(g.tokenPath(userID))
	return err == nil
}

func (g *Google) loadToken(userID string) (*oauth2.Token, error) {
	data, err := os.ReadFile(g.tokenPath(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotAuthorized
	}
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return &tok, nil
}

func (g *Google) saveToken(userID string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.WriteFile(g.tokenPath(userID), data, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// CreateEvent inserts the event into the primary calendar and returns its
// link. With Meet set, the conference link is returned when Google
// provides one.
func (g *Google) CreateEvent(ctx context.Context, p EventParams) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	tok, err := g.loadToken(p.UserID)
	if err != nil {
		return "", &CalendarError{Op: "create event", UserID: p.UserID, Err: err}
	}
	ts := g.oauth.TokenSource(ctx, tok)

	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, g.serviceOpts...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return "", &CalendarError{Op: "create event", UserID: p.UserID, Err: err}
	}

	event := &gcal.Event{
		Summary:     p.Summary,
		Description: p.Description,
		Start:       &gcal.EventDateTime{DateTime: p.StartTime.UTC().Format("2006-01-02T15:04:05"), TimeZone: "UTC"},
		End:         &gcal.EventDateTime{DateTime: p.EndTime.UTC().Format("2006-01-02T15:04:05"), TimeZone: "UTC"},
		Reminders:   &gcal.EventReminders{UseDefault: true},
	}
	for _, email := range p.Attendees {
		event.Attendees = append(event.Attendees, &gcal.EventAttendee{Email: email})
	}

	if p.Meet {
		event.ConferenceData = &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
	}

	call := svc.Events.Insert("primary", event).Context(ctx)
	if p.Meet {
		call = call.ConferenceDataVersion(1)
	}

	created, err := call.Do()
	if err != nil {
		return "", &CalendarError{Op: "create event", UserID: p.UserID, Err: err}
	}

	// Persist a refreshed token so the next call skips the refresh.
	if fresh, err := ts.Token(); err == nil && fresh.AccessToken != tok.AccessToken {
		if err := g.saveToken(p.UserID, fresh); err != nil {
			g.logger.Warn("failed to save refreshed calendar token", "user", p.UserID, "error", err)
		}
	}

	if p.Meet && created.HangoutLink != "" {
		return created.HangoutLink, nil
	}
	return created.HtmlLink, nil
}
