// Package calendar talks to the Google Calendar API. Events created
// here carry the source item ID as a private extended property, which
// is how re-runs find an already-synced event.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/ghcalsync/ghcalsync/internal/models"
)

// Extended property keys stored on every synced event.
const (
	propSourceID = "githubIssueId"
	propURL      = "githubUrl"
	propRepo     = "githubRepo"
)

const tokenFileName = "google-tokens.json"

// Config carries the OAuth client credentials and calendar target.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	CalendarID   string
	TokensDir    string
}

// Service wraps the Google Calendar API with token persistence and the
// extended-property lookup the sync engine reconciles against.
type Service struct {
	oauth      *oauth2.Config
	calendarID string
	tokenPath  string
	log        *logrus.Entry

	mu    sync.Mutex
	token *oauth2.Token
	svc   *gcal.Service
}

// NewService creates the calendar service. Missing OAuth credentials
// are a configuration error and refuse initialization. A previously
// saved token is loaded if present; otherwise the service starts
// unauthenticated and operations fail until the OAuth flow completes.
func NewService(cfg Config) (*Service, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURI == "" {
		return nil, fmt.Errorf("google oauth client id, secret and redirect uri are required")
	}

	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	s := &Service{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes: []string{
				gcal.CalendarScope,
				gcal.CalendarEventsScope,
			},
			Endpoint: google.Endpoint,
		},
		calendarID: calendarID,
		tokenPath:  filepath.Join(cfg.TokensDir, tokenFileName),
		log:        logrus.WithField("component", "calendar"),
	}

	if err := s.loadToken(); err != nil {
		s.log.WithError(err).Warn("no saved token, authorization required; visit /auth/google")
	}

	return s, nil
}

func (s *Service) loadToken() error {
	data, err := os.ReadFile(s.tokenPath)
	if err != nil {
		return err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return fmt.Errorf("failed to parse saved token: %w", err)
	}

	return s.setToken(&token)
}

func (s *Service) saveToken(token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(s.tokenPath), 0700); err != nil {
		return fmt.Errorf("failed to create tokens directory: %w", err)
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.WriteFile(s.tokenPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

func (s *Service) setToken(token *oauth2.Token) error {
	svc, err := gcal.NewService(context.Background(),
		option.WithTokenSource(s.oauth.TokenSource(context.Background(), token)))
	if err != nil {
		return fmt.Errorf("failed to build calendar client: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.svc = svc
	s.mu.Unlock()
	return nil
}

// AuthURL returns the URL a user must visit to authorize calendar access.
func (s *Service) AuthURL() string {
	return s.oauth.AuthCodeURL("state",
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange completes the OAuth flow with the callback code, persisting
// the token for later restarts.
func (s *Service) Exchange(ctx context.Context, code string) error {
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("oauth exchange failed: %w", err)
	}

	if err := s.setToken(token); err != nil {
		return err
	}
	if err := s.saveToken(token); err != nil {
		s.log.WithError(err).Error("failed to persist token")
	}

	s.log.Info("google calendar authorization successful")
	return nil
}

// IsAuthenticated reports whether an authorized session is available.
func (s *Service) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != nil && s.token.AccessToken != ""
}

func (s *Service) client() (*gcal.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.svc == nil || s.token == nil || s.token.AccessToken == "" {
		return nil, fmt.Errorf("not authenticated with google calendar")
	}
	return s.svc, nil
}

// CreateEvent inserts a new event and returns its remote ID.
func (s *Service) CreateEvent(ctx context.Context, draft models.EventDraft) (string, error) {
	svc, err := s.client()
	if err != nil {
		return "", err
	}

	created, err := svc.Events.Insert(s.calendarID, toGoogleEvent(draft)).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create event %q: %w", draft.Summary, err)
	}

	s.log.WithFields(logrus.Fields{"summary": draft.Summary, "id": created.Id}).Info("created calendar event")
	return created.Id, nil
}

// UpdateEvent replaces an existing event identified by its remote ID.
func (s *Service) UpdateEvent(ctx context.Context, eventID string, draft models.EventDraft) error {
	svc, err := s.client()
	if err != nil {
		return err
	}

	if _, err := svc.Events.Update(s.calendarID, eventID, toGoogleEvent(draft)).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to update event %s: %w", eventID, err)
	}

	s.log.WithFields(logrus.Fields{"summary": draft.Summary, "id": eventID}).Info("updated calendar event")
	return nil
}

// DeleteEvent removes an event by its remote ID.
func (s *Service) DeleteEvent(ctx context.Context, eventID string) error {
	svc, err := s.client()
	if err != nil {
		return err
	}

	if err := svc.Events.Delete(s.calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete event %s: %w", eventID, err)
	}

	s.log.WithField("id", eventID).Info("deleted calendar event")
	return nil
}

// FindEventBySourceID looks up an event by the source item ID stored in
// its private extended properties. It returns the remote event ID of
// the first match, or "" when no event exists for that key.
func (s *Service) FindEventBySourceID(ctx context.Context, sourceID string) (string, error) {
	svc, err := s.client()
	if err != nil {
		return "", err
	}

	list, err := svc.Events.List(s.calendarID).
		PrivateExtendedProperty(propSourceID + "=" + sourceID).
		MaxResults(1).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to find event for source item %s: %w", sourceID, err)
	}

	if len(list.Items) == 0 {
		return "", nil
	}
	return list.Items[0].Id, nil
}

// ListCalendars returns the calendars visible to the authorized account.
func (s *Service) ListCalendars(ctx context.Context) ([]*gcal.CalendarListEntry, error) {
	svc, err := s.client()
	if err != nil {
		return nil, err
	}

	list, err := svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	return list.Items, nil
}

func toGoogleEvent(draft models.EventDraft) *gcal.Event {
	ev := &gcal.Event{
		Summary:     draft.Summary,
		Description: draft.Description,
		Start:       toGoogleTime(draft.Start),
		End:         toGoogleTime(draft.End),
		ExtendedProperties: &gcal.EventExtendedProperties{
			Private: map[string]string{
				propSourceID: draft.SourceItemID,
				propURL:      draft.SourceURL,
				propRepo:     draft.SourceRepo,
			},
		},
	}

	if draft.ColorID != "" {
		ev.ColorId = draft.ColorID
	}

	if len(draft.Reminders) > 0 {
		overrides := make([]*gcal.EventReminder, 0, len(draft.Reminders))
		for _, r := range draft.Reminders {
			overrides = append(overrides, &gcal.EventReminder{
				Method:  r.Method,
				Minutes: int64(r.Minutes),
			})
		}
		ev.Reminders = &gcal.EventReminders{
			UseDefault:      false,
			Overrides:       overrides,
			ForceSendFields: []string{"UseDefault"},
		}
	}

	return ev
}

func toGoogleTime(t models.EventTime) *gcal.EventDateTime {
	if t.AllDay() {
		return &gcal.EventDateTime{Date: t.Date}
	}
	return &gcal.EventDateTime{DateTime: t.DateTime, TimeZone: t.TimeZone}
}
