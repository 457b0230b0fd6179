package calendar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghcalsync/ghcalsync/internal/models"
)

func testDraft() models.EventDraft {
	return models.EventDraft{
		Summary:      "[webapp] Fix login crash",
		Description:  "details",
		Start:        models.EventTime{DateTime: "2024-03-10T14:30:00Z", TimeZone: "UTC"},
		End:          models.EventTime{DateTime: "2024-03-10T15:30:00Z", TimeZone: "UTC"},
		SourceItemID: "I_abc123",
		SourceURL:    "https://github.com/acme/webapp/issues/42",
		SourceRepo:   "acme/webapp",
		ColorID:      "11",
		Reminders:    []models.Reminder{{Method: "popup", Minutes: 30}},
	}
}

func TestToGoogleEventCarriesSourceProperties(t *testing.T) {
	ev := toGoogleEvent(testDraft())

	require.NotNil(t, ev.ExtendedProperties)
	assert.Equal(t, "I_abc123", ev.ExtendedProperties.Private["githubIssueId"])
	assert.Equal(t, "https://github.com/acme/webapp/issues/42", ev.ExtendedProperties.Private["githubUrl"])
	assert.Equal(t, "acme/webapp", ev.ExtendedProperties.Private["githubRepo"])
	assert.Equal(t, "11", ev.ColorId)
}

func TestToGoogleEventTimedWindow(t *testing.T) {
	ev := toGoogleEvent(testDraft())

	require.NotNil(t, ev.Start)
	assert.Equal(t, "2024-03-10T14:30:00Z", ev.Start.DateTime)
	assert.Equal(t, "UTC", ev.Start.TimeZone)
	assert.Empty(t, ev.Start.Date)
}

func TestToGoogleEventAllDayWindow(t *testing.T) {
	draft := testDraft()
	draft.Start = models.EventTime{Date: "2024-04-15"}
	draft.End = models.EventTime{Date: "2024-04-16"}

	ev := toGoogleEvent(draft)

	assert.Equal(t, "2024-04-15", ev.Start.Date)
	assert.Equal(t, "2024-04-16", ev.End.Date)
	assert.Empty(t, ev.Start.DateTime)
}

func TestToGoogleEventReminders(t *testing.T) {
	ev := toGoogleEvent(testDraft())

	require.NotNil(t, ev.Reminders)
	assert.False(t, ev.Reminders.UseDefault)
	assert.Contains(t, ev.Reminders.ForceSendFields, "UseDefault")
	require.Len(t, ev.Reminders.Overrides, 1)
	assert.Equal(t, "popup", ev.Reminders.Overrides[0].Method)
	assert.Equal(t, int64(30), ev.Reminders.Overrides[0].Minutes)
}

func TestNewServiceRequiresCredentials(t *testing.T) {
	_, err := NewService(Config{ClientID: "id"})
	assert.Error(t, err)
}

func TestNewServiceDefaultsToPrimaryCalendar(t *testing.T) {
	svc, err := NewService(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost:8080/auth/google/callback",
		TokensDir:    t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, "primary", svc.calendarID)
	assert.False(t, svc.IsAuthenticated())
}

func TestAuthURLRequestsOfflineConsent(t *testing.T) {
	svc, err := NewService(Config{
		ClientID:     "id",
		ClientSecret: "secret",
		RedirectURI:  "http://localhost:8080/auth/google/callback",
		TokensDir:    t.TempDir(),
	})
	require.NoError(t, err)

	url := svc.AuthURL()
	assert.Contains(t, url, "access_type=offline")
	assert.Contains(t, url, "prompt=consent")
}
