// Package event derives calendar event drafts from canonical source
// items. The derivation is deterministic: the same item always maps to
// the same draft.
package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ghcalsync/ghcalsync/internal/models"
)

// Google Calendar color IDs.
const (
	colorTomato    = "11" // critical/urgent/bug
	colorBlueberry = "9"  // feature
	colorBasil     = "10" // enhancement
	colorPeacock   = "7"  // documentation
	colorBanana    = "5"  // question
	colorGraphite  = "8"  // default
)

// Reserved project field names that drive event scheduling.
const (
	fieldMeetingDate = "Meeting Date"
	fieldTargetDate  = "Target Date"
)

const maxBodyLength = 500

const dateLayout = "2006-01-02"

var defaultReminders = []models.Reminder{{Method: "popup", Minutes: 30}}

// MapIssue maps an issue to a calendar event draft. An issue with a
// milestone due date becomes an all-day event on that date; otherwise it
// becomes a one-hour event at its last-updated timestamp in UTC.
func MapIssue(issue models.Issue) models.EventDraft {
	var start, end models.EventTime
	if issue.Milestone != nil && issue.Milestone.DueOn != nil {
		start, end = allDayWindow(*issue.Milestone.DueOn)
	} else {
		start, end = timedWindow(issue.UpdatedAt)
	}

	return models.EventDraft{
		Summary:      fmt.Sprintf("[%s] %s", issue.Repository.Name, issue.Title),
		Description:  issueDescription(issue),
		Start:        start,
		End:          end,
		SourceItemID: issue.ID,
		SourceURL:    issue.URL,
		SourceRepo:   issue.Repository.FullName,
		ColorID:      colorForLabels(issue.Labels),
		Reminders:    defaultReminders,
	}
}

// MapProjectItem maps a project item to a calendar event draft. The
// start date comes from the "Meeting Date" field, then "Target Date",
// then the content's last-updated timestamp; the first match wins.
func MapProjectItem(item models.ProjectItem) (models.EventDraft, error) {
	content := item.Content
	if content == nil {
		return models.EventDraft{}, fmt.Errorf("project item %s has no content", item.ID)
	}

	start, end := projectItemWindow(item)

	colorID := colorGraphite
	if len(content.Labels) > 0 {
		colorID = colorForLabels(content.Labels)
	}

	return models.EventDraft{
		Summary:      fmt.Sprintf("%s [%s] %s", typeGlyph(item.Type), item.Project.Title, content.Title),
		Description:  projectItemDescription(item),
		Start:        start,
		End:          end,
		SourceItemID: item.ID,
		SourceURL:    content.URL,
		SourceRepo:   item.Project.Title,
		ColorID:      colorID,
		Reminders:    defaultReminders,
	}, nil
}

func projectItemWindow(item models.ProjectItem) (models.EventTime, models.EventTime) {
	for _, name := range []string{fieldMeetingDate, fieldTargetDate} {
		fv, ok := item.FieldValues[name]
		if !ok || fv.Value == "" {
			continue
		}
		date, err := parseFieldDate(fv.Value)
		if err != nil {
			logrus.WithField("field", name).WithField("value", fv.Value).
				Warn("unparseable date field, falling back")
			continue
		}
		return allDayWindow(date)
	}
	return timedWindow(item.Content.UpdatedAt)
}

// parseFieldDate accepts the YYYY-MM-DD form date fields carry, or a
// full RFC 3339 timestamp from a text field.
func parseFieldDate(value string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}

// allDayWindow returns a date-only start marker and an exclusive end
// one calendar day later.
func allDayWindow(t time.Time) (models.EventTime, models.EventTime) {
	day := t.UTC()
	return models.EventTime{Date: day.Format(dateLayout)},
		models.EventTime{Date: day.AddDate(0, 0, 1).Format(dateLayout)}
}

// timedWindow returns a one-hour window starting at t, in UTC.
func timedWindow(t time.Time) (models.EventTime, models.EventTime) {
	start := t.UTC()
	return models.EventTime{DateTime: start.Format(time.RFC3339), TimeZone: "UTC"},
		models.EventTime{DateTime: start.Add(time.Hour).Format(time.RFC3339), TimeZone: "UTC"}
}

func issueDescription(issue models.Issue) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("📌 Issue #%d from %s", issue.Number, issue.Repository.FullName))
	parts = append(parts, "")

	if issue.Body != "" {
		parts = append(parts, truncateBody(issue.Body))
		parts = append(parts, "")
	}

	parts = append(parts, "🔗 "+issue.URL)
	parts = append(parts, "")

	if len(issue.Assignees) > 0 {
		parts = append(parts, "👤 Assignees: "+strings.Join(issue.Assignees, ", "))
	}
	if len(issue.Labels) > 0 {
		parts = append(parts, "🏷️ Labels: "+strings.Join(labelNames(issue.Labels), ", "))
	}
	if issue.Milestone != nil {
		parts = append(parts, "🎯 Milestone: "+issue.Milestone.Title)
		if issue.Milestone.DueOn != nil {
			parts = append(parts, "⏰ Due: "+issue.Milestone.DueOn.UTC().Format(dateLayout))
		}
	}

	parts = append(parts, "")
	parts = append(parts, "📅 Created: "+issue.CreatedAt.UTC().Format(time.RFC3339))
	parts = append(parts, "🔄 Updated: "+issue.UpdatedAt.UTC().Format(time.RFC3339))

	return strings.Join(parts, "\n")
}

func projectItemDescription(item models.ProjectItem) string {
	content := item.Content
	var parts []string

	parts = append(parts, fmt.Sprintf("📋 %s from project: %s", typeLabel(item.Type), item.Project.Title))
	parts = append(parts, "")

	if content.Body != "" {
		parts = append(parts, truncateBody(content.Body))
		parts = append(parts, "")
	}

	parts = append(parts, "🔗 "+content.URL)
	parts = append(parts, "")

	if len(content.Assignees) > 0 {
		parts = append(parts, "👤 Assignees: "+strings.Join(content.Assignees, ", "))
	}
	if len(content.Labels) > 0 {
		parts = append(parts, "🏷️ Labels: "+strings.Join(labelNames(content.Labels), ", "))
	}
	if status, ok := item.FieldValues["Status"]; ok && status.Value != "" {
		parts = append(parts, "📊 Status: "+status.Value)
	}
	if priority, ok := item.FieldValues["Priority"]; ok && priority.Value != "" {
		parts = append(parts, "⚡ Priority: "+priority.Value)
	}

	parts = append(parts, "")
	parts = append(parts, "📅 Created: "+content.CreatedAt.UTC().Format(time.RFC3339))
	parts = append(parts, "🔄 Updated: "+content.UpdatedAt.UTC().Format(time.RFC3339))

	return strings.Join(parts, "\n")
}

func truncateBody(body string) string {
	runes := []rune(body)
	if len(runes) > maxBodyLength {
		return string(runes[:maxBodyLength]) + "..."
	}
	return body
}

func labelNames(labels []models.Label) []string {
	names := make([]string, 0, len(labels))
	for _, label := range labels {
		names = append(names, label.Name)
	}
	return names
}

func typeGlyph(t models.ItemType) string {
	switch t {
	case models.ItemTypeDraftIssue:
		return "📝"
	case models.ItemTypePullRequest:
		return "🔀"
	default:
		return "📋"
	}
}

func typeLabel(t models.ItemType) string {
	switch t {
	case models.ItemTypeDraftIssue:
		return "Draft Issue"
	case models.ItemTypePullRequest:
		return "Pull Request"
	default:
		return "Issue"
	}
}

// colorForLabels scans the lower-cased label names in fixed priority
// order; the first matching rule wins. Matching is substring-based, so
// "critical-path" still counts as critical.
func colorForLabels(labels []models.Label) string {
	names := make([]string, 0, len(labels))
	for _, label := range labels {
		names = append(names, strings.ToLower(label.Name))
	}

	rules := []struct {
		substrings []string
		color      string
	}{
		{[]string{"critical", "urgent"}, colorTomato},
		{[]string{"bug"}, colorTomato},
		{[]string{"feature"}, colorBlueberry},
		{[]string{"enhancement"}, colorBasil},
		{[]string{"documentation"}, colorPeacock},
		{[]string{"question"}, colorBanana},
	}

	for _, rule := range rules {
		for _, name := range names {
			for _, sub := range rule.substrings {
				if strings.Contains(name, sub) {
					return rule.color
				}
			}
		}
	}
	return colorGraphite
}
