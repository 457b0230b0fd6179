package models

import "time"

// Repository identifies the GitHub repository an issue belongs to.
type Repository struct {
	Owner    string
	Name     string
	FullName string
}

// Label is a GitHub issue label.
type Label struct {
	Name  string
	Color string
}

// Milestone is a GitHub milestone attached to an issue.
type Milestone struct {
	Title string
	DueOn *time.Time
}

// Issue is the canonical form of a GitHub issue fetched from any
// configured source. ID is the GraphQL node ID and doubles as the
// dedup and calendar idempotency key.
type Issue struct {
	ID         string
	Number     int
	Title      string
	Body       string
	URL        string
	State      string
	Repository Repository
	Author     string
	Assignees  []string
	Labels     []Label
	Milestone  *Milestone
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ClosedAt   *time.Time
}

// ItemType distinguishes the three Projects v2 item variants.
type ItemType string

const (
	ItemTypeIssue       ItemType = "ISSUE"
	ItemTypePullRequest ItemType = "PULL_REQUEST"
	ItemTypeDraftIssue  ItemType = "DRAFT_ISSUE"
)

// FieldKind tags which variant of a project field value is populated.
type FieldKind string

const (
	FieldDate   FieldKind = "date"
	FieldText   FieldKind = "text"
	FieldSelect FieldKind = "select"
)

// FieldValue is one custom field value on a project item. Date values
// carry the raw YYYY-MM-DD string from the API.
type FieldValue struct {
	Kind  FieldKind
	Value string
}

// Project identifies the Projects v2 board an item belongs to.
type Project struct {
	ID     string
	Title  string
	Number int
}

// ProjectInfo is a project board as listed for selection, before any
// items are fetched.
type ProjectInfo struct {
	ID               string `json:"id"`
	Number           int    `json:"number"`
	Title            string `json:"title"`
	URL              string `json:"url"`
	ShortDescription string `json:"shortDescription"`
	Public           bool   `json:"public"`
	Closed           bool   `json:"closed"`
	Owner            string `json:"owner"`
}

// ItemContent is the embedded issue/PR/draft content of a project item.
// Number and ClosedAt are absent for drafts.
type ItemContent struct {
	ID        string
	Number    int
	Title     string
	Body      string
	URL       string
	State     string
	CreatedAt time.Time
	UpdatedAt time.Time
	ClosedAt  *time.Time
	Assignees []string
	Labels    []Label
}

// ProjectItem is the canonical form of a Projects v2 item. Field values
// are keyed by the field's declared name; keys are open-ended but
// "Meeting Date" and "Target Date" get special treatment in mapping.
type ProjectItem struct {
	ID          string
	Type        ItemType
	Project     Project
	FieldValues map[string]FieldValue
	Content     *ItemContent
}

// EventTime is a calendar event boundary: either an all-day date
// (YYYY-MM-DD, no time component) or a timestamp with a timezone.
type EventTime struct {
	Date     string
	DateTime string
	TimeZone string
}

// AllDay reports whether the boundary is a date-only marker.
func (t EventTime) AllDay() bool {
	return t.Date != ""
}

// Reminder is a calendar event reminder override.
type Reminder struct {
	Method  string
	Minutes int
}

// EventDraft is the mapped calendar representation of a source item and
// the sole input to reconciliation. SourceItemID is the idempotency key
// carried unchanged from Issue.ID or ProjectItem.ID.
type EventDraft struct {
	Summary      string
	Description  string
	Start        EventTime
	End          EventTime
	SourceItemID string
	SourceURL    string
	SourceRepo   string
	ColorID      string
	Reminders    []Reminder
}

// Stats accumulates per-run sync counters.
type Stats struct {
	Total    int           `json:"totalItems"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Errors   int           `json:"errors"`
	Duration time.Duration `json:"duration"`
}

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Result is the structured outcome of one sync run.
type Result struct {
	Status      string     `json:"status"`
	Stats       Stats      `json:"stats"`
	Reason      string     `json:"reason,omitempty"`
	AuthURL     string     `json:"authUrl,omitempty"`
	Message     string     `json:"message,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ProjectSelection records which project boards a user has chosen to
// sync. SelectedTasks is a reserved per-project task-id subset; the
// sync path does not consult it.
type ProjectSelection struct {
	Username      string              `json:"username"`
	ProjectIDs    []string            `json:"projectIds"`
	SelectedTasks map[string][]string `json:"selectedTasks,omitempty"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}
