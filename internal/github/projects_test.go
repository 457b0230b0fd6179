package github

import (
	"testing"
	"time"

	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghcalsync/ghcalsync/internal/models"
)

func dateFieldValue(name, date string) fieldValueNode {
	var node fieldValueNode
	node.DateValue.Field.ProjectV2Field.Name = githubv4.String(name)
	d := githubv4.String(date)
	node.DateValue.Date = &d
	return node
}

func textFieldValue(name, text string) fieldValueNode {
	var node fieldValueNode
	node.TextValue.Field.ProjectV2Field.Name = githubv4.String(name)
	v := githubv4.String(text)
	node.TextValue.Text = &v
	return node
}

func selectFieldValue(name, option string) fieldValueNode {
	var node fieldValueNode
	node.SelectValue.Field.ProjectV2SingleSelectField.Name = githubv4.String(name)
	v := githubv4.String(option)
	node.SelectValue.Name = &v
	return node
}

func TestExtractFieldValues(t *testing.T) {
	values := extractFieldValues([]fieldValueNode{
		dateFieldValue("Target Date", "2024-07-01"),
		textFieldValue("Notes", "bring slides"),
		selectFieldValue("Status", "In Progress"),
	})

	require.Len(t, values, 3)
	assert.Equal(t, models.FieldValue{Kind: models.FieldDate, Value: "2024-07-01"}, values["Target Date"])
	assert.Equal(t, models.FieldValue{Kind: models.FieldText, Value: "bring slides"}, values["Notes"])
	assert.Equal(t, models.FieldValue{Kind: models.FieldSelect, Value: "In Progress"}, values["Status"])
}

func TestExtractFieldValuesSkipsEmptyVariants(t *testing.T) {
	var empty fieldValueNode

	values := extractFieldValues([]fieldValueNode{empty})

	assert.Empty(t, values)
}

func TestExtractFieldValuesLastWriteWins(t *testing.T) {
	values := extractFieldValues([]fieldValueNode{
		textFieldValue("Status", "stale"),
		selectFieldValue("Status", "Done"),
	})

	assert.Equal(t, models.FieldValue{Kind: models.FieldSelect, Value: "Done"}, values["Status"])
}

func issueItemNode() projectItemNode {
	var node projectItemNode
	node.ID = githubv4.ID("PVTI_1")
	node.Type = githubv4.String(string(models.ItemTypeIssue))
	node.Content.Issue.ID = githubv4.ID("I_1")
	node.Content.Issue.Number = 7
	node.Content.Issue.Title = "Ship dark mode"
	node.Content.Issue.State = "OPEN"
	node.Content.Issue.CreatedAt = githubv4.DateTime{Time: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	node.Content.Issue.UpdatedAt = githubv4.DateTime{Time: time.Date(2024, 5, 20, 11, 0, 0, 0, time.UTC)}
	return node
}

func TestTransformProjectItemIssue(t *testing.T) {
	project := models.Project{ID: "PVT_1", Title: "Roadmap", Number: 3}

	item := transformProjectItem(issueItemNode(), project)

	assert.Equal(t, "PVTI_1", item.ID)
	assert.Equal(t, models.ItemTypeIssue, item.Type)
	assert.Equal(t, project, item.Project)
	require.NotNil(t, item.Content)
	assert.Equal(t, "I_1", item.Content.ID)
	assert.Equal(t, 7, item.Content.Number)
	assert.Equal(t, "Ship dark mode", item.Content.Title)
}

func TestTransformProjectItemDraftSynthesizesURL(t *testing.T) {
	var node projectItemNode
	node.ID = githubv4.ID("PVTI_2")
	node.Type = githubv4.String(string(models.ItemTypeDraftIssue))
	node.Content.DraftIssue.ID = githubv4.ID("DI_1")
	node.Content.DraftIssue.Title = "Plan offsite"
	node.Content.DraftIssue.CreatedAt = githubv4.DateTime{Time: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)}
	node.Content.DraftIssue.UpdatedAt = githubv4.DateTime{Time: time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)}

	item := transformProjectItem(node, models.Project{ID: "PVT_1", Title: "roadmap", Number: 3})

	require.NotNil(t, item.Content)
	assert.Equal(t, "https://github.com/users/roadmap/projects/3", item.Content.URL)
	assert.Equal(t, "OPEN", item.Content.State)
	assert.Empty(t, item.Content.Labels)
	assert.NotNil(t, item.Content.Labels)
}

func TestTransformProjectItemMissingContentLeavesContentNil(t *testing.T) {
	var node projectItemNode
	node.ID = githubv4.ID("PVTI_3")
	node.Type = githubv4.String(string(models.ItemTypeIssue))

	item := transformProjectItem(node, models.Project{ID: "PVT_1"})

	assert.Nil(t, item.Content)
}

func TestOpenProjectsDropsClosedBoards(t *testing.T) {
	projects := []models.ProjectInfo{
		{ID: "a", Closed: false},
		{ID: "b", Closed: true},
		{ID: "c", Closed: false},
	}

	open := openProjects(projects)

	require.Len(t, open, 2)
	assert.Equal(t, "a", open[0].ID)
	assert.Equal(t, "c", open[1].ID)
}
