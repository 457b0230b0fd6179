package github

import (
	"context"
	"fmt"

	"github.com/shurcooL/githubv4"

	"github.com/ghcalsync/ghcalsync/internal/models"
)

type projectNode struct {
	ID               githubv4.ID
	Number           githubv4.Int
	Title            githubv4.String
	URL              githubv4.URI
	ShortDescription githubv4.String
	Public           githubv4.Boolean
	Closed           githubv4.Boolean
	Owner            struct {
		User struct {
			Login githubv4.String
		} `graphql:"... on User"`
		Organization struct {
			Login githubv4.String
		} `graphql:"... on Organization"`
	}
}

type fieldValueNode struct {
	DateValue struct {
		Field struct {
			ProjectV2Field struct {
				Name githubv4.String
			} `graphql:"... on ProjectV2Field"`
		}
		Date *githubv4.String
	} `graphql:"... on ProjectV2ItemFieldDateValue"`
	TextValue struct {
		Field struct {
			ProjectV2Field struct {
				Name githubv4.String
			} `graphql:"... on ProjectV2Field"`
		}
		Text *githubv4.String
	} `graphql:"... on ProjectV2ItemFieldTextValue"`
	SelectValue struct {
		Field struct {
			ProjectV2SingleSelectField struct {
				Name githubv4.String
			} `graphql:"... on ProjectV2SingleSelectField"`
		}
		Name *githubv4.String
	} `graphql:"... on ProjectV2ItemFieldSingleSelectValue"`
}

type itemContentNode struct {
	ID        githubv4.ID
	Number    githubv4.Int
	Title     githubv4.String
	Body      githubv4.String
	URL       githubv4.URI
	State     githubv4.String
	CreatedAt githubv4.DateTime
	UpdatedAt githubv4.DateTime
	ClosedAt  *githubv4.DateTime
	Assignees struct {
		Nodes []struct {
			Login githubv4.String
		}
	} `graphql:"assignees(first: 10)"`
	Labels struct {
		Nodes []struct {
			Name  githubv4.String
			Color githubv4.String
		}
	} `graphql:"labels(first: 10)"`
}

type draftContentNode struct {
	ID        githubv4.ID
	Title     githubv4.String
	Body      githubv4.String
	CreatedAt githubv4.DateTime
	UpdatedAt githubv4.DateTime
	Assignees struct {
		Nodes []struct {
			Login githubv4.String
		}
	} `graphql:"assignees(first: 10)"`
}

type projectItemNode struct {
	ID          githubv4.ID
	Type        githubv4.String
	FieldValues struct {
		Nodes []fieldValueNode
	} `graphql:"fieldValues(first: 20)"`
	Content struct {
		Issue       itemContentNode  `graphql:"... on Issue"`
		PullRequest itemContentNode  `graphql:"... on PullRequest"`
		DraftIssue  draftContentNode `graphql:"... on DraftIssue"`
	}
}

// FetchUserProjects lists open Projects v2 boards owned by a user.
func (c *Client) FetchUserProjects(ctx context.Context, username string) ([]models.ProjectInfo, error) {
	log := c.log.WithField("user", username)
	log.Info("fetching user projects")

	var projects []models.ProjectInfo
	var cursor *githubv4.String

	for {
		var query struct {
			User *struct {
				ProjectsV2 struct {
					PageInfo pageInfo
					Nodes    []projectNode
				} `graphql:"projectsV2(first: 100, after: $cursor)"`
			} `graphql:"user(login: $login)"`
		}

		variables := map[string]interface{}{
			"login":  githubv4.String(username),
			"cursor": cursor,
		}

		if err := c.gql.Query(ctx, &query, variables); err != nil {
			log.WithError(err).Error("user project query failed, returning partial result")
			return openProjects(projects), nil
		}
		if query.User == nil {
			return openProjects(projects), nil
		}

		for _, node := range query.User.ProjectsV2.Nodes {
			projects = append(projects, convertProject(node))
		}

		if !query.User.ProjectsV2.PageInfo.HasNextPage {
			return openProjects(projects), nil
		}
		cursor = &query.User.ProjectsV2.PageInfo.EndCursor
	}
}

// FetchOrganizationProjects lists open Projects v2 boards owned by an
// organization.
func (c *Client) FetchOrganizationProjects(ctx context.Context, org string) ([]models.ProjectInfo, error) {
	log := c.log.WithField("organization", org)
	log.Info("fetching organization projects")

	var projects []models.ProjectInfo
	var cursor *githubv4.String

	for {
		var query struct {
			Organization *struct {
				ProjectsV2 struct {
					PageInfo pageInfo
					Nodes    []projectNode
				} `graphql:"projectsV2(first: 100, after: $cursor)"`
			} `graphql:"organization(login: $login)"`
		}

		variables := map[string]interface{}{
			"login":  githubv4.String(org),
			"cursor": cursor,
		}

		if err := c.gql.Query(ctx, &query, variables); err != nil {
			log.WithError(err).Error("organization project query failed, returning partial result")
			return openProjects(projects), nil
		}
		if query.Organization == nil {
			return openProjects(projects), nil
		}

		for _, node := range query.Organization.ProjectsV2.Nodes {
			projects = append(projects, convertProject(node))
		}

		if !query.Organization.ProjectsV2.PageInfo.HasNextPage {
			return openProjects(projects), nil
		}
		cursor = &query.Organization.ProjectsV2.PageInfo.EndCursor
	}
}

// FetchItemsFromProjects fetches items from every given project. A
// failing project is logged and skipped; the rest still contribute.
func (c *Client) FetchItemsFromProjects(ctx context.Context, projectIDs []string) ([]models.ProjectItem, error) {
	c.log.WithField("projects", len(projectIDs)).Info("fetching project items")

	var all []models.ProjectItem
	for _, projectID := range projectIDs {
		items, err := c.FetchProjectItems(ctx, projectID)
		if err != nil {
			c.log.WithError(err).WithField("project", projectID).Error("failed to fetch project items")
			continue
		}
		all = append(all, items...)
	}

	c.log.WithField("items", len(all)).Info("project item fetch complete")
	return all, nil
}

// FetchProjectItems fetches all items of one project board, driving the
// cursor to exhaustion. Remote errors mid-scope yield the partial result.
func (c *Client) FetchProjectItems(ctx context.Context, projectID string) ([]models.ProjectItem, error) {
	log := c.log.WithField("project", projectID)
	log.Info("fetching items for project")

	var items []models.ProjectItem
	var cursor *githubv4.String

	for {
		var query struct {
			Node *struct {
				ProjectV2 struct {
					ID     githubv4.ID
					Title  githubv4.String
					Number githubv4.Int
					Items  struct {
						PageInfo pageInfo
						Nodes    []projectItemNode
					} `graphql:"items(first: 100, after: $cursor)"`
				} `graphql:"... on ProjectV2"`
			} `graphql:"node(id: $projectId)"`
		}

		variables := map[string]interface{}{
			"projectId": githubv4.ID(projectID),
			"cursor":    cursor,
		}

		if err := c.gql.Query(ctx, &query, variables); err != nil {
			log.WithError(err).Error("project item query failed, returning partial result")
			return items, nil
		}
		if query.Node == nil || query.Node.ProjectV2.ID == nil {
			log.Warn("project not found or not accessible")
			return items, nil
		}

		project := models.Project{
			ID:     nodeID(query.Node.ProjectV2.ID),
			Title:  string(query.Node.ProjectV2.Title),
			Number: int(query.Node.ProjectV2.Number),
		}

		for _, node := range query.Node.ProjectV2.Items.Nodes {
			items = append(items, transformProjectItem(node, project))
		}

		if !query.Node.ProjectV2.Items.PageInfo.HasNextPage {
			return items, nil
		}
		cursor = &query.Node.ProjectV2.Items.PageInfo.EndCursor
	}
}

func convertProject(node projectNode) models.ProjectInfo {
	owner := string(node.Owner.User.Login)
	if owner == "" {
		owner = string(node.Owner.Organization.Login)
	}
	return models.ProjectInfo{
		ID:               nodeID(node.ID),
		Number:           int(node.Number),
		Title:            string(node.Title),
		URL:              uriString(node.URL),
		ShortDescription: string(node.ShortDescription),
		Public:           bool(node.Public),
		Closed:           bool(node.Closed),
		Owner:            owner,
	}
}

func openProjects(projects []models.ProjectInfo) []models.ProjectInfo {
	open := make([]models.ProjectInfo, 0, len(projects))
	for _, p := range projects {
		if !p.Closed {
			open = append(open, p)
		}
	}
	return open
}

// transformProjectItem normalizes a raw project item node. Drafts have
// no canonical URL, so one is synthesized from the project identity, and
// their label list is always empty.
func transformProjectItem(node projectItemNode, project models.Project) models.ProjectItem {
	item := models.ProjectItem{
		ID:          nodeID(node.ID),
		Type:        models.ItemType(node.Type),
		Project:     project,
		FieldValues: extractFieldValues(node.FieldValues.Nodes),
	}

	switch item.Type {
	case models.ItemTypeDraftIssue:
		if node.Content.DraftIssue.ID == nil {
			return item
		}
		draft := node.Content.DraftIssue
		item.Content = &models.ItemContent{
			ID:        nodeID(draft.ID),
			Title:     string(draft.Title),
			Body:      string(draft.Body),
			URL:       fmt.Sprintf("https://github.com/users/%s/projects/%d", project.Title, project.Number),
			State:     "OPEN",
			CreatedAt: draft.CreatedAt.Time,
			UpdatedAt: draft.UpdatedAt.Time,
			Assignees: assigneeLogins(draft.Assignees.Nodes),
			Labels:    []models.Label{},
		}
	default:
		content := node.Content.Issue
		if item.Type == models.ItemTypePullRequest {
			content = node.Content.PullRequest
		}
		if content.ID == nil {
			return item
		}
		item.Content = &models.ItemContent{
			ID:        nodeID(content.ID),
			Number:    int(content.Number),
			Title:     string(content.Title),
			Body:      string(content.Body),
			URL:       uriString(content.URL),
			State:     string(content.State),
			CreatedAt: content.CreatedAt.Time,
			UpdatedAt: content.UpdatedAt.Time,
			ClosedAt:  nullableTime(content.ClosedAt),
			Assignees: assigneeLogins(content.Assignees.Nodes),
			Labels:    convertLabels(content.Labels.Nodes),
		}
	}

	return item
}

// extractFieldValues stores, under each field's declared name, the first
// populated variant of {date, text, single-select name}. Later values
// for the same name overwrite earlier ones.
func extractFieldValues(nodes []fieldValueNode) map[string]models.FieldValue {
	values := make(map[string]models.FieldValue)
	for _, node := range nodes {
		switch {
		case node.DateValue.Date != nil && node.DateValue.Field.ProjectV2Field.Name != "":
			values[string(node.DateValue.Field.ProjectV2Field.Name)] = models.FieldValue{
				Kind:  models.FieldDate,
				Value: string(*node.DateValue.Date),
			}
		case node.TextValue.Text != nil && node.TextValue.Field.ProjectV2Field.Name != "":
			values[string(node.TextValue.Field.ProjectV2Field.Name)] = models.FieldValue{
				Kind:  models.FieldText,
				Value: string(*node.TextValue.Text),
			}
		case node.SelectValue.Name != nil && node.SelectValue.Field.ProjectV2SingleSelectField.Name != "":
			values[string(node.SelectValue.Field.ProjectV2SingleSelectField.Name)] = models.FieldValue{
				Kind:  models.FieldSelect,
				Value: string(*node.SelectValue.Name),
			}
		}
	}
	return values
}

func assigneeLogins(nodes []struct{ Login githubv4.String }) []string {
	logins := make([]string, 0, len(nodes))
	for _, n := range nodes {
		logins = append(logins, string(n.Login))
	}
	return logins
}

func convertLabels(nodes []struct{ Name, Color githubv4.String }) []models.Label {
	labels := make([]models.Label, 0, len(nodes))
	for _, n := range nodes {
		labels = append(labels, models.Label{Name: string(n.Name), Color: string(n.Color)})
	}
	return labels
}
