package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shurcooL/githubv4"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/ghcalsync/ghcalsync/internal/models"
)

// Client fetches issues and Projects v2 items from the GitHub GraphQL API.
type Client struct {
	gql *githubv4.Client

	organizations []string
	repositories  []string
	labels        []string
	assignees     []string

	log *logrus.Entry
}

// NewClient creates a new GitHub client. The token is required; the
// allowlists may be empty, meaning no restriction on that axis.
func NewClient(token string, organizations, repositories, labels, assignees []string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	src := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	httpClient := oauth2.NewClient(context.Background(), src)

	c := &Client{
		gql:           githubv4.NewClient(httpClient),
		organizations: organizations,
		repositories:  repositories,
		labels:        labels,
		assignees:     assignees,
		log:           logrus.WithField("component", "github"),
	}

	c.log.WithFields(logrus.Fields{
		"organizations": strings.Join(organizations, ","),
		"repositories":  strings.Join(repositories, ","),
		"labels":        strings.Join(labels, ","),
		"assignees":     strings.Join(assignees, ","),
	}).Info("configured issue sources")

	return c, nil
}

type pageInfo struct {
	EndCursor   githubv4.String
	HasNextPage githubv4.Boolean
}

type issueNode struct {
	ID        githubv4.ID
	Number    githubv4.Int
	Title     githubv4.String
	Body      githubv4.String
	URL       githubv4.URI
	State     githubv4.String
	CreatedAt githubv4.DateTime
	UpdatedAt githubv4.DateTime
	ClosedAt  *githubv4.DateTime
	Author    *struct {
		Login githubv4.String
	}
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
	Milestone *struct {
		Title githubv4.String
		DueOn *githubv4.DateTime
	}
}

// FetchAllIssues fetches open issues from every configured organization
// and repository, removes duplicates and applies the configured label
// and assignee filters.
func (c *Client) FetchAllIssues(ctx context.Context) ([]models.Issue, error) {
	orgIssues := c.FetchOrganizationIssues(ctx)
	repoIssues := c.FetchConfiguredRepositoryIssues(ctx)

	all := append(orgIssues, repoIssues...)
	unique := Deduplicate(all)
	filtered := FilterIssues(unique, c.labels, c.assignees)

	c.log.WithFields(logrus.Fields{
		"fetched":  len(all),
		"unique":   len(unique),
		"filtered": len(filtered),
	}).Info("issue fetch complete")

	return filtered, nil
}

// FetchOrganizationIssues fetches issues from all configured
// organizations. A failing organization yields what was gathered for it
// so far; the remaining organizations are still fetched.
func (c *Client) FetchOrganizationIssues(ctx context.Context) []models.Issue {
	var all []models.Issue
	for _, org := range c.organizations {
		issues := c.fetchIssuesFromOrganization(ctx, org)
		all = append(all, issues...)
	}
	return all
}

// FetchConfiguredRepositoryIssues fetches issues from all configured
// "owner/name" repositories, skipping malformed entries.
func (c *Client) FetchConfiguredRepositoryIssues(ctx context.Context) []models.Issue {
	var all []models.Issue
	for _, repoStr := range c.repositories {
		owner, name, err := ParseRepositoryString(repoStr)
		if err != nil {
			c.log.WithError(err).WithField("repository", repoStr).Warn("skipping invalid repository")
			continue
		}
		issues := c.FetchRepositoryIssues(ctx, owner, name)
		all = append(all, issues...)
	}
	return all
}

func (c *Client) fetchIssuesFromOrganization(ctx context.Context, organization string) []models.Issue {
	log := c.log.WithField("organization", organization)
	log.Info("fetching organization issues")

	var issues []models.Issue
	var cursor *githubv4.String

	for {
		var query struct {
			Organization *struct {
				Repositories struct {
					PageInfo pageInfo
					Nodes    []struct {
						Name  githubv4.String
						Owner struct {
							Login githubv4.String
						}
						Issues struct {
							Nodes []issueNode
						} `graphql:"issues(first: 100, states: OPEN, orderBy: {field: UPDATED_AT, direction: DESC})"`
					}
				} `graphql:"repositories(first: 100, after: $cursor)"`
			} `graphql:"organization(login: $login)"`
		}

		variables := map[string]interface{}{
			"login":  githubv4.String(organization),
			"cursor": cursor,
		}

		if err := c.gql.Query(ctx, &query, variables); err != nil {
			log.WithError(err).Error("organization issue query failed, returning partial result")
			return issues
		}

		if query.Organization == nil {
			log.Warn("organization not found or not accessible")
			return issues
		}

		for _, repo := range query.Organization.Repositories.Nodes {
			repository := models.Repository{
				Owner:    string(repo.Owner.Login),
				Name:     string(repo.Name),
				FullName: fmt.Sprintf("%s/%s", repo.Owner.Login, repo.Name),
			}
			for _, node := range repo.Issues.Nodes {
				issues = append(issues, convertIssue(node, repository))
			}
		}

		if !query.Organization.Repositories.PageInfo.HasNextPage {
			return issues
		}
		cursor = &query.Organization.Repositories.PageInfo.EndCursor
	}
}

// FetchRepositoryIssues fetches open issues from a single repository,
// following the cursor until exhaustion. Remote errors terminate the
// scope with a partial result rather than failing the whole fetch.
func (c *Client) FetchRepositoryIssues(ctx context.Context, owner, name string) []models.Issue {
	log := c.log.WithField("repository", owner+"/"+name)
	log.Info("fetching repository issues")

	var issues []models.Issue
	var cursor *githubv4.String

	for {
		var query struct {
			Repository *struct {
				Name  githubv4.String
				Owner struct {
					Login githubv4.String
				}
				Issues struct {
					PageInfo pageInfo
					Nodes    []issueNode
				} `graphql:"issues(first: 100, states: OPEN, orderBy: {field: UPDATED_AT, direction: DESC}, after: $cursor)"`
			} `graphql:"repository(owner: $owner, name: $name)"`
		}

		variables := map[string]interface{}{
			"owner":  githubv4.String(owner),
			"name":   githubv4.String(name),
			"cursor": cursor,
		}

		if err := c.gql.Query(ctx, &query, variables); err != nil {
			log.WithError(err).Error("repository issue query failed, returning partial result")
			return issues
		}

		if query.Repository == nil {
			log.Warn("repository not found or not accessible")
			return issues
		}

		repository := models.Repository{
			Owner:    string(query.Repository.Owner.Login),
			Name:     string(query.Repository.Name),
			FullName: fmt.Sprintf("%s/%s", query.Repository.Owner.Login, query.Repository.Name),
		}
		for _, node := range query.Repository.Issues.Nodes {
			issues = append(issues, convertIssue(node, repository))
		}

		if !query.Repository.Issues.PageInfo.HasNextPage {
			return issues
		}
		cursor = &query.Repository.Issues.PageInfo.EndCursor
	}
}

// convertIssue converts a GraphQL issue node to our model.
func convertIssue(node issueNode, repository models.Repository) models.Issue {
	author := "unknown"
	if node.Author != nil {
		author = string(node.Author.Login)
	}

	assignees := make([]string, 0, len(node.Assignees.Nodes))
	for _, a := range node.Assignees.Nodes {
		assignees = append(assignees, string(a.Login))
	}

	labels := make([]models.Label, 0, len(node.Labels.Nodes))
	for _, l := range node.Labels.Nodes {
		labels = append(labels, models.Label{
			Name:  string(l.Name),
			Color: string(l.Color),
		})
	}

	var milestone *models.Milestone
	if node.Milestone != nil {
		milestone = &models.Milestone{
			Title: string(node.Milestone.Title),
			DueOn: nullableTime(node.Milestone.DueOn),
		}
	}

	return models.Issue{
		ID:         nodeID(node.ID),
		Number:     int(node.Number),
		Title:      string(node.Title),
		Body:       string(node.Body),
		URL:        uriString(node.URL),
		State:      string(node.State),
		Repository: repository,
		Author:     author,
		Assignees:  assignees,
		Labels:     labels,
		Milestone:  milestone,
		CreatedAt:  node.CreatedAt.Time,
		UpdatedAt:  node.UpdatedAt.Time,
		ClosedAt:   nullableTime(node.ClosedAt),
	}
}

// nodeID renders a GraphQL node ID as its string form.
func nodeID(id githubv4.ID) string {
	if id == nil {
		return ""
	}
	return fmt.Sprintf("%v", id)
}

func uriString(u githubv4.URI) string {
	if u.URL == nil {
		return ""
	}
	return u.URL.String()
}

func nullableTime(dt *githubv4.DateTime) *time.Time {
	if dt == nil {
		return nil
	}
	t := dt.Time
	return &t
}

// ParseRepositoryString parses a repository string in the format "owner/name".
func ParseRepositoryString(repoStr string) (string, string, error) {
	parts := strings.Split(repoStr, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository format, expected 'owner/name', got '%s'", repoStr)
	}
	return parts[0], parts[1], nil
}
