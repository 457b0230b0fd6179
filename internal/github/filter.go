package github

import "github.com/ghcalsync/ghcalsync/internal/models"

// Deduplicate removes issues with a previously seen ID, preserving
// first-seen order. The same issue can show up under both an
// organization scope and an explicit repository scope.
func Deduplicate(issues []models.Issue) []models.Issue {
	seen := make(map[string]bool, len(issues))
	unique := make([]models.Issue, 0, len(issues))
	for _, issue := range issues {
		if seen[issue.ID] {
			continue
		}
		seen[issue.ID] = true
		unique = append(unique, issue)
	}
	return unique
}

// FilterIssues applies the label and assignee allowlists. An empty
// allowlist means no restriction on that axis; when both are set an
// issue must satisfy both to survive.
func FilterIssues(issues []models.Issue, labels, assignees []string) []models.Issue {
	if len(labels) == 0 && len(assignees) == 0 {
		return issues
	}

	labelSet := toSet(labels)
	assigneeSet := toSet(assignees)

	filtered := make([]models.Issue, 0, len(issues))
	for _, issue := range issues {
		if len(labelSet) > 0 && !hasAnyLabel(issue, labelSet) {
			continue
		}
		if len(assigneeSet) > 0 && !hasAnyAssignee(issue, assigneeSet) {
			continue
		}
		filtered = append(filtered, issue)
	}
	return filtered
}

func toSet(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

func hasAnyLabel(issue models.Issue, allowed map[string]bool) bool {
	for _, label := range issue.Labels {
		if allowed[label.Name] {
			return true
		}
	}
	return false
}

func hasAnyAssignee(issue models.Issue, allowed map[string]bool) bool {
	for _, assignee := range issue.Assignees {
		if allowed[assignee] {
			return true
		}
	}
	return false
}
