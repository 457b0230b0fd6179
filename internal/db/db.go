package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ghcalsync/ghcalsync/internal/models"
)

// DB stores project selections: which Projects v2 boards each user has
// chosen to sync. Every mutation rewrites the user's whole record in a
// single upsert; a missing or empty store reads as nothing selected.
type DB struct {
	*sql.DB
}

// New creates a new database connection.
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

// Initialize creates the database schema if it doesn't exist.
func (db *DB) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS project_selections (
		username TEXT PRIMARY KEY,
		project_ids TEXT NOT NULL,
		selected_tasks TEXT NOT NULL DEFAULT '{}',
		updated_at TIMESTAMP NOT NULL
	);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// SaveSelectedProjects replaces the selected project set for a user,
// preserving any previously selected tasks.
func (db *DB) SaveSelectedProjects(username string, projectIDs []string) (models.ProjectSelection, error) {
	existing, err := db.GetSelection(username)
	if err != nil {
		return models.ProjectSelection{}, err
	}

	selection := models.ProjectSelection{
		Username:   username,
		ProjectIDs: projectIDs,
		UpdatedAt:  time.Now().UTC(),
	}
	if existing != nil {
		selection.SelectedTasks = existing.SelectedTasks
	}

	if err := db.writeSelection(selection); err != nil {
		return models.ProjectSelection{}, err
	}
	return selection, nil
}

// SaveSelectedTasks replaces the selected task set for one project of a
// user. Task-level selection is stored but not consulted by sync.
func (db *DB) SaveSelectedTasks(username, projectID string, taskIDs []string) (models.ProjectSelection, error) {
	existing, err := db.GetSelection(username)
	if err != nil {
		return models.ProjectSelection{}, err
	}

	selection := models.ProjectSelection{
		Username:  username,
		UpdatedAt: time.Now().UTC(),
	}
	if existing != nil {
		selection.ProjectIDs = existing.ProjectIDs
		selection.SelectedTasks = existing.SelectedTasks
	}
	if selection.ProjectIDs == nil {
		selection.ProjectIDs = []string{}
	}
	if selection.SelectedTasks == nil {
		selection.SelectedTasks = map[string][]string{}
	}
	selection.SelectedTasks[projectID] = taskIDs

	if err := db.writeSelection(selection); err != nil {
		return models.ProjectSelection{}, err
	}
	return selection, nil
}

func (db *DB) writeSelection(selection models.ProjectSelection) error {
	projectIDs, err := json.Marshal(selection.ProjectIDs)
	if err != nil {
		return fmt.Errorf("failed to marshal project ids: %w", err)
	}

	tasks := selection.SelectedTasks
	if tasks == nil {
		tasks = map[string][]string{}
	}
	selectedTasks, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("failed to marshal selected tasks: %w", err)
	}

	query := `
	INSERT INTO project_selections (username, project_ids, selected_tasks, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(username) DO UPDATE SET
		project_ids = excluded.project_ids,
		selected_tasks = excluded.selected_tasks,
		updated_at = excluded.updated_at
	`

	if _, err := db.Exec(query, selection.Username, string(projectIDs), string(selectedTasks), selection.UpdatedAt); err != nil {
		return fmt.Errorf("failed to save selection for %s: %w", selection.Username, err)
	}

	return nil
}

// GetSelection returns the selection for a user, or nil when the user
// has never selected anything.
func (db *DB) GetSelection(username string) (*models.ProjectSelection, error) {
	query := `
	SELECT project_ids, selected_tasks, updated_at
	FROM project_selections
	WHERE username = ?
	`

	var projectIDs, selectedTasks string
	var updatedAt time.Time
	err := db.QueryRow(query, username).Scan(&projectIDs, &selectedTasks, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load selection for %s: %w", username, err)
	}

	selection := models.ProjectSelection{
		Username:  username,
		UpdatedAt: updatedAt,
	}
	if err := json.Unmarshal([]byte(projectIDs), &selection.ProjectIDs); err != nil {
		return nil, fmt.Errorf("failed to parse project ids for %s: %w", username, err)
	}
	if err := json.Unmarshal([]byte(selectedTasks), &selection.SelectedTasks); err != nil {
		return nil, fmt.Errorf("failed to parse selected tasks for %s: %w", username, err)
	}
	if len(selection.SelectedTasks) == 0 {
		selection.SelectedTasks = nil
	}

	return &selection, nil
}

// AllSelectedProjectIDs returns the union of every user's selected
// project IDs, deduplicated, in a stable order.
func (db *DB) AllSelectedProjectIDs() ([]string, error) {
	rows, err := db.Query(`SELECT project_ids FROM project_selections ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to load selections: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var all []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan selection row: %w", err)
		}
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return nil, fmt.Errorf("failed to parse project ids: %w", err)
		}
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			all = append(all, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read selections: %w", err)
	}

	return all, nil
}

// SelectedTasksForProject returns the task IDs a user selected for one
// project, or nil meaning "all tasks". Reserved for task-level
// filtering; the sync path does not consult it yet.
func (db *DB) SelectedTasksForProject(username, projectID string) ([]string, error) {
	selection, err := db.GetSelection(username)
	if err != nil {
		return nil, err
	}
	if selection == nil || selection.SelectedTasks == nil {
		return nil, nil
	}
	return selection.SelectedTasks[projectID], nil
}
