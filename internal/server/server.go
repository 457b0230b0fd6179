// Package server exposes the HTTP surface: the GitHub webhook endpoint,
// manual sync triggers, the OAuth flow and the project selection API.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ghcalsync/ghcalsync/internal/models"
	syncpkg "github.com/ghcalsync/ghcalsync/internal/sync"
	"github.com/ghcalsync/ghcalsync/internal/webhook"
)

const maxWebhookBodyBytes = 1 << 20

// SyncTrigger is the sync operation surface the server drives.
type SyncTrigger interface {
	SyncIssues(ctx context.Context) models.Result
	SyncProjects(ctx context.Context) models.Result
	SyncAll(ctx context.Context) (models.Result, models.Result)
	Status() syncpkg.Status
}

// Authorizer runs the calendar OAuth flow.
type Authorizer interface {
	AuthURL() string
	Exchange(ctx context.Context, code string) error
}

// ProjectLister serves the selection API's project and task listings.
type ProjectLister interface {
	FetchUserProjects(ctx context.Context, username string) ([]models.ProjectInfo, error)
	FetchOrganizationProjects(ctx context.Context, org string) ([]models.ProjectInfo, error)
	FetchProjectItems(ctx context.Context, projectID string) ([]models.ProjectItem, error)
}

// SelectionStore persists project selections.
type SelectionStore interface {
	SaveSelectedProjects(username string, projectIDs []string) (models.ProjectSelection, error)
	SaveSelectedTasks(username, projectID string, taskIDs []string) (models.ProjectSelection, error)
	GetSelection(username string) (*models.ProjectSelection, error)
}

// Server dispatches the HTTP routes.
type Server struct {
	syncer     SyncTrigger
	gateway    *webhook.Gateway
	authorizer Authorizer
	projects   ProjectLister
	selections SelectionStore
	log        *logrus.Entry
}

// New creates a server over its collaborators.
func New(syncer SyncTrigger, gateway *webhook.Gateway, authorizer Authorizer, projects ProjectLister, selections SelectionStore) *Server {
	return &Server{
		syncer:     syncer,
		gateway:    gateway,
		authorizer: authorizer,
		projects:   projects,
		selections: selections,
		log:        logrus.WithField("component", "server"),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/health" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case r.URL.Path == "/webhooks/github" && r.Method == http.MethodPost:
		s.handleWebhook(w, r)
	case r.URL.Path == "/webhooks/github/ping" && r.Method == http.MethodPost:
		s.handlePing(w, r)
	case r.URL.Path == "/sync/manual" && r.Method == http.MethodPost:
		writeJSON(w, http.StatusOK, s.syncer.SyncIssues(r.Context()))
	case r.URL.Path == "/sync/projects" && r.Method == http.MethodPost:
		writeJSON(w, http.StatusOK, s.syncer.SyncProjects(r.Context()))
	case r.URL.Path == "/sync/full" && r.Method == http.MethodPost:
		s.handleFullSync(w, r)
	case r.URL.Path == "/sync/status" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.syncer.Status())
	case r.URL.Path == "/auth/google" && r.Method == http.MethodGet:
		http.Redirect(w, r, s.authorizer.AuthURL(), http.StatusFound)
	case r.URL.Path == "/auth/google/callback" && r.Method == http.MethodGet:
		s.handleOAuthCallback(w, r)
	case r.URL.Path == "/projects" && r.Method == http.MethodGet:
		s.handleListProjects(w, r)
	case r.URL.Path == "/projects/select" && r.Method == http.MethodPost:
		s.handleSelectProjects(w, r)
	case r.URL.Path == "/projects/selected" && r.Method == http.MethodGet:
		s.handleGetSelection(w, r)
	case r.URL.Path == "/projects/tasks" && r.Method == http.MethodGet:
		s.handleListTasks(w, r)
	case r.URL.Path == "/projects/tasks/select" && r.Method == http.MethodPost:
		s.handleSelectTasks(w, r)
	default:
		writeError(w, http.StatusNotFound, "route not found")
	}
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	delivery := r.Header.Get("X-GitHub-Delivery")
	signature := r.Header.Get("X-Hub-Signature-256")

	log := s.log.WithFields(logrus.Fields{"event": eventType, "delivery": delivery})
	log.Info("received github webhook")

	if !s.gateway.VerifySignature(body, signature) {
		log.Error("invalid webhook signature")
		writeError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	var meta struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	shouldSync, kind := s.gateway.ShouldTriggerSync(eventType, meta.Action)
	if !shouldSync {
		log.WithField("action", meta.Action).Info("event does not require sync")
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"message": "event received but no sync needed",
			"event":   eventType,
			"action":  meta.Action,
		})
		return
	}

	data := s.gateway.ExtractTriggerData(eventType, body)
	log.WithFields(logrus.Fields{
		"kind":       data.Kind,
		"action":     data.Action,
		"itemId":     data.ItemID,
		"projectId":  data.ProjectID,
		"issueId":    data.IssueID,
		"repository": data.Repository,
	}).Info("triggering sync")

	var result models.Result
	if kind == webhook.TriggerProjects {
		result = s.syncer.SyncProjects(r.Context())
	} else {
		result = s.syncer.SyncIssues(r.Context())
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     result.Status,
		"event":      eventType,
		"action":     meta.Action,
		"syncResult": result,
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Zen string `json:"zen"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)
	s.log.Info("received github webhook ping")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "webhook endpoint is working",
		"zen":     payload.Zen,
	})
}

func (s *Server) handleFullSync(w http.ResponseWriter, r *http.Request) {
	issues, projects := s.syncer.SyncAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "success",
		"issues":   issues,
		"projects": projects,
	})
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing code parameter")
		return
	}

	if err := s.authorizer.Exchange(r.Context(), code); err != nil {
		s.log.WithError(err).Error("oauth callback failed")
		writeError(w, http.StatusInternalServerError, "authorization failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "google calendar connected, the sync service is ready",
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "missing username parameter")
		return
	}

	// Try as user first, then as organization.
	projects, err := s.projects.FetchUserProjects(r.Context(), username)
	if err == nil && len(projects) == 0 {
		projects, err = s.projects.FetchOrganizationProjects(r.Context(), username)
	}
	if err != nil {
		s.log.WithError(err).WithField("username", username).Error("failed to list projects")
		writeError(w, http.StatusBadGateway, "failed to list projects")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username": username,
		"projects": projects,
		"count":    len(projects),
	})
}

func (s *Server) handleSelectProjects(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username   string   `json:"username"`
		ProjectIDs []string `json:"projectIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		writeError(w, http.StatusBadRequest, "username and projectIds are required")
		return
	}

	selection, err := s.selections.SaveSelectedProjects(req.Username, req.ProjectIDs)
	if err != nil {
		s.log.WithError(err).Error("failed to save project selection")
		writeError(w, http.StatusInternalServerError, "failed to save selection")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"selection": selection,
	})
}

func (s *Server) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "missing username parameter")
		return
	}

	selection, err := s.selections.GetSelection(username)
	if err != nil {
		s.log.WithError(err).Error("failed to load selection")
		writeError(w, http.StatusInternalServerError, "failed to load selection")
		return
	}

	if selection == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"username":   username,
			"projectIds": []string{},
			"message":    "no projects selected yet",
		})
		return
	}
	writeJSON(w, http.StatusOK, selection)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("projectId")
	if projectID == "" {
		writeError(w, http.StatusBadRequest, "missing projectId parameter")
		return
	}

	items, err := s.projects.FetchProjectItems(r.Context(), projectID)
	if err != nil {
		s.log.WithError(err).WithField("project", projectID).Error("failed to fetch project items")
		writeError(w, http.StatusBadGateway, "failed to fetch project items")
		return
	}

	type task struct {
		ID        string   `json:"id"`
		Title     string   `json:"title"`
		Type      string   `json:"type"`
		State     string   `json:"state,omitempty"`
		Assignees []string `json:"assignees,omitempty"`
		URL       string   `json:"url,omitempty"`
	}
	tasks := make([]task, 0, len(items))
	for _, item := range items {
		t := task{ID: item.ID, Type: string(item.Type), Title: "Untitled"}
		if item.Content != nil {
			t.Title = item.Content.Title
			t.State = item.Content.State
			t.Assignees = item.Content.Assignees
			t.URL = item.Content.URL
		}
		tasks = append(tasks, t)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"projectId": projectID,
		"tasks":     tasks,
		"count":     len(tasks),
	})
}

func (s *Server) handleSelectTasks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username  string   `json:"username"`
		ProjectID string   `json:"projectId"`
		TaskIDs   []string `json:"taskIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "username and projectId are required")
		return
	}

	selection, err := s.selections.SaveSelectedTasks(req.Username, req.ProjectID, req.TaskIDs)
	if err != nil {
		s.log.WithError(err).Error("failed to save task selection")
		writeError(w, http.StatusInternalServerError, "failed to save selection")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"selection": selection,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
