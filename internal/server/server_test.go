package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghcalsync/ghcalsync/internal/models"
	syncpkg "github.com/ghcalsync/ghcalsync/internal/sync"
	"github.com/ghcalsync/ghcalsync/internal/webhook"
)

type fakeSyncer struct {
	issueRuns   int
	projectRuns int
}

func (f *fakeSyncer) SyncIssues(ctx context.Context) models.Result {
	f.issueRuns++
	return models.Result{Status: models.StatusSuccess, Stats: models.Stats{Total: 1, Created: 1}}
}

func (f *fakeSyncer) SyncProjects(ctx context.Context) models.Result {
	f.projectRuns++
	return models.Result{Status: models.StatusSuccess}
}

func (f *fakeSyncer) SyncAll(ctx context.Context) (models.Result, models.Result) {
	return f.SyncIssues(ctx), f.SyncProjects(ctx)
}

func (f *fakeSyncer) Status() syncpkg.Status {
	return syncpkg.Status{Authenticated: true}
}

type fakeAuthorizer struct {
	exchanged string
	err       error
}

func (f *fakeAuthorizer) AuthURL() string { return "https://accounts.example.com/auth" }

func (f *fakeAuthorizer) Exchange(ctx context.Context, code string) error {
	f.exchanged = code
	return f.err
}

type fakeProjects struct {
	userProjects []models.ProjectInfo
	orgProjects  []models.ProjectInfo
	items        []models.ProjectItem
}

func (f *fakeProjects) FetchUserProjects(ctx context.Context, username string) ([]models.ProjectInfo, error) {
	return f.userProjects, nil
}

func (f *fakeProjects) FetchOrganizationProjects(ctx context.Context, org string) ([]models.ProjectInfo, error) {
	return f.orgProjects, nil
}

func (f *fakeProjects) FetchProjectItems(ctx context.Context, projectID string) ([]models.ProjectItem, error) {
	return f.items, nil
}

type fakeSelections struct {
	selections map[string]*models.ProjectSelection
}

func newFakeSelections() *fakeSelections {
	return &fakeSelections{selections: map[string]*models.ProjectSelection{}}
}

func (f *fakeSelections) SaveSelectedProjects(username string, projectIDs []string) (models.ProjectSelection, error) {
	sel := models.ProjectSelection{Username: username, ProjectIDs: projectIDs, UpdatedAt: time.Now().UTC()}
	f.selections[username] = &sel
	return sel, nil
}

func (f *fakeSelections) SaveSelectedTasks(username, projectID string, taskIDs []string) (models.ProjectSelection, error) {
	sel := models.ProjectSelection{
		Username:      username,
		SelectedTasks: map[string][]string{projectID: taskIDs},
		UpdatedAt:     time.Now().UTC(),
	}
	f.selections[username] = &sel
	return sel, nil
}

func (f *fakeSelections) GetSelection(username string) (*models.ProjectSelection, error) {
	return f.selections[username], nil
}

func newTestServer(secret string) (*Server, *fakeSyncer, *fakeAuthorizer, *fakeSelections) {
	syncer := &fakeSyncer{}
	authorizer := &fakeAuthorizer{}
	selections := newFakeSelections()
	srv := New(syncer, webhook.NewGateway(secret), authorizer, &fakeProjects{}, selections)
	return srv, syncer, authorizer, selections
}

func sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestHealth(t *testing.T) {
	srv, _, _, _ := newTestServer("s3cret")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestWebhookValidSignatureTriggersIssueSync(t *testing.T) {
	srv, syncer, _, _ := newTestServer("s3cret")
	payload := []byte(`{"action":"opened","issue":{"node_id":"I_1"},"repository":{"full_name":"acme/webapp"}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(payload))
	req.Header.Set("X-GitHub-Event", "issues")
	req.Header.Set("X-Hub-Signature-256", sign("s3cret", payload))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, syncer.issueRuns)
	assert.Equal(t, 0, syncer.projectRuns)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])
}

func TestWebhookProjectEventTriggersProjectSync(t *testing.T) {
	srv, syncer, _, _ := newTestServer("s3cret")
	payload := []byte(`{"action":"edited","projects_v2_item":{"node_id":"PVTI_1","project_node_id":"PVT_1"}}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(payload))
	req.Header.Set("X-GitHub-Event", "projects_v2_item")
	req.Header.Set("X-Hub-Signature-256", sign("s3cret", payload))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, syncer.issueRuns)
	assert.Equal(t, 1, syncer.projectRuns)
}

func TestWebhookInvalidSignatureIsRejected(t *testing.T) {
	srv, syncer, _, _ := newTestServer("s3cret")
	payload := []byte(`{"action":"opened"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(payload))
	req.Header.Set("X-GitHub-Event", "issues")
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, syncer.issueRuns)
	assert.Equal(t, 0, syncer.projectRuns)
}

func TestWebhookIrrelevantEventDoesNotSync(t *testing.T) {
	srv, syncer, _, _ := newTestServer("s3cret")
	payload := []byte(`{"action":"created"}`)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(payload))
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature-256", sign("s3cret", payload))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, syncer.issueRuns)
	assert.Contains(t, rec.Body.String(), "no sync needed")
}

func TestWebhookPing(t *testing.T) {
	srv, _, _, _ := newTestServer("s3cret")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github/ping", strings.NewReader(`{"zen":"Design for failure."}`))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Design for failure.")
}

func TestManualSyncEndpoints(t *testing.T) {
	srv, syncer, _, _ := newTestServer("s3cret")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync/manual", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, syncer.issueRuns)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync/projects", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, syncer.projectRuns)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync/full", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, syncer.issueRuns)
	assert.Equal(t, 2, syncer.projectRuns)
}

func TestSyncStatus(t *testing.T) {
	srv, _, _, _ := newTestServer("s3cret")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isAuthenticated":true`)
}

func TestOAuthRedirect(t *testing.T) {
	srv, _, _, _ := newTestServer("s3cret")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://accounts.example.com/auth", rec.Header().Get("Location"))
}

func TestOAuthCallback(t *testing.T) {
	srv, _, authorizer, _ := newTestServer("s3cret")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=abc123", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc123", authorizer.exchanged)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google/callback", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectAndGetProjects(t *testing.T) {
	srv, _, _, selections := newTestServer("s3cret")

	body := `{"username":"octocat","projectIds":["PVT_1","PVT_2"]}`
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/projects/select", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, selections.selections, "octocat")
	assert.Equal(t, []string{"PVT_1", "PVT_2"}, selections.selections["octocat"].ProjectIDs)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects/selected?username=octocat", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "PVT_1")
}

func TestGetSelectionForUnknownUser(t *testing.T) {
	srv, _, _, _ := newTestServer("s3cret")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/projects/selected?username=nobody", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "no projects selected yet")
}

func TestSelectProjectsValidation(t *testing.T) {
	srv, _, _, _ := newTestServer("s3cret")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/projects/select", strings.NewReader(`{"projectIds":["PVT_1"]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	srv, _, _, _ := newTestServer("s3cret")

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
