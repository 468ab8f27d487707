package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/printdesk/internal/api/handlers"
	"github.com/orrn/printdesk/internal/api/middleware"
	"github.com/orrn/printdesk/internal/core"
	"github.com/orrn/printdesk/internal/db"
	"github.com/orrn/printdesk/internal/document"
	"github.com/orrn/printdesk/internal/webhook"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	dir, err := os.MkdirTemp("", "printdesk-api-*")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := db.Init(db.Config{Path: filepath.Join(dir, "test.db")}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	code := m.Run()
	db.Close()
	os.RemoveAll(dir)
	os.Exit(code)
}

type fakeService struct {
	mu      sync.Mutex
	submits []string
	cancels []string
}

func (f *fakeService) Submit(ctx context.Context, path, title string, options map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, title)
	return fmt.Sprintf("%d", 40+len(f.submits)), nil
}

func (f *fakeService) Cancel(ctx context.Context, reference string, purge bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, reference)
	return nil
}

// fakeIngester stores the upload as is and reports a fixed number of A4 pages.
type fakeIngester struct {
	dir   string
	pages int
}

func (f *fakeIngester) Ingest(ctx context.Context, name string, r io.Reader) (core.Document, error) {
	if strings.HasSuffix(name, ".exe") {
		return core.Document{}, fmt.Errorf("%w: %q", document.ErrUnsupported, name)
	}
	path := filepath.Join(f.dir, fmt.Sprintf("%d-%s", time.Now().UnixNano(), name))
	data, err := io.ReadAll(r)
	if err != nil {
		return core.Document{}, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return core.Document{}, err
	}
	geometry := make([]core.PageGeometry, f.pages)
	for i := range geometry {
		geometry[i] = core.PageGeometry{Width: 595, Height: 842}
	}
	return core.Document{Path: path, Name: name, Pages: geometry}, nil
}

// copyRewriter stands in for the PDF rewriter by copying the whole file.
type copyRewriter struct{}

func (copyRewriter) Keep(ctx context.Context, src string, ranges []string) (string, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	out := src + "-" + strings.Join(ranges, "_") + ".pdf"
	return out, os.WriteFile(out, data, 0o600)
}

type testEnv struct {
	router  *gin.Engine
	service *fakeService
	jobs    *core.JobManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	auth, err := middleware.NewAuthMiddleware("letmeprint", strings.Repeat("s", 32), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	service := &fakeService{}
	printer := core.NewPrinterManager(nil, 5, nil)
	jobs := core.NewJobManager(core.ManagerConfig{
		Printer:  printer,
		Service:  service,
		Rewriter: copyRewriter{},
		Archiver: db.NewJobArchiver(nil),
	})
	router := NewRouter(Config{
		Auth:             auth,
		Jobs:             jobs,
		Printer:          printer,
		Ingester:         &fakeIngester{dir: t.TempDir(), pages: 4},
		Webhooks:         webhook.NewWebhookSender(db.Webhooks, webhook.WebhookConfig{Timeout: 5 * time.Second}, nil),
		Version:          "test",
		MaxUploadBytes:   1 << 20,
		DefaultTonerSave: true,
	})
	return &testEnv{router: router, service: service, jobs: jobs}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatal(err)
		}
		body = bytes.NewReader(data)
	}
	return e.do(t, method, path, token, body, "application/json")
}

func (e *testEnv) login(t *testing.T, user string) string {
	t.Helper()
	w := e.doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{"user": user, "token": "letmeprint"})
	if w.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", w.Code, w.Body.String())
	}
	var resp middleware.LoginResponse
	decode(t, w, &resp)
	return resp.Token
}

func (e *testEnv) upload(t *testing.T, token, name, caption string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("%PDF-1.4 test"))
	if caption != "" {
		mw.WriteField("caption", caption)
	}
	mw.Close()
	return e.do(t, http.MethodPost, "/api/jobs", token, &buf, mw.FormDataContentType())
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/health", "", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"version":"test"`) {
		t.Errorf("unexpected health response %d %s", w.Code, w.Body.String())
	}
}

func TestAuth(t *testing.T) {
	e := newTestEnv(t)

	w := e.doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{"user": "alice", "token": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a wrong token, got %d", w.Code)
	}

	if w := e.do(t, http.MethodGet, "/api/jobs", "", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without a session, got %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/api/jobs", "garbage", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a malformed session, got %d", w.Code)
	}

	token := e.login(t, "alice")
	w = e.do(t, http.MethodGet, "/api/auth/status", token, nil, "")
	var status middleware.StatusResponse
	decode(t, w, &status)
	if !status.Authenticated || status.User != "alice" {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestJobLifecycle(t *testing.T) {
	e := newTestEnv(t)
	alice := e.login(t, "alice")
	bob := e.login(t, "bob")

	w := e.upload(t, alice, "report.pdf", "pages 2-3 please")
	if w.Code != http.StatusCreated {
		t.Fatalf("upload failed: %d %s", w.Code, w.Body.String())
	}
	var view core.View
	decode(t, w, &view)
	if view.TotalPages != 4 || view.Selected != 4 || !view.Caption || view.State != "preparing" || !view.TonerSave {
		t.Fatalf("unexpected job %+v", view)
	}
	jobPath := "/api/jobs/" + view.ID

	w = e.doJSON(t, http.MethodPost, jobPath+"/pages", alice, handlers.PagesRequest{Action: "caption"})
	if w.Code != http.StatusOK {
		t.Fatalf("caption selection failed: %d %s", w.Code, w.Body.String())
	}
	var pagesResp handlers.PagesResponse
	decode(t, w, &pagesResp)
	if pagesResp.Job.Selected != 2 {
		t.Errorf("expected 2 selected pages, got %d", pagesResp.Job.Selected)
	}

	w = e.doJSON(t, http.MethodPost, jobPath+"/pages", alice, handlers.PagesRequest{Action: "add", Ranges: "nothing here"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for text without ranges, got %d", w.Code)
	}

	copies := 2
	w = e.doJSON(t, http.MethodPatch, jobPath+"/options", alice, handlers.UpdateOptionsRequest{Copies: &copies})
	decode(t, w, &view)
	if w.Code != http.StatusOK || view.Copies != 2 || view.Expected != 4 {
		t.Errorf("unexpected options update %d %+v", w.Code, view)
	}

	tooMany := 6
	w = e.doJSON(t, http.MethodPatch, jobPath+"/options", alice, handlers.UpdateOptionsRequest{Copies: &tooMany})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 above the copy limit, got %d", w.Code)
	}

	if w := e.do(t, http.MethodGet, jobPath, bob, nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("other users must not see the job, got %d", w.Code)
	}

	w = e.do(t, http.MethodGet, jobPath+"/options", alice, nil, "")
	var opts handlers.OptionsResponse
	decode(t, w, &opts)
	if opts.Options[core.OptionCopies] != "2" || opts.Options[core.OptionPageRanges] != "2-3" {
		t.Errorf("unexpected printer options %v", opts.Options)
	}

	w = e.do(t, http.MethodPost, jobPath+"/submit", alice, nil, "")
	decode(t, w, &view)
	if w.Code != http.StatusAccepted || view.State != "sent" || view.Reference != "41" {
		t.Fatalf("unexpected submit response %d %+v", w.Code, view)
	}
	if w := e.do(t, http.MethodPost, jobPath+"/submit", alice, nil, ""); w.Code != http.StatusConflict {
		t.Errorf("expected 409 for a second submit, got %d", w.Code)
	}
	if w := e.doJSON(t, http.MethodPost, jobPath+"/pages", alice, handlers.PagesRequest{Action: "all"}); w.Code != http.StatusConflict {
		t.Errorf("expected 409 for an edit after submit, got %d", w.Code)
	}

	w = e.do(t, http.MethodPost, jobPath+"/cancel", alice, nil, "")
	decode(t, w, &view)
	if w.Code != http.StatusOK || view.State != "canceled" {
		t.Fatalf("unexpected cancel response %d %+v", w.Code, view)
	}
	if len(e.service.cancels) != 1 || e.service.cancels[0] != "41" {
		t.Errorf("unexpected cancels %v", e.service.cancels)
	}
	if w := e.do(t, http.MethodGet, jobPath, alice, nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("canceled job should leave the active set, got %d", w.Code)
	}

	w = e.do(t, http.MethodGet, "/api/history/"+view.ID, alice, nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("history lookup failed: %d %s", w.Code, w.Body.String())
	}
	var detail handlers.HistoryDetailResponse
	decode(t, w, &detail)
	if detail.Job.State != "canceled" || detail.Job.Copies != 2 || detail.Job.Pages != "2-3" {
		t.Errorf("unexpected history record %+v", detail.Job)
	}
	if len(detail.Audit) != 3 {
		t.Errorf("expected created, submitted and canceled audit entries, got %d", len(detail.Audit))
	}

	if w := e.do(t, http.MethodGet, "/api/history/"+view.ID, bob, nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("other users must not see the history record, got %d", w.Code)
	}
}

func TestUploadRejected(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, "carol")

	if w := e.upload(t, token, "setup.exe", ""); w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", w.Code)
	}

	w := e.do(t, http.MethodPost, "/api/jobs", token, strings.NewReader("{}"), "application/json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without a file, got %d", w.Code)
	}
	if e.jobs.Len() != 0 {
		t.Errorf("no job should have been created, got %d", e.jobs.Len())
	}
}

func TestSettingsDriveNewJobs(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, "dave")

	w := e.doJSON(t, http.MethodPut, "/api/settings", token, map[string]bool{"toner_save": false})
	if w.Code != http.StatusOK {
		t.Fatalf("settings update failed: %d %s", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodGet, "/api/settings", token, nil, "")
	var settings handlers.SettingsResponse
	decode(t, w, &settings)
	if settings.TonerSave || settings.User != "dave" {
		t.Errorf("unexpected settings %+v", settings)
	}

	w = e.upload(t, token, "notes.pdf", "")
	var view core.View
	decode(t, w, &view)
	if view.TonerSave {
		t.Error("new jobs should start from the stored preference")
	}
}

func TestPrinterAndDashboard(t *testing.T) {
	e := newTestEnv(t)
	token := e.login(t, "erin")

	w := e.do(t, http.MethodGet, "/api/printer", token, nil, "")
	var info core.PrinterInfo
	decode(t, w, &info)
	if info.MaxCopies != 5 || len(info.NumberUp) == 0 {
		t.Errorf("unexpected printer info %+v", info)
	}

	w = e.do(t, http.MethodPost, "/api/printer/refresh", token, nil, "")
	var refreshed core.PrinterInfo
	decode(t, w, &refreshed)
	if w.Code != http.StatusOK || refreshed.MaxCopies != info.MaxCopies || len(refreshed.NumberUp) != len(info.NumberUp) {
		t.Errorf("refresh changed the printer limits: %d %+v", w.Code, refreshed)
	}

	e.upload(t, token, "a.pdf", "")
	w = e.do(t, http.MethodGet, "/api/dashboard", token, nil, "")
	var dash handlers.DashboardData
	decode(t, w, &dash)
	if dash.Stats.ActiveJobs != 1 || dash.Stats.ByState["preparing"] != 1 {
		t.Errorf("unexpected dashboard %+v", dash.Stats)
	}
}

func TestWebhookCRUD(t *testing.T) {
	type delivery struct {
		event     string
		signature string
		body      []byte
	}
	got := make(chan delivery, 1)
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- delivery{
			event:     r.Header.Get("X-Webhook-Event"),
			signature: r.Header.Get("X-Webhook-Signature"),
			body:      body,
		}
	}))
	defer receiver.Close()

	e := newTestEnv(t)
	token := e.login(t, "frank")
	other := e.login(t, "grace")

	w := e.doJSON(t, http.MethodPost, "/api/webhooks", token, map[string]any{
		"url":    receiver.URL,
		"events": []string{"printer.exploded"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown event, got %d", w.Code)
	}

	w = e.doJSON(t, http.MethodPost, "/api/webhooks", token, map[string]any{
		"url":    receiver.URL,
		"secret": "hush",
		"events": []string{"job.failed", "job.completed", "job.failed"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create failed: %d %s", w.Code, w.Body.String())
	}
	var hook handlers.WebhookResponse
	decode(t, w, &hook)
	if len(hook.Events) != 2 || hook.Events[0] != "job.failed" || !hook.Enabled || !hook.Signed {
		t.Errorf("unexpected webhook %+v", hook)
	}

	var mine []handlers.WebhookResponse
	decode(t, e.do(t, http.MethodGet, "/api/webhooks", other, nil, ""), &mine)
	if len(mine) != 0 {
		t.Errorf("grace should not see the webhooks of frank, got %+v", mine)
	}

	path := fmt.Sprintf("/api/webhooks/%d", hook.ID)
	if w := e.do(t, http.MethodDelete, path, other, nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 deleting a webhook of another user, got %d", w.Code)
	}
	if w := e.do(t, http.MethodPost, path+"/test", other, nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 testing a webhook of another user, got %d", w.Code)
	}

	w = e.doJSON(t, http.MethodPatch, path, token, map[string]any{"events": []string{"job.canceled"}})
	if w.Code != http.StatusOK {
		t.Fatalf("update failed: %d %s", w.Code, w.Body.String())
	}
	decode(t, w, &hook)
	if len(hook.Events) != 1 || hook.Events[0] != "job.canceled" || !hook.Signed {
		t.Errorf("unexpected webhook after update %+v", hook)
	}

	w = e.do(t, http.MethodPost, path+"/test", token, nil, "")
	var result handlers.TestWebhookResponse
	decode(t, w, &result)
	if !result.Success || result.Event != "job.canceled" {
		t.Fatalf("unexpected test result %+v", result)
	}
	d := <-got
	if d.event != "job.canceled" {
		t.Errorf("unexpected event header %q", d.event)
	}
	var payload struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(d.body, &payload); err != nil {
		t.Fatal(err)
	}
	if d.signature != webhook.Sign(payload.Data, "hush") {
		t.Error("sample delivery is not signed with the webhook secret")
	}
	var data webhook.JobEventData
	if err := json.Unmarshal(payload.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Owner != "frank" || data.State != "canceled" {
		t.Errorf("unexpected sample data %+v", data)
	}

	if w := e.do(t, http.MethodDelete, path, token, nil, ""); w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	if w := e.do(t, http.MethodDelete, path, token, nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", w.Code)
	}
}
