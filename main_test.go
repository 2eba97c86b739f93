package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"lead-allocation/internal/auth"
	"lead-allocation/internal/catalog"
	"lead-allocation/internal/chat"
	"lead-allocation/internal/config"
	"lead-allocation/internal/dashboard"
	"lead-allocation/internal/kvstore"
	"lead-allocation/internal/location"
	"lead-allocation/internal/models"
	"lead-allocation/internal/notify"
	"lead-allocation/internal/ocr"
)

var mumbai = models.GeoPoint{Latitude: 19.0760, Longitude: 72.8777}

type testServer struct {
	t       *testing.T
	router  *gin.Engine
	cookies []*http.Cookie
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		SessionSecret:   "test-secret",
		LoginUser:       "user",
		FilterThreshold: 70,
		UploadDir:       t.TempDir(),
		OutputDir:       t.TempDir(),
	}
	cat := catalog.Seed()
	factory := func(string) *location.Tracker {
		return location.NewTracker(nil, location.DefaultOptions, mumbai, 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sessions := dashboard.NewSessions(ctx, cat, cfg.FilterThreshold, factory, chat.NewMockBackend(0), notify.NopPublisher{})
	t.Cleanup(sessions.CloseAll)

	a := &app{
		cfg:      cfg,
		catalog:  cat,
		sessions: sessions,
		records:  ocr.NewRecorder(kvstore.NewMemory()),
		creds:    auth.Credentials{User: "user", PasswordHash: hash},
		jobs:     NewJobStore(),
	}
	return &testServer{t: t, router: newRouter(a)}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	for _, ck := range s.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login() {
	s.t.Helper()
	form := url.Values{"username": {"user"}, "password": {"s3cret"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := s.do(req)
	if w.Code != http.StatusOK {
		s.t.Fatalf("login: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	s.cookies = w.Result().Cookies()
}

func (s *testServer) get(path string) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (s *testServer) postJSON(path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func names(leads []models.Lead) []string {
	out := make([]string, len(leads))
	for i, l := range leads {
		out[i] = l.Name
	}
	return out
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)

	if w := s.get("/api/leads/rank?lat=19&lng=72"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 before login, got %d", w.Code)
	}

	form := url.Values{"username": {"user"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if w := s.do(req); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad password, got %d", w.Code)
	}

	s.login()
	if w := s.get("/health"); w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}
}

type rankResponse struct {
	OK        bool                     `json:"ok"`
	Reference *models.GeoPoint         `json:"reference"`
	Result    models.RankedResult      `json:"result"`
	Params    models.RankingParameters `json:"params"`
}

func TestRankEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.login()

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"by distance", "lat=19.0760&lng=72.8777", []string{"Alice Johnson", "Priya Sharma", "Ravi Patel", "Carol Verma", "Bob Singh"}},
		{"by score", "lat=19.0760&lng=72.8777&sort=score", []string{"Alice Johnson", "Priya Sharma", "Carol Verma", "Bob Singh", "Ravi Patel"}},
		{"filtered strictly", "lat=19.0760&lng=72.8777&sort=score&min_score=85", []string{"Alice Johnson", "Priya Sharma"}},
		{"unknown sort falls back to distance", "lat=19.0760&lng=72.8777&sort=bogus", []string{"Alice Johnson", "Priya Sharma", "Ravi Patel", "Carol Verma", "Bob Singh"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.get("/api/leads/rank?" + tt.query)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
			}
			var resp rankResponse
			decode(t, w, &resp)
			got := names(resp.Result.OrderedLeads)
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("order = %v, want %v", got, tt.want)
			}
			if resp.Result.BestMatch == nil || resp.Result.BestMatch.Name != "Alice Johnson" {
				t.Errorf("best match = %+v", resp.Result.BestMatch)
			}
		})
	}
}

func TestRankEmptyAfterFilter(t *testing.T) {
	s := newTestServer(t)
	s.login()

	var resp rankResponse
	decode(t, s.get("/api/leads/rank?lat=0&lng=0&min_score=92"), &resp)
	if len(resp.Result.OrderedLeads) != 0 || resp.Result.BestMatch != nil {
		t.Errorf("expected empty result, got %+v", resp.Result)
	}
}

func TestRankBadInput(t *testing.T) {
	s := newTestServer(t)
	s.login()

	for _, q := range []string{"lat=abc&lng=1", "lat=91&lng=0", "lat=1", "lat=1&lng=1&min_score=x"} {
		if w := s.get("/api/leads/rank?" + q); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, w.Code)
		}
	}
}

func TestRankUsesSessionLocation(t *testing.T) {
	s := newTestServer(t)
	s.login()

	var resp rankResponse
	decode(t, s.get("/api/leads/rank"), &resp)
	if resp.Reference == nil || *resp.Reference != mumbai {
		t.Fatalf("expected fallback reference, got %+v", resp.Reference)
	}
	if len(resp.Result.OrderedLeads) != 5 {
		t.Errorf("expected 5 leads, got %d", len(resp.Result.OrderedLeads))
	}
}

func TestNearestEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.login()

	var resp struct {
		Lead models.Lead `json:"lead"`
	}
	decode(t, s.get("/api/leads/nearest?lat=28.6&lng=77.2"), &resp)
	if resp.Lead.Name != "Bob Singh" {
		t.Errorf("nearest to Delhi = %q", resp.Lead.Name)
	}
}

type dashboardResponse struct {
	Ready    bool `json:"ready"`
	FilterOn bool `json:"filter_on"`
	State    struct {
		Params models.RankingParameters `json:"params"`
		Result models.RankedResult      `json:"result"`
	} `json:"state"`
}

func TestDashboardEvents(t *testing.T) {
	s := newTestServer(t)
	s.login()

	// wait for the tracker's initial fix so it cannot land after ours
	var resp dashboardResponse
	for i := 0; i < 100 && !resp.Ready; i++ {
		decode(t, s.get("/api/dashboard"), &resp)
		time.Sleep(10 * time.Millisecond)
	}
	if !resp.Ready {
		t.Fatal("tracker never produced a fix")
	}

	decode(t, s.postJSON("/api/dashboard/location", models.GeoPoint{Latitude: 12.97, Longitude: 77.59}), &resp)
	if !resp.Ready {
		t.Fatal("expected dashboard to be ready after a location")
	}
	if got := resp.State.Result.OrderedLeads[0].Name; got != "Carol Verma" {
		t.Errorf("closest to Bangalore = %q", got)
	}

	decode(t, s.postJSON("/api/dashboard/filter", nil), &resp)
	if !resp.FilterOn || len(resp.State.Result.OrderedLeads) != 4 {
		t.Errorf("filter on: %+v", resp)
	}

	decode(t, s.postJSON("/api/dashboard/sort", nil), &resp)
	if resp.State.Params.SortBy != models.SortScore || resp.State.Result.OrderedLeads[0].Name != "Alice Johnson" {
		t.Errorf("sort by score: %+v", resp.State)
	}

	if w := s.postJSON("/api/dashboard/location", gin.H{"latitude": 100, "longitude": 0}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for out of range, got %d", w.Code)
	}
}

func TestSessionsArePerLogin(t *testing.T) {
	phone := newTestServer(t)
	phone.login()
	laptop := &testServer{t: t, router: phone.router}
	laptop.login()

	delhi := models.GeoPoint{Latitude: 28.6139, Longitude: 77.2090}
	if w := phone.postJSON("/api/dashboard/location", delhi); w.Code != http.StatusOK {
		t.Fatalf("set location: %d", w.Code)
	}

	var resp struct {
		State struct {
			Reference *models.GeoPoint `json:"reference"`
		} `json:"state"`
	}
	decode(t, laptop.get("/api/dashboard"), &resp)
	if resp.State.Reference != nil && *resp.State.Reference == delhi {
		t.Error("a location set on one login leaked into another")
	}
}

func TestNotificationFlow(t *testing.T) {
	s := newTestServer(t)
	s.login()

	if w := s.postJSON("/api/notifications/accept", nil); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 with nothing pending, got %d", w.Code)
	}
	if w := s.postJSON("/api/notifications/trigger", nil); w.Code != http.StatusOK {
		t.Fatalf("trigger: %d", w.Code)
	}
	if w := s.postJSON("/api/notifications/reject", nil); w.Code != http.StatusOK {
		t.Fatalf("reject: %d", w.Code)
	}

	var resp struct {
		Leads []models.Lead `json:"leads"`
	}
	decode(t, s.get("/api/notifications/declined"), &resp)
	if len(resp.Leads) != 1 || resp.Leads[0].Name != "Priya Sharma" {
		t.Errorf("declined = %+v", resp.Leads)
	}

	var dash struct {
		State struct {
			Declined []models.Lead `json:"declined"`
		} `json:"state"`
	}
	decode(t, s.get("/api/dashboard"), &dash)
	if len(dash.State.Declined) != 1 || dash.State.Declined[0].Name != "Priya Sharma" {
		t.Errorf("dashboard declined = %+v", dash.State.Declined)
	}
}

func TestOCRFlow(t *testing.T) {
	s := newTestServer(t)
	s.login()

	var parsed struct {
		OK     bool           `json:"ok"`
		Fields []models.Field `json:"fields"`
	}
	decode(t, s.postJSON("/api/ocr/parse", gin.H{"lines": []string{"RAHUL KUMAR", "ABCD1234", "DOB 01/02/1990"}}), &parsed)
	if !parsed.OK || parsed.Fields[0].Value != "RAHUL KUMAR" || parsed.Fields[2].Value != "01/02/1990" {
		t.Fatalf("parse = %+v", parsed)
	}

	decode(t, s.postJSON("/api/ocr/parse", gin.H{"lines": []string{}}), &parsed)
	if parsed.OK {
		t.Error("expected no text to report ok=false")
	}

	if w := s.postJSON("/api/ocr/records", gin.H{"image_uri": "file:///a.jpg", "fields": ocr.EmptyFields()}); w.Code != http.StatusOK {
		t.Fatalf("save: %d", w.Code)
	}
	var list struct {
		Records []models.OCRRecord `json:"records"`
	}
	decode(t, s.get("/api/ocr/records"), &list)
	if len(list.Records) != 1 || list.Records[0].ImageURI != "file:///a.jpg" {
		t.Errorf("records = %+v", list.Records)
	}

	if w := s.postJSON("/api/ocr/fields", gin.H{"fields": ocr.EmptyFields(), "index": 7, "value": "x"}); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad index, got %d", w.Code)
	}
}

func TestChatEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.login()

	if w := s.postJSON("/api/chat", gin.H{"text": "leads near Mumbai"}); w.Code != http.StatusOK {
		t.Fatalf("chat: %d", w.Code)
	}
	var resp struct {
		Messages []chat.Message `json:"messages"`
	}
	decode(t, s.get("/api/chat"), &resp)
	if len(resp.Messages) != 2 || resp.Messages[1].Role != chat.RoleBot {
		t.Errorf("history = %+v", resp.Messages)
	}
}

func writeAgentsWorkbook(t *testing.T) string {
	t.Helper()
	f := excelize.NewFile()
	if _, err := f.NewSheet(agentsSheet); err != nil {
		t.Fatal(err)
	}
	rows := [][]interface{}{
		{"ID", "Name", "", "", "", "", "", "", "", "Lat", "Lon"},
		{"A1", "Agent Pune", "", "", "", "", "", "", "", "18.52", "73.85"},
		{"A2", "Agent Delhi", "", "", "", "", "", "", "", "28.61", "77.20"},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(agentsSheet, cell, &r); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "agents.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAllocationJob(t *testing.T) {
	s := newTestServer(t)
	s.login()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("mode", "nearest")
	fw, err := mw.CreateFormFile("input_file", "agents.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	src, err := excelize.OpenFile(writeAgentsWorkbook(t))
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Write(fw); err != nil {
		t.Fatal(err)
	}
	_ = src.Close()
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/run", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := s.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("run: %d %s", w.Code, w.Body.String())
	}
	var started struct {
		JobID string `json:"job_id"`
	}
	decode(t, w, &started)

	var status struct {
		Status string     `json:"status"`
		Error  string     `json:"error"`
		Result *JobResult `json:"result"`
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		decode(t, s.get("/status?job_id="+started.JobID), &status)
		if status.Status != string(StatusRunning) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if status.Status != string(StatusDone) {
		t.Fatalf("job ended %q: %s", status.Status, status.Error)
	}
	if status.Result == nil || status.Result.Rows != 2 {
		t.Fatalf("result = %+v", status.Result)
	}

	if w := s.get("/download-result/" + status.Result.Filename); w.Code != http.StatusOK {
		t.Errorf("download: %d", w.Code)
	}
	if w := s.get("/download-result/missing.xlsx"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing result, got %d", w.Code)
	}
}
