// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/ipdrlens/internal/config"
	"github.com/tomtom215/ipdrlens/internal/database"
	"github.com/tomtom215/ipdrlens/internal/detection"
	"github.com/tomtom215/ipdrlens/internal/enrich"
	"github.com/tomtom215/ipdrlens/internal/ingest"
	"github.com/tomtom215/ipdrlens/internal/models"
)

const outlierSourceIP = "203.0.113.14"

type envelope struct {
	Status string           `json:"status"`
	Data   json.RawMessage  `json:"data"`
	Error  *models.APIError `json:"error"`
}

type testServer struct {
	db      *database.DB
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := database.New(&config.DatabaseConfig{Path: ":memory:", MaxMemory: "512MB", Threads: 2})
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ingester := ingest.NewService(enrich.NewService(enrich.Options{}), db,
		config.IngestConfig{MaxUploadBytes: 1 << 20, DeriveUserIDs: true})
	contamination := 0.1
	detector := detection.NewService(db, detection.Config{Contamination: &contamination, RandomSeed: 42})

	h := NewHandler(db, ingester, detector, Options{MaxUploadBytes: 1 << 20, MaxPageSize: 500, Version: "test"})
	mw := NewChiMiddleware(&ChiMiddlewareConfig{RateLimitDisabled: true})
	return &testServer{db: db, handler: NewRouter(h, mw).SetupChi()}
}

// sessionsCSV has 60 sessions over five source IPs on 2024-03-01. The last
// one moves far more data for far longer than the rest.
func sessionsCSV() string {
	var b strings.Builder
	b.WriteString("source_ip,destination_ip,session_start_time,session_end_time,bytes_transferred\n")
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		start := base.Add(time.Duration(i) * 10 * time.Minute)
		end := start.Add(time.Duration(240+i%7*10) * time.Second)
		bytesMoved := 1000000 + (i%9)*50000
		if i == 59 {
			end = start.Add(6 * time.Hour)
			bytesMoved = 5000000000
		}
		fmt.Fprintf(&b, "203.0.113.1%d,8.8.8.%d,%s,%s,%d\n",
			i%5, i%4+1, start.Format("2006-01-02 15:04:05"), end.Format("2006-01-02 15:04:05"), bytesMoved)
	}
	return b.String()
}

func (s *testServer) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("response is not an envelope: %v: %s", err, rec.Body.String())
		}
	}
	return rec, env
}

func uploadRequest(t *testing.T, fileName, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if fileName != "" {
		part, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		_, _ = part.Write([]byte(content))
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() error = %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("multipart Close() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (s *testServer) upload(t *testing.T) models.UploadSummary {
	t.Helper()
	rec, env := s.do(t, uploadRequest(t, "sessions.csv", sessionsCSV(), map[string]string{"uploaded_by": "analyst"}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var summary models.UploadSummary
	if err := json.Unmarshal(env.Data, &summary); err != nil {
		t.Fatalf("decode upload summary: %v", err)
	}
	return summary
}

func (s *testServer) records(t *testing.T, path string) (int, models.RecordsResponse, envelope) {
	t.Helper()
	rec, env := s.do(t, httptest.NewRequest(http.MethodGet, path, nil))
	var resp models.RecordsResponse
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(env.Data, &resp); err != nil {
			t.Fatalf("decode records: %v", err)
		}
	}
	return rec.Code, resp, env
}

func TestUpload_AutoDetectedMapping(t *testing.T) {
	s := newTestServer(t)
	summary := s.upload(t)

	if summary.RowCount != 60 {
		t.Errorf("row_count = %d, want 60", summary.RowCount)
	}
	if summary.FileName != "sessions.csv" {
		t.Errorf("file_name = %q, want sessions.csv", summary.FileName)
	}
	if !summary.DerivedUserIDs {
		t.Error("derived_user_ids = false, want true for a file without a user column")
	}
	if summary.Mapping["source_ip"] != "source_ip" {
		t.Errorf("mapping[source_ip] = %q, want source_ip", summary.Mapping["source_ip"])
	}

	code, resp, _ := s.records(t, "/api/v1/records")
	if code != http.StatusOK {
		t.Fatalf("records status = %d, want 200", code)
	}
	if len(resp.Records) != 60 {
		t.Fatalf("len(records) = %d, want 60", len(resp.Records))
	}
	if resp.KPIs.TotalSessions != 60 || resp.KPIs.UniqueUsers != 5 {
		t.Errorf("kpis = %+v, want 60 sessions and 5 users", resp.KPIs)
	}
	if resp.KPIs.TotalDurationHours <= 6 {
		t.Errorf("total_duration_hours = %v, want more than 6", resp.KPIs.TotalDurationHours)
	}
	for _, r := range resp.Records {
		if r.BatchID != summary.BatchID {
			t.Fatalf("record batch = %v, want %v", r.BatchID, summary.BatchID)
		}
	}
}

func TestUpload_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		file     string
		content  string
		fields   map[string]string
		wantCode int
		wantErr  string
	}{
		{"missing file", "", "", nil, http.StatusBadRequest, codeValidation},
		{"unsupported format", "sessions.pdf", "a,b\n", nil, http.StatusBadRequest, codeParse},
		{"empty file", "sessions.csv", "", nil, http.StatusBadRequest, codeParse},
		{"mapping not json", "sessions.csv", sessionsCSV(), map[string]string{"mapping": "{nope"}, http.StatusBadRequest, codeValidation},
		{"mapped column missing", "sessions.csv", sessionsCSV(), map[string]string{"mapping": `{"source_ip":"Caller Address"}`}, http.StatusUnprocessableEntity, codeMapping},
		{"unknown canonical field", "sessions.csv", sessionsCSV(), map[string]string{"mapping": `{"favourite_colour":"source_ip"}`}, http.StatusUnprocessableEntity, codeMapping},
		{"uploaded_by too long", "sessions.csv", sessionsCSV(), map[string]string{"uploaded_by": strings.Repeat("x", 300)}, http.StatusBadRequest, codeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(t, uploadRequest(t, tt.file, tt.content, tt.fields))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if env.Status != "error" || env.Error == nil || env.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want code %s", env.Error, tt.wantErr)
			}
		})
	}

	_, resp, _ := s.records(t, "/api/v1/records")
	if len(resp.Records) != 0 {
		t.Errorf("rejected uploads stored %d records, want 0", len(resp.Records))
	}
}

func TestUpload_MappingErrorDetails(t *testing.T) {
	s := newTestServer(t)
	_, env := s.do(t, uploadRequest(t, "sessions.csv", sessionsCSV(), map[string]string{
		"mapping": `{"source_ip":"Caller Address"}`,
	}))

	missing, ok := env.Error.Details["missing_columns"].(map[string]interface{})
	if !ok {
		t.Fatalf("details = %v, want missing_columns", env.Error.Details)
	}
	if missing["source_ip"] != "Caller Address" {
		t.Errorf("missing_columns[source_ip] = %v, want Caller Address", missing["source_ip"])
	}
}

func TestUpload_TooLarge(t *testing.T) {
	s := newTestServer(t)
	big := strings.Repeat("203.0.113.10,8.8.8.8\n", 75000)
	rec, env := s.do(t, uploadRequest(t, "sessions.csv", "source_ip,destination_ip\n"+big, nil))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if env.Error == nil || env.Error.Code != codeFileTooLarge {
		t.Errorf("error = %+v, want %s", env.Error, codeFileTooLarge)
	}
}

func TestRecords_Filters(t *testing.T) {
	s := newTestServer(t)
	summary := s.upload(t)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"no filter", "", 60},
		{"user", "user_id=user1", 12},
		{"source ip", "source_ip=203.0.113.12", 12},
		{"destination ip", "destination_ip=8.8.8.1", 15},
		{"batch", "batch_id=" + summary.BatchID.String(), 60},
		{"date-only end covers the whole day", "start_date=2024-03-01&end_date=2024-03-01", 60},
		{"rfc3339 range", "start_date=2024-03-01T00:00:00Z&end_date=2024-03-01T00:59:59Z", 6},
		{"range excluding everything", "start_date=2024-03-02", 0},
		{"limit and offset", "limit=10&offset=55", 5},
		{"combined", "user_id=user1&destination_ip=8.8.8.1", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp, env := s.records(t, "/api/v1/records?"+tt.query)
			if code != http.StatusOK {
				t.Fatalf("status = %d, want 200: %+v", code, env.Error)
			}
			if len(resp.Records) != tt.want {
				t.Errorf("len(records) = %d, want %d", len(resp.Records), tt.want)
			}
			if resp.KPIs.TotalSessions != tt.want {
				t.Errorf("total_sessions = %d, want %d", resp.KPIs.TotalSessions, tt.want)
			}
			if resp.Records == nil {
				t.Error("records = null, want an array")
			}
		})
	}
}

func TestRecords_InvalidFilters(t *testing.T) {
	s := newTestServer(t)

	for _, query := range []string{
		"source_ip=not-an-ip",
		"batch_id=123",
		"start_date=yesterday",
		"start_date=2024-03-02&end_date=2024-03-01",
		"limit=abc",
		"limit=-1",
		"limit=501",
		"offset=-5",
	} {
		t.Run(query, func(t *testing.T) {
			code, _, env := s.records(t, "/api/v1/records?"+query)
			if code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", code)
			}
			if env.Error == nil || env.Error.Code != codeValidation {
				t.Errorf("error = %+v, want %s", env.Error, codeValidation)
			}
		})
	}
}

func detectRequestBody(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/detect", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestDetect_FlagsAndStoresResults(t *testing.T) {
	s := newTestServer(t)
	s.upload(t)

	rec, env := s.do(t, detectRequestBody(""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp models.DetectionResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode detection: %v", err)
	}

	if resp.Records != 60 || resp.Scored != 60 || resp.NotScored != 0 {
		t.Errorf("records, scored, not_scored = %d, %d, %d, want 60, 60, 0", resp.Records, resp.Scored, resp.NotScored)
	}
	if resp.Flagged < 6 {
		t.Errorf("flagged = %d, want at least 6", resp.Flagged)
	}
	if resp.Contamination == nil || *resp.Contamination != 0.1 {
		t.Errorf("contamination = %v, want 0.1", resp.Contamination)
	}
	if len(resp.Results) != 60 {
		t.Errorf("len(results) = %d, want 60", len(resp.Results))
	}

	code, flagged, _ := s.records(t, "/api/v1/anomalies?flagged_only=true")
	if code != http.StatusOK {
		t.Fatalf("anomalies status = %d, want 200", code)
	}
	if len(flagged.Records) != resp.Flagged {
		t.Errorf("flagged records = %d, want %d", len(flagged.Records), resp.Flagged)
	}
	if flagged.KPIs.FlaggedAnomalies != resp.Flagged {
		t.Errorf("flagged_anomalies = %d, want %d", flagged.KPIs.FlaggedAnomalies, resp.Flagged)
	}
	foundOutlier := false
	for _, r := range flagged.Records {
		if r.Anomaly == nil || !r.Anomaly.IsAnomaly || r.Anomaly.RunID != resp.RunID {
			t.Fatalf("record %v anomaly = %+v, want flagged by run %v", r.ID, r.Anomaly, resp.RunID)
		}
		if r.SourceIP != nil && *r.SourceIP == outlierSourceIP && r.DataVolumeMB != nil && *r.DataVolumeMB > 1000 {
			foundOutlier = true
		}
	}
	if !foundOutlier {
		t.Error("the 5 GB session was not flagged")
	}

	_, all, _ := s.records(t, "/api/v1/anomalies")
	if len(all.Records) != 60 {
		t.Errorf("records with results = %d, want 60", len(all.Records))
	}
}

func TestDetect_Scope(t *testing.T) {
	s := newTestServer(t)
	s.upload(t)

	rec, env := s.do(t, detectRequestBody(`{"scope":{"user_id":"user1"},"config":{"auto":true,"random_seed":7}}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp models.DetectionResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode detection: %v", err)
	}
	if resp.Records != 12 {
		t.Errorf("records = %d, want 12", resp.Records)
	}
	if resp.Contamination != nil {
		t.Errorf("contamination = %v, want null for auto", *resp.Contamination)
	}

	_, stored, _ := s.records(t, "/api/v1/anomalies")
	if len(stored.Records) != 12 {
		t.Errorf("records with results = %d, want 12", len(stored.Records))
	}
}

func TestDetect_Errors(t *testing.T) {
	s := newTestServer(t)
	s.upload(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"malformed json", `{"config":`, http.StatusBadRequest, codeValidation},
		{"unknown field", `{"threshold":0.3}`, http.StatusBadRequest, codeValidation},
		{"contamination too high", `{"config":{"contamination":0.9}}`, http.StatusBadRequest, codeValidation},
		{"contamination zero", `{"config":{"contamination":0}}`, http.StatusBadRequest, codeValidation},
		{"auto with contamination", `{"config":{"auto":true,"contamination":0.1}}`, http.StatusBadRequest, codeValidation},
		{"unknown feature", `{"config":{"feature_set":["packet_loss"]}}`, http.StatusBadRequest, codeValidation},
		{"bad scope", `{"scope":{"source_ip":"x"}}`, http.StatusBadRequest, codeValidation},
		{"empty scope", `{"scope":{"user_id":"nobody"}}`, http.StatusUnprocessableEntity, codeInsufficientData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := s.do(t, detectRequestBody(tt.body))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body.String())
			}
			if env.Error == nil || env.Error.Code != tt.wantErr {
				t.Errorf("error = %+v, want %s", env.Error, tt.wantErr)
			}
		})
	}
}

func TestBatches_ListAndDelete(t *testing.T) {
	s := newTestServer(t)
	first := s.upload(t)
	second := s.upload(t)

	rec, env := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/batches", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var batches []models.UploadBatch
	if err := json.Unmarshal(env.Data, &batches); err != nil {
		t.Fatalf("decode batches: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("len(batches) = %d, want 2", len(batches))
	}

	rec, env = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+first.BatchID.String(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
	var batch models.UploadBatch
	if err := json.Unmarshal(env.Data, &batch); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if batch.UploadedBy != "analyst" || batch.RowCount != 60 {
		t.Errorf("batch = %+v, want uploaded_by analyst with 60 rows", batch)
	}

	if rec, _ := s.do(t, detectRequestBody("")); rec.Code != http.StatusOK {
		t.Fatalf("detect status = %d, want 200", rec.Code)
	}

	path := "/api/v1/batches/" + first.BatchID.String()
	for i := 0; i < 2; i++ {
		rec, _ := s.do(t, httptest.NewRequest(http.MethodDelete, path, nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("delete #%d status = %d, want 204", i+1, rec.Code)
		}
	}

	_, resp, _ := s.records(t, "/api/v1/records")
	if len(resp.Records) != 60 {
		t.Errorf("records after delete = %d, want 60", len(resp.Records))
	}
	for _, r := range resp.Records {
		if r.BatchID != second.BatchID {
			t.Fatalf("record from deleted batch %v survived", r.BatchID)
		}
	}
	_, anomalies, _ := s.records(t, "/api/v1/anomalies")
	if len(anomalies.Records) != 60 {
		t.Errorf("results after delete = %d, want 60", len(anomalies.Records))
	}

	rec, env = s.do(t, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code != http.StatusNotFound || env.Error.Code != codeNotFound {
		t.Errorf("get deleted batch = %d %+v, want 404 NOT_FOUND", rec.Code, env.Error)
	}

	rec, _ = s.do(t, httptest.NewRequest(http.MethodDelete, "/api/v1/batches/not-a-uuid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("delete invalid id status = %d, want 400", rec.Code)
	}
}

type downStore struct {
	RecordStore
}

func (downStore) Ping(context.Context) error { return errors.New("database is closed") }

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/v1/health/live", "/api/v1/health/ready"} {
		rec, env := s.do(t, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || env.Status != "success" {
			t.Errorf("%s = %d %s, want 200 success", path, rec.Code, env.Status)
		}
	}

	down := NewRouter(NewHandler(downStore{}, nil, nil, Options{}), nil).SetupChi()
	rec := httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready with database down = %d, want 503", rec.Code)
	}
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("live with database down = %d, want 200", rec.Code)
	}
}

func TestFilterParams_LimitCap(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		maxLimit int
		want     int
		wantErr  bool
	}{
		{"unset limit takes the cap", 0, 50, 50, false},
		{"explicit limit kept", 20, 50, 20, false},
		{"limit at cap", 50, 50, 50, false},
		{"limit over cap", 51, 50, 0, true},
		{"no cap stays unbounded", 0, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, apiErr := filterParams{Limit: tt.limit}.toFilter(tt.maxLimit)
			if (apiErr != nil) != tt.wantErr {
				t.Fatalf("toFilter() error = %v, wantErr %v", apiErr, tt.wantErr)
			}
			if !tt.wantErr && f.Limit != tt.want {
				t.Errorf("Limit = %d, want %d", f.Limit, tt.want)
			}
		})
	}
}

func TestHealthReady_Details(t *testing.T) {
	s := newTestServer(t)
	s.upload(t)

	rec, env := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ready = %d, want 200", rec.Code)
	}
	var status models.HealthStatus
	if err := json.Unmarshal(env.Data, &status); err != nil {
		t.Fatalf("decode health status: %v", err)
	}
	want, err := s.db.GetCurrentSchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("GetCurrentSchemaVersion() error = %v", err)
	}
	if want == 0 || status.SchemaVersion != want {
		t.Errorf("schema_version = %d, want %d", status.SchemaVersion, want)
	}
	if status.RecordCount == nil || *status.RecordCount != 60 {
		t.Errorf("record_count = %v, want 60", status.RecordCount)
	}
}

func TestRouter_Envelope(t *testing.T) {
	s := newTestServer(t)

	rec, env := s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/nothing-here", nil))
	if rec.Code != http.StatusNotFound || env.Error == nil || env.Error.Code != codeNotFound {
		t.Errorf("unknown route = %d %+v, want 404 NOT_FOUND", rec.Code, env.Error)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}

	rec, _ = s.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/batches", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing on API routes")
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("ETag missing")
	}

	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "api_requests_total") {
		t.Errorf("/metrics = %d, want 200 with api_requests_total", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	mw := NewChiMiddleware(&ChiMiddlewareConfig{RateLimitRequests: 2, RateLimitWindow: time.Minute})
	router := NewRouter(NewHandler(downStore{}, nil, nil, Options{}), mw).SetupChi()

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		router.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/api/v1/batches/not-a-uuid", nil))
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", last.Code)
	}
	var env envelope
	if err := json.Unmarshal(last.Body.Bytes(), &env); err != nil || env.Error == nil || env.Error.Code != "RATE_LIMITED" {
		t.Errorf("rate limit body = %s, want RATE_LIMITED envelope", last.Body.String())
	}
}

func TestComputeKPIs(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	u := func(v string) *string { return &v }

	records := []models.EnrichedRecord{
		{UserID: u("user1"), SessionDurationSeconds: f(1800), DataVolumeMB: f(10)},
		{UserID: u("user1"), SessionDurationSeconds: f(1800), DataVolumeMB: f(5.5),
			Anomaly: &models.AnomalyResult{IsAnomaly: true}},
		{UserID: u("user2"), Anomaly: &models.AnomalyResult{IsAnomaly: false}},
		{},
	}
	got := computeKPIs(records)
	want := models.RecordKPIs{
		TotalSessions:      4,
		UniqueUsers:        2,
		TotalDurationHours: 1,
		TotalVolumeMB:      15.5,
		FlaggedAnomalies:   1,
	}
	if got != want {
		t.Errorf("computeKPIs() = %+v, want %+v", got, want)
	}

	if empty := computeKPIs(nil); empty != (models.RecordKPIs{}) {
		t.Errorf("computeKPIs(nil) = %+v, want zero", empty)
	}
}

func TestParseDateParam(t *testing.T) {
	tests := []struct {
		value    string
		endOfDay bool
		want     string
		wantErr  bool
	}{
		{"", false, "", false},
		{"2024-03-01", false, "2024-03-01T00:00:00Z", false},
		{"2024-03-01", true, "2024-03-01T23:59:59.999999999Z", false},
		{"2024-03-01T10:00:00+02:00", true, "2024-03-01T08:00:00Z", false},
		{"03/01/2024", false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := parseDateParam(tt.value, tt.endOfDay)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDateParam(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if tt.want == "" {
				if got != nil {
					t.Errorf("parseDateParam(%q) = %v, want nil", tt.value, got)
				}
				return
			}
			if s := got.Format(time.RFC3339Nano); s != tt.want {
				t.Errorf("parseDateParam(%q) = %s, want %s", tt.value, s, tt.want)
			}
		})
	}
}
