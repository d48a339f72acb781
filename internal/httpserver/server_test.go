package httpserver

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/logboard/internal/memstore"
	"github.com/tinytelemetry/logboard/internal/model"
	"github.com/tinytelemetry/logboard/internal/query"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *memstore.Store, *gin.Engine) {
	t.Helper()
	store := memstore.New()
	store.SetClock(func() time.Time { return fixedNow })
	t.Cleanup(func() { store.Close() })

	cfg := query.DefaultConfig()
	srv := NewServer("", store, query.New(store, cfg), query.NewValidator(cfg), Options{MetricsEnabled: true, Version: "test"})
	srv.now = func() time.Time { return fixedNow }

	return srv, store, srv.routes()
}

func seedRecords(t *testing.T, store *memstore.Store) {
	t.Helper()
	rows := []struct {
		ts     string
		sev    model.Severity
		source string
		msg    string
	}{
		{"2024-01-01T10:00:00Z", model.SeverityError, "api", "upstream timeout"},
		{"2024-01-01T11:00:00Z", model.SeverityError, "api", "upstream Timeout again"},
		{"2024-01-02T09:30:00Z", model.SeverityInfo, "worker", "job done, with comma"},
	}
	for _, r := range rows {
		ts, _ := time.Parse(time.RFC3339, r.ts)
		if _, err := store.Insert(context.Background(), model.RecordDraft{Timestamp: &ts, Message: r.msg, Severity: r.sev, Source: r.source}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
}

func do(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, store, r := newTestServer(t)
	seedRecords(t, store)

	w := do(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]any
	decode(t, w, &body)
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if body["log_count"] != float64(3) {
		t.Errorf("log_count = %v, want 3", body["log_count"])
	}
}

func TestRootEndpoint(t *testing.T) {
	_, _, r := newTestServer(t)
	w := do(r, http.MethodGet, "/", "")
	var body map[string]any
	decode(t, w, &body)
	if w.Code != http.StatusOK || body["version"] != "test" {
		t.Errorf("root = %d %v", w.Code, body)
	}
}

func TestCreateAndGet(t *testing.T) {
	_, _, r := newTestServer(t)

	w := do(r, http.MethodPost, "/logs", `{"timestamp":"2024-05-01T08:00:00","message":"service started","severity":"info","source":"api"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d; body: %s", w.Code, w.Body.String())
	}
	var created model.LogRecord
	decode(t, w, &created)
	if created.ID != 1 || created.Severity != model.SeverityInfo || created.Source != "api" {
		t.Errorf("created = %+v", created)
	}
	if !created.Timestamp.Equal(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("timestamp = %v", created.Timestamp)
	}

	w = do(r, http.MethodGet, "/logs/1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got model.LogRecord
	decode(t, w, &got)
	if got.Message != "service started" {
		t.Errorf("get = %+v", got)
	}
}

func TestCreateDefaultsTimestamp(t *testing.T) {
	_, _, r := newTestServer(t)
	w := do(r, http.MethodPost, "/logs", `{"message":"no clock given","severity":"DEBUG","source":"cli"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d; body: %s", w.Code, w.Body.String())
	}
	var created model.LogRecord
	decode(t, w, &created)
	if !created.Timestamp.Equal(fixedNow) {
		t.Errorf("timestamp = %v, want %v", created.Timestamp, fixedNow)
	}
}

func TestCreateValidation(t *testing.T) {
	_, _, r := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{"short message and source", `{"message":"hi","severity":"INFO","source":"a"}`, []string{"message", "source"}},
		{"future timestamp", `{"timestamp":"2030-01-01T00:00:00Z","message":"from the future","severity":"INFO","source":"api"}`, []string{"timestamp"}},
		{"bad timestamp and severity", `{"timestamp":"soon","message":"hello","severity":"LOUD","source":"api"}`, []string{"timestamp", "severity"}},
		{"missing everything", `{}`, []string{"message", "severity", "source"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/logs", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400; body: %s", w.Code, w.Body.String())
			}
			var body struct {
				Error  string             `json:"error"`
				Fields []model.FieldError `json:"fields"`
			}
			decode(t, w, &body)
			if len(body.Fields) != len(tt.fields) {
				t.Fatalf("fields = %+v, want %v", body.Fields, tt.fields)
			}
			for i, f := range tt.fields {
				if body.Fields[i].Field != f {
					t.Errorf("field[%d] = %s, want %s", i, body.Fields[i].Field, f)
				}
			}
		})
	}

	if w := do(r, http.MethodPost, "/logs", `{not json`); w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", w.Code)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	_, store, r := newTestServer(t)
	seedRecords(t, store)

	w := do(r, http.MethodPut, "/logs/3", `{"severity":"warning"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d; body: %s", w.Code, w.Body.String())
	}
	var updated model.LogRecord
	decode(t, w, &updated)
	if updated.Severity != model.SeverityWarning || updated.Message != "job done, with comma" {
		t.Errorf("updated = %+v", updated)
	}

	if w := do(r, http.MethodPut, "/logs/3", `{"source":"bad source!"}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid update status = %d, want 400", w.Code)
	}
	if w := do(r, http.MethodPut, "/logs/99", `{"message":"nobody home"}`); w.Code != http.StatusNotFound {
		t.Errorf("update missing status = %d, want 404", w.Code)
	}

	w = do(r, http.MethodDelete, "/logs/3", "")
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/logs/3", ""); w.Code != http.StatusNotFound {
		t.Errorf("get deleted status = %d, want 404", w.Code)
	}
	if w := do(r, http.MethodDelete, "/logs/3", ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
	if w := do(r, http.MethodGet, "/logs/abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("non-numeric id status = %d, want 400", w.Code)
	}
}

func TestListEndpoint(t *testing.T) {
	_, store, r := newTestServer(t)
	seedRecords(t, store)

	w := do(r, http.MethodGet, "/logs?severity=error&search=TIMEOUT&sort_order=asc&page=2&page_size=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d; body: %s", w.Code, w.Body.String())
	}
	var res model.ListResult
	decode(t, w, &res)
	if res.Total != 2 || res.TotalPages != 2 || res.Page != 2 || res.PageSize != 1 {
		t.Errorf("window = %+v", res)
	}
	if len(res.Items) != 1 || res.Items[0].ID != 2 {
		t.Errorf("items = %+v, want record 2", res.Items)
	}

	w = do(r, http.MethodGet, "/logs?source=nowhere", "")
	res = model.ListResult{}
	decode(t, w, &res)
	if w.Code != http.StatusOK || res.Items == nil || len(res.Items) != 0 || res.Total != 0 {
		t.Errorf("empty list = %d %+v", w.Code, res)
	}
	if !strings.Contains(w.Body.String(), `"items":[]`) {
		t.Errorf("empty items should encode as [], got %s", w.Body.String())
	}
}

func TestListValidationErrors(t *testing.T) {
	_, _, r := newTestServer(t)

	w := do(r, http.MethodGet, "/logs?start_date=2024-02-01&end_date=2024-01-01&page=0&sort_by=message", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var body struct {
		Fields []model.FieldError `json:"fields"`
	}
	decode(t, w, &body)
	got := make(map[string]bool)
	for _, f := range body.Fields {
		got[f.Field] = true
	}
	for _, want := range []string{"start_date", "page", "sort_by"} {
		if !got[want] {
			t.Errorf("missing %s in %+v", want, body.Fields)
		}
	}
}

type searchBody struct {
	GroupBy      string           `json:"group_by"`
	Aggregations []map[string]any `json:"aggregations"`
	TotalCount   int64            `json:"total_count"`
}

func TestSearchEndpoint(t *testing.T) {
	_, store, r := newTestServer(t)
	seedRecords(t, store)

	w := do(r, http.MethodGet, "/logs/search", "")
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d; body: %s", w.Code, w.Body.String())
	}
	var body searchBody
	decode(t, w, &body)
	if body.GroupBy != "severity" || body.TotalCount != 3 || len(body.Aggregations) != 2 {
		t.Fatalf("search = %+v", body)
	}
	if body.Aggregations[0]["severity"] != "INFO" || body.Aggregations[1]["severity"] != "ERROR" || body.Aggregations[1]["count"] != float64(2) {
		t.Errorf("aggregations = %v", body.Aggregations)
	}

	w = do(r, http.MethodGet, "/logs/search?group_by=date&start_date=2024-01-01&end_date=2024-01-03", "")
	body = searchBody{}
	decode(t, w, &body)
	if len(body.Aggregations) != 3 || body.Aggregations[2]["date"] != "2024-01-03" || body.Aggregations[2]["count"] != float64(0) {
		t.Errorf("date aggregations = %v", body.Aggregations)
	}

	w = do(r, http.MethodGet, "/logs/search?group_by=source&limit=1", "")
	body = searchBody{}
	decode(t, w, &body)
	if len(body.Aggregations) != 1 || body.Aggregations[0]["source"] != "api" || body.TotalCount != 3 {
		t.Errorf("source top 1 = %+v", body)
	}

	if w := do(r, http.MethodGet, "/logs/search?group_by=week", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad group_by status = %d, want 400", w.Code)
	}
	if w := do(r, http.MethodGet, "/logs/search?limit=0", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}
}

func TestHistogramEndpoint(t *testing.T) {
	_, store, r := newTestServer(t)
	seedRecords(t, store)

	w := do(r, http.MethodGet, "/logs/histogram?start_date=2024-01-01&end_date=2024-01-31&source=api", "")
	if w.Code != http.StatusOK {
		t.Fatalf("histogram status = %d; body: %s", w.Code, w.Body.String())
	}
	var body struct {
		Histogram []model.SeverityCount `json:"histogram"`
		Total     int64                 `json:"total"`
		Filters   map[string]any        `json:"filters"`
	}
	decode(t, w, &body)
	if len(body.Histogram) != 5 || body.Total != 2 {
		t.Fatalf("histogram = %+v", body)
	}
	if body.Histogram[4].Severity != model.SeverityCritical || body.Histogram[4].Count != 0 {
		t.Errorf("critical bucket = %+v", body.Histogram[4])
	}
	if body.Filters["source"] != "api" || body.Filters["start_date"] != "2024-01-01T00:00:00Z" {
		t.Errorf("filters = %v", body.Filters)
	}

	if w := do(r, http.MethodGet, "/logs/histogram?start_date=2024-02-01&end_date=2024-01-01", ""); w.Code != http.StatusBadRequest {
		t.Errorf("inverted range status = %d, want 400", w.Code)
	}
}

func TestExportCSV(t *testing.T) {
	_, store, r := newTestServer(t)
	seedRecords(t, store)

	w := do(r, http.MethodGet, "/logs/export/csv?source=api&page_size=1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d; body: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != "attachment; filename=logs_export_20240601_120000.csv" {
		t.Errorf("content disposition = %q", cd)
	}

	rows, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	want := [][]string{
		{"ID", "Timestamp", "Severity", "Source", "Message"},
		{"2", "2024-01-01T11:00:00Z", "ERROR", "api", "upstream Timeout again"},
		{"1", "2024-01-01T10:00:00Z", "ERROR", "api", "upstream timeout"},
	}
	if fmt.Sprint(rows) != fmt.Sprint(want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

// downStore fails every read like an unreachable database.
type downStore struct{}

func (downStore) Scan(context.Context, model.Predicate, model.Order, int, int) ([]model.LogRecord, int64, error) {
	return nil, 0, fmt.Errorf("dial: %w", model.ErrStoreUnavailable)
}

func (downStore) ScanGroupedCount(context.Context, model.Predicate, model.Dimension) (map[string]int64, error) {
	return nil, fmt.Errorf("dial: %w", model.ErrStoreUnavailable)
}

func TestStoreUnavailable(t *testing.T) {
	cfg := query.DefaultConfig()
	srv := NewServer("", memstore.New(), query.New(downStore{}, cfg), query.NewValidator(cfg), Options{})
	r := srv.routes()

	for _, target := range []string{"/logs", "/logs/search", "/logs/histogram", "/logs/export/csv", "/health"} {
		if w := do(r, http.MethodGet, target, ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", target, w.Code)
		}
	}
	if w := do(r, http.MethodGet, "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("/metrics with metrics disabled = %d, want 404", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, store, r := newTestServer(t)
	seedRecords(t, store)

	do(r, http.MethodGet, "/logs", "")
	do(r, http.MethodGet, "/logs?page=-1", "")

	w := do(r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`logboard_queries_total{op="list",outcome="ok"} 1`,
		`logboard_queries_total{op="list",outcome="invalid"} 1`,
		`logboard_query_duration_seconds_count{op="list"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func startListening(t *testing.T) *Server {
	t.Helper()
	srv, _, _ := newTestServer(t)
	srv.addr = "127.0.0.1:0"
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		srv.Stop()
		gin.SetMode(gin.TestMode)
	})
	return srv
}

func TestServeStopsOnContextCancel(t *testing.T) {
	srv := startListening(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx) }()

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeReportsListenerFailure(t *testing.T) {
	srv := startListening(t)
	srv.listener.Close()

	select {
	case err := <-serveAsync(srv):
		if err == nil {
			t.Fatal("Serve on a closed listener returned nil")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return for a closed listener")
	}
}

func TestServeBeforeStart(t *testing.T) {
	srv, _, _ := newTestServer(t)
	if err := srv.Serve(context.Background()); err == nil {
		t.Fatal("Serve before Start returned nil")
	}
}

func serveAsync(srv *Server) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(context.Background()) }()
	return errCh
}
