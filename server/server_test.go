package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commentdedup/internal/config"
	"commentdedup/server/middleware"
	"commentdedup/session"
)

var scenarioTexts = []string{"Excelente servicio", "EXCELENTE SERVICIO!!!", "Muy malo", "Excelente servicio"}

func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := Config{
		Dedup:     config.Default(),
		UploadDir: t.TempDir(),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

// closeNotifyingRecorder нужен для c.Stream
type closeNotifyingRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyingRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func doRequest(s *Server, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func postJSON(t *testing.T, s *Server, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return doRequest(s, http.MethodPost, "/api/sessions", bytes.NewReader(body), "application/json")
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func waitFinished(t *testing.T, s *Server, id string) *session.Result {
	t.Helper()
	sess, ok := s.Registry().Get(id)
	require.True(t, ok)

	var result *session.Result
	require.Eventually(t, func() bool {
		var done bool
		result, done = sess.Result()
		return done
	}, 10*time.Second, 10*time.Millisecond)
	return result
}

func TestCreateSession_JSON(t *testing.T) {
	s := newTestServer(t, nil)

	w := postJSON(t, s, CreateSessionRequest{Texts: scenarioTexts})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	created := decode[SessionResponse](t, w)
	require.NotEmpty(t, created.SessionID)
	waitFinished(t, s, created.SessionID)

	w = doRequest(s, http.MethodGet, "/api/sessions/"+created.SessionID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[SessionResponse](t, w)
	assert.Equal(t, session.StatusCompleted, got.Status)
	require.NotNil(t, got.Report)
	assert.Equal(t, 4, got.Report.TotalInput)
	assert.Equal(t, 2, got.Report.TotalOutput)
	require.NotNil(t, got.Progress)
	assert.Equal(t, 100.0, got.Progress.PercentComplete)
}

func TestCreateSession_Overrides(t *testing.T) {
	s := newTestServer(t, nil)

	threshold := 0.9
	w := postJSON(t, s, CreateSessionRequest{
		Texts:            scenarioTexts,
		SessionOverrides: SessionOverrides{Strategy: "keep_last", Threshold: &threshold},
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	created := decode[SessionResponse](t, w)

	sess, ok := s.Registry().Get(created.SessionID)
	require.True(t, ok)
	assert.Equal(t, "keep_last", sess.Config().ResolutionStrategy)
	assert.Equal(t, 0.9, sess.Config().SimilarityThreshold)
	assert.Equal(t, "keep_first", s.config.Dedup.ResolutionStrategy, "server defaults stay untouched")

	result := waitFinished(t, s, created.SessionID)
	require.Len(t, result.Records, 2)
	assert.Equal(t, int64(3), result.Records[1].ID, "keep_last keeps the latest member")
}

func TestCreateSession_InvalidConfig(t *testing.T) {
	s := newTestServer(t, nil)

	w := postJSON(t, s, CreateSessionRequest{
		Texts:            scenarioTexts,
		SessionOverrides: SessionOverrides{Strategy: "keep_random"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	resp := decode[middleware.ErrorResponse](t, w)
	assert.True(t, resp.Error)
	assert.Equal(t, "configuration_error", resp.Kind)
	assert.Contains(t, resp.Message, "keep_random")
	assert.Empty(t, s.Registry().List())
}

func TestCreateSession_EmptyTexts(t *testing.T) {
	s := newTestServer(t, nil)

	w := postJSON(t, s, CreateSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(s, http.MethodPost, "/api/sessions", strings.NewReader("{not json"), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateSession_MultipartCSV(t *testing.T) {
	s := newTestServer(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("text_field", "comment"))
	part, err := mw.CreateFormFile("file", "comments.csv")
	require.NoError(t, err)
	_, err = io.WriteString(part, "comment,rating\n"+
		"Excelente servicio,5\n"+
		"EXCELENTE SERVICIO!!!,5\n"+
		"Muy malo,1\n"+
		"Excelente servicio,4\n")
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := doRequest(s, http.MethodPost, "/api/sessions", &body, mw.FormDataContentType())
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	created := decode[SessionResponse](t, w)

	result := waitFinished(t, s, created.SessionID)
	assert.Equal(t, []string{"comment", "rating"}, result.Columns)
	require.Len(t, result.Records, 2)
	rating, ok := result.Records[1].Metadata.Get("rating")
	assert.True(t, ok)
	assert.Equal(t, "1", rating)

	w = doRequest(s, http.MethodGet, "/api/sessions/"+created.SessionID+"/records?format=csv", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")

	rows, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "comment", "rating", "merged_from", "merge_count"}, rows[0])
	assert.Equal(t, "Muy malo", rows[2][1])
}

func TestCreateSession_MissingTextColumn(t *testing.T) {
	s := newTestServer(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "comments.csv")
	require.NoError(t, err)
	_, err = io.WriteString(part, "comment\nhola\n")
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w := doRequest(s, http.MethodPost, "/api/sessions", &body, mw.FormDataContentType())
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "configuration_error", decode[middleware.ErrorResponse](t, w).Kind)
}

func TestCreateSession_UnsupportedUpload(t *testing.T) {
	s := newTestServer(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "comments.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF"))
	require.NoError(t, mw.Close())

	w := doRequest(s, http.MethodPost, "/api/sessions", &body, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSession_NotFound(t *testing.T) {
	s := newTestServer(t, nil)

	for _, path := range []string{"/api/sessions/missing", "/api/sessions/missing/records", "/api/sessions/missing/report"} {
		w := doRequest(s, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w := doRequest(s, http.MethodDelete, "/api/sessions/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetRecords_NotFinished(t *testing.T) {
	s := newTestServer(t, nil)

	sess, err := session.New(config.Default(), session.Options{Logger: s.logger})
	require.NoError(t, err)
	s.Registry().Add(sess)

	w := doRequest(s, http.MethodGet, "/api/sessions/"+sess.ID+"/records", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetRecordsAndReport(t *testing.T) {
	s := newTestServer(t, nil)

	created := decode[SessionResponse](t, postJSON(t, s, CreateSessionRequest{Texts: scenarioTexts}))
	waitFinished(t, s, created.SessionID)
	base := "/api/sessions/" + created.SessionID

	w := doRequest(s, http.MethodGet, base+"/records", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var payload struct {
		Total   int `json:"total"`
		Records []struct {
			ID   int64  `json:"id"`
			Text string `json:"text"`
		} `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	assert.Equal(t, 2, payload.Total)
	assert.Equal(t, "Excelente servicio", payload.Records[0].Text)

	w = doRequest(s, http.MethodGet, base+"/records?format=excel", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")

	w = doRequest(s, http.MethodGet, base+"/records?format=xml", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(s, http.MethodGet, base+"/report?format=yaml", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "total_output: 2")
	assert.Contains(t, w.Body.String(), "member_ids: [0, 1, 3]")

	w = doRequest(s, http.MethodGet, base+"/report", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"duplicates_removed":2`)
}

func TestProgressStream(t *testing.T) {
	s := newTestServer(t, nil)

	created := decode[SessionResponse](t, postJSON(t, s, CreateSessionRequest{Texts: scenarioTexts}))
	waitFinished(t, s, created.SessionID)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.SessionID+"/progress", nil)
	w := &closeNotifyingRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	s.Handler().ServeHTTP(w, req)

	body := w.Body.String()
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, body, "event:progress")
	assert.Contains(t, body, `"percent_complete":100`)
	assert.Contains(t, body, "event:done")
	assert.Contains(t, body, `"status":"completed"`)
}

func TestCancelSession(t *testing.T) {
	s := newTestServer(t, nil)

	created := decode[SessionResponse](t, postJSON(t, s, CreateSessionRequest{Texts: scenarioTexts}))

	w := doRequest(s, http.MethodDelete, "/api/sessions/"+created.SessionID, nil, "")
	assert.Equal(t, http.StatusAccepted, w.Code)

	result := waitFinished(t, s, created.SessionID)
	assert.Equal(t, result.Report.TotalInput-result.Report.DuplicatesRemoved-result.Report.Unprocessed,
		result.Report.TotalOutput)
}

func TestListSessionsAndHealth(t *testing.T) {
	s := newTestServer(t, nil)

	first := decode[SessionResponse](t, postJSON(t, s, CreateSessionRequest{Texts: []string{"uno"}}))
	second := decode[SessionResponse](t, postJSON(t, s, CreateSessionRequest{Texts: []string{"dos"}}))
	waitFinished(t, s, first.SessionID)
	waitFinished(t, s, second.SessionID)

	w := doRequest(s, http.MethodGet, "/api/sessions", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]SessionResponse](t, w)
	assert.Len(t, list, 2)

	w = doRequest(s, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sessions":2`)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *Config) { c.RateLimit = 1 })

	assert.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/api/sessions", nil, "").Code)
	w := doRequest(s, http.MethodGet, "/api/sessions", nil, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// health не ограничивается
	assert.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/health", nil, "").Code)
}

func TestNew_InvalidDedupConfig(t *testing.T) {
	cfg := config.Default()
	cfg.WorkerCount = 0
	_, err := New(Config{Dedup: cfg})
	assert.Error(t, err)
}
