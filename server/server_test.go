package server

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/pdfremedy/builder"
	"github.com/wudi/pdfremedy/compliance"
	"github.com/wudi/pdfremedy/compliance/pdfua"
	"github.com/wudi/pdfremedy/config"
	"github.com/wudi/pdfremedy/pipeline"
)

func init() { gin.SetMode(gin.TestMode) }

func document(t *testing.T) []byte {
	t.Helper()
	b := builder.NewBuilder()
	b.NewPage(612, 792).DrawText("Minutes of the meeting", 72, 700, builder.TextOptions{})
	data, err := b.Bytes()
	require.NoError(t, err)
	return data
}

func newServer(mutate func(*config.ServerConfig)) *Server {
	cfg := config.Default().Server
	cfg.RateLimit = 0
	if mutate != nil {
		mutate(&cfg)
	}
	return New(pipeline.New(pipeline.Options{}), pdfua.New(pdfua.Options{}), cfg, nil)
}

// upload builds a multipart request; fields map names to contents and the
// "file" field is sent as a file part.
func upload(t *testing.T, path string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, content := range fields {
		if name == "file" {
			part, err := w.CreateFormFile(name, "minutes.pdf")
			require.NoError(t, err)
			_, err = part.Write([]byte(content))
			require.NoError(t, err)
			continue
		}
		require.NoError(t, w.WriteField(name, content))
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := serve(newServer(nil), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRepair(t *testing.T) {
	rec := serve(newServer(nil), upload(t, "/api/v1/repair", map[string]string{
		"file":       string(document(t)),
		"directives": `[{"type":"SetDocumentTitle","payload":{"title":"Minutes"}}]`,
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp RepairResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, pipeline.StatusAccepted, resp.Status)
	require.NotNil(t, resp.Report)
	assert.True(t, resp.Report.Accepted)
	assert.True(t, bytes.HasPrefix(resp.Document, []byte("%PDF-")))
	require.Len(t, resp.Log.Supplied, 1)
	assert.Equal(t, "Minutes", resp.Log.Supplied[0].Value)
}

func TestRepairRejectsBadDirectives(t *testing.T) {
	rec := serve(newServer(nil), upload(t, "/api/v1/repair", map[string]string{
		"file":       string(document(t)),
		"directives": `[{"type":"Shout","payload":{}}]`,
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid directives")
}

func TestRepairUnparsable(t *testing.T) {
	rec := serve(newServer(nil), upload(t, "/api/v1/repair", map[string]string{"file": "not a document"}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRepairMissingFile(t *testing.T) {
	rec := serve(newServer(nil), upload(t, "/api/v1/repair", map[string]string{"directives": "[]"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidate(t *testing.T) {
	rec := serve(newServer(nil), upload(t, "/api/v1/validate", map[string]string{"file": string(document(t))}))
	require.Equal(t, http.StatusOK, rec.Code)
	var report compliance.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Len(t, report.Checks, len(pdfua.IDs()))
	assert.False(t, report.Passed())
}

func TestUploadLimit(t *testing.T) {
	s := newServer(func(c *config.ServerConfig) { c.MaxUploadMB = 1 })
	big := string(bytes.Repeat([]byte("x"), 2<<20))
	rec := serve(s, upload(t, "/api/v1/validate", map[string]string{"file": big}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRateLimit(t *testing.T) {
	s := newServer(func(c *config.ServerConfig) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})
	first := serve(s, upload(t, "/api/v1/validate", map[string]string{"file": "not a document"}))
	assert.Equal(t, http.StatusUnprocessableEntity, first.Code)
	second := serve(s, upload(t, "/api/v1/validate", map[string]string{"file": "not a document"}))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	health := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, health.Code, "health checks are not limited")
}

func TestCORS(t *testing.T) {
	s := newServer(func(c *config.ServerConfig) { c.CORSOrigins = []string{"https://app.example"} })
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/validate", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := serve(s, req)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = serve(s, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
