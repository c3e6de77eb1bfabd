// ABOUTME: Tests for the research REST client against an httptest backend
// ABOUTME: Covers multipart upload, query encoding, API errors and partial uploads

package research

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/research-flow/internal/workflow"
)

type fakeAPI struct {
	mu         sync.Mutex
	uploads    []string
	sentTopic  string
	sentFileID []string
	failUpload map[string]bool
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	api := &fakeAPI{failUpload: map[string]bool{}}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /research/upload-pdf", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, `{"detail":"missing file"}`, http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)

		api.mu.Lock()
		fail := api.failUpload[header.Filename]
		api.uploads = append(api.uploads, header.Filename+":"+r.FormValue("topic")+":"+string(data))
		api.mu.Unlock()

		if fail {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail":"broken pdf"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(UploadResult{
			Status:    "success",
			FileID:    "id-" + header.Filename,
			Filename:  header.Filename,
			PageCount: 3,
		})
	})
	mux.HandleFunc("POST /research/send", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Topic string `json:"topic"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		api.mu.Lock()
		api.sentTopic = body.Topic
		api.mu.Unlock()
		_ = json.NewEncoder(w).Encode(StartResult{Status: "success", Topic: body.Topic, ResearchID: "r-1"})
	})
	mux.HandleFunc("POST /research/send-with-pdfs", func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.sentTopic = r.URL.Query().Get("topic")
		api.sentFileID = r.URL.Query()["file_ids"]
		api.mu.Unlock()
		_ = json.NewEncoder(w).Encode(StartResult{Status: "success", Topic: api.sentTopic})
	})
	mux.HandleFunc("GET /research/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ServerStatus{ActiveConnections: 2, Status: "operational"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return api, srv
}

func writePDF(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type toastLog struct {
	titles []string
	levels []workflow.Level
}

func (l *toastLog) notify(level workflow.Level, title, _ string) {
	l.levels = append(l.levels, level)
	l.titles = append(l.titles, title)
}

func TestUploadPDF(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := NewClient(srv.URL+"/", nil, nil)

	path := writePDF(t, t.TempDir(), "paper.pdf", "%PDF-1.4")
	res, err := c.UploadPDF(context.Background(), path, "solar")
	require.NoError(t, err)

	assert.Equal(t, "id-paper.pdf", res.FileID)
	assert.Equal(t, 3, res.PageCount)
	assert.Equal(t, []string{"paper.pdf:solar:%PDF-1.4"}, api.uploads)
}

func TestUploadPDF_RejectsNonPDF(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := NewClient(srv.URL, nil, nil)

	path := writePDF(t, t.TempDir(), "notes.txt", "hello")
	_, err := c.UploadPDF(context.Background(), path, "")

	assert.ErrorIs(t, err, ErrNotPDF)
	var upErr *UploadError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, "notes.txt", upErr.File)
	assert.Empty(t, api.uploads)
}

func TestUploadPDF_APIError(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.failUpload["bad.pdf"] = true
	c := NewClient(srv.URL, nil, nil)

	_, err := c.UploadPDF(context.Background(), writePDF(t, t.TempDir(), "bad.pdf", "x"), "")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "broken pdf", apiErr.Detail)
}

func TestSend(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := NewClient(srv.URL, nil, nil)

	res, err := c.Send(context.Background(), "quantum batteries")
	require.NoError(t, err)

	assert.Equal(t, "quantum batteries", api.sentTopic)
	assert.Equal(t, "r-1", res.ResearchID)
}

func TestSendWithPDFs_EncodesRepeatedFileIDs(t *testing.T) {
	api, srv := newFakeAPI(t)
	c := NewClient(srv.URL, nil, nil)

	_, err := c.SendWithPDFs(context.Background(), "a & b", []string{"f1", "f2"})
	require.NoError(t, err)

	assert.Equal(t, "a & b", api.sentTopic)
	assert.Equal(t, []string{"f1", "f2"}, api.sentFileID)
}

func TestStatus(t *testing.T) {
	_, srv := newFakeAPI(t)
	st, err := NewClient(srv.URL, nil, nil).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ServerStatus{ActiveConnections: 2, Status: "operational"}, st)
}

func TestStart_WithoutPDFs(t *testing.T) {
	api, srv := newFakeAPI(t)
	var toasts toastLog

	_, err := NewClient(srv.URL, nil, nil).Start(context.Background(), Request{Topic: "t"}, toasts.notify)
	require.NoError(t, err)

	assert.Equal(t, "t", api.sentTopic)
	assert.Equal(t, []string{"Research started"}, toasts.titles)
}

func TestStart_PartialUploadProceeds(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.failUpload["b.pdf"] = true
	dir := t.TempDir()
	var toasts toastLog

	_, err := NewClient(srv.URL, nil, nil).Start(context.Background(), Request{
		Topic: "t",
		PDFs: []string{
			writePDF(t, dir, "a.pdf", "1"),
			writePDF(t, dir, "b.pdf", "2"),
			writePDF(t, dir, "c.pdf", "3"),
		},
	}, toasts.notify)
	require.NoError(t, err)

	assert.Equal(t, []string{"id-a.pdf", "id-c.pdf"}, api.sentFileID)
	assert.Equal(t, []string{
		"Uploading PDFs",
		"PDF uploaded",
		"Upload failed",
		"PDF uploaded",
		"Research started",
	}, toasts.titles)
}

func TestStart_AllUploadsFail(t *testing.T) {
	api, srv := newFakeAPI(t)
	api.failUpload["a.pdf"] = true
	dir := t.TempDir()

	_, err := NewClient(srv.URL, nil, nil).Start(context.Background(), Request{
		Topic: "t",
		PDFs:  []string{writePDF(t, dir, "a.pdf", "1"), filepath.Join(dir, "missing.pdf")},
	}, nil)

	assert.ErrorIs(t, err, ErrNoFilesUploaded)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, api.sentTopic, "research must not start")
}

func TestAPIError_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil, nil).Status(context.Background())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "gateway down", apiErr.Detail)
	assert.True(t, strings.Contains(err.Error(), "502"))
}
