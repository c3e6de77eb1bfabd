// ABOUTME: HTTP client for the research backend's REST endpoints
// ABOUTME: PDF upload, research start with or without PDFs, and server status

package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTimeout bounds a single REST call. Starting a research run blocks on
// the backend until the flow is accepted, so it is generous.
const DefaultTimeout = 2 * time.Minute

// UploadResult is the backend's answer to a PDF upload.
type UploadResult struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	FileID    string `json:"file_id"`
	FilePath  string `json:"file_path"`
	Filename  string `json:"filename"`
	Topic     string `json:"topic,omitempty"`
	PageCount int    `json:"page_count,omitempty"`
}

// StartResult is the backend's answer to a research start.
type StartResult struct {
	Status     string `json:"status"`
	Topic      string `json:"topic"`
	Result     string `json:"result"`
	Message    string `json:"message"`
	ResearchID string `json:"research_id,omitempty"`
}

// ServerStatus is the backend's operational summary.
type ServerStatus struct {
	ActiveConnections int    `json:"active_connections"`
	Status            string `json:"status"`
}

// Client talks to the REST side of the backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client rooted at baseURL (for example
// http://localhost:8000). A nil httpClient gets DefaultTimeout.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With("component", "research"),
	}
}

// UploadPDF uploads one PDF from path. topic is optional.
func (c *Client) UploadPDF(ctx context.Context, path, topic string) (UploadResult, error) {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return UploadResult{}, &UploadError{File: filepath.Base(path), Err: ErrNotPDF}
	}

	f, err := os.Open(path)
	if err != nil {
		return UploadResult{}, &UploadError{File: filepath.Base(path), Err: err}
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return UploadResult{}, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return UploadResult{}, &UploadError{File: filepath.Base(path), Err: err}
	}
	if topic != "" {
		if err := mw.WriteField("topic", topic); err != nil {
			return UploadResult{}, fmt.Errorf("writing topic field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/research/upload-pdf", &body)
	if err != nil {
		return UploadResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var res UploadResult
	if err := c.do(req, &res); err != nil {
		return UploadResult{}, &UploadError{File: filepath.Base(path), Err: err}
	}
	c.logger.Info("pdf uploaded", "file", res.Filename, "file_id", res.FileID, "pages", res.PageCount)
	return res, nil
}

// Send starts a research run on topic without PDFs.
func (c *Client) Send(ctx context.Context, topic string) (StartResult, error) {
	payload, err := json.Marshal(map[string]string{"topic": topic})
	if err != nil {
		return StartResult{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/research/send", bytes.NewReader(payload))
	if err != nil {
		return StartResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var res StartResult
	if err := c.do(req, &res); err != nil {
		return StartResult{}, fmt.Errorf("starting research: %w", err)
	}
	return res, nil
}

// SendWithPDFs starts a research run on topic using previously uploaded files.
func (c *Client) SendWithPDFs(ctx context.Context, topic string, fileIDs []string) (StartResult, error) {
	params := url.Values{}
	params.Set("topic", topic)
	for _, id := range fileIDs {
		params.Add("file_ids", id)
	}

	endpoint := c.baseURL + "/research/send-with-pdfs?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return StartResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var res StartResult
	if err := c.do(req, &res); err != nil {
		return StartResult{}, fmt.Errorf("starting research with pdfs: %w", err)
	}
	return res, nil
}

// Status fetches the backend's status summary.
func (c *Client) Status(ctx context.Context) (ServerStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/research/status", nil)
	if err != nil {
		return ServerStatus{}, fmt.Errorf("creating request: %w", err)
	}

	var res ServerStatus
	if err := c.do(req, &res); err != nil {
		return ServerStatus{}, fmt.Errorf("fetching status: %w", err)
	}
	return res, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
