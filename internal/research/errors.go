// ABOUTME: Error types for the research REST client
// ABOUTME: Non-2xx responses, per-file upload failures and the all-uploads-failed case

package research

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrNoFilesUploaded is returned by Start when PDFs were given but none
	// could be uploaded.
	ErrNoFilesUploaded = errors.New("no pdf could be uploaded")

	// ErrNotPDF rejects files without a .pdf extension before upload.
	ErrNotPDF = errors.New("only pdf files are supported")
)

// APIError is a non-2xx response. Detail carries the backend's "detail"
// field when present, otherwise the start of the body.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Detail)
}

func newAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			apiErr.Detail = s
		} else {
			raw, _ := json.Marshal(payload.Detail)
			apiErr.Detail = string(raw)
		}
		return apiErr
	}
	apiErr.Detail = strings.TrimSpace(string(body))
	return apiErr
}

// UploadError reports one PDF that could not be uploaded.
type UploadError struct {
	File string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploading %s: %v", e.File, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
