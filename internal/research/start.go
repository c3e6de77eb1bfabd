// ABOUTME: Starts a research run, uploading PDFs first when given
// ABOUTME: Partial upload failures are reported per file; zero successes fail the start

package research

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/2389/research-flow/internal/workflow"
)

// Notifier receives user-facing progress of the start flow.
type Notifier func(level workflow.Level, title, message string)

// Request describes a research run to start.
type Request struct {
	Topic string
	PDFs  []string // local paths, uploaded in order
}

// Start uploads req.PDFs one by one, then starts the research with the files
// that made it. Failed uploads are reported through notify and skipped; the
// start fails with ErrNoFilesUploaded only when PDFs were given and none
// uploaded. notify may be nil.
func (c *Client) Start(ctx context.Context, req Request, notify Notifier) (StartResult, error) {
	if notify == nil {
		notify = func(workflow.Level, string, string) {}
	}

	if len(req.PDFs) == 0 {
		res, err := c.Send(ctx, req.Topic)
		if err != nil {
			notify(workflow.LevelError, "Connection error", "Could not reach the research API. Is the server running?")
			return StartResult{}, err
		}
		notify(workflow.LevelInfo, "Research started", "Live progress enabled")
		return res, nil
	}

	notify(workflow.LevelInfo, "Uploading PDFs", fmt.Sprintf("Uploading %d file(s)...", len(req.PDFs)))

	var (
		fileIDs []string
		failed  []error
	)
	for _, path := range req.PDFs {
		up, err := c.UploadPDF(ctx, path, req.Topic)
		if err != nil {
			if ctx.Err() != nil {
				return StartResult{}, ctx.Err()
			}
			c.logger.Warn("pdf upload failed", "file", path, "error", err)
			notify(workflow.LevelError, "Upload failed", fmt.Sprintf("Could not upload %s", filepath.Base(path)))
			failed = append(failed, err)
			continue
		}
		fileIDs = append(fileIDs, up.FileID)
		notify(workflow.LevelSuccess, "PDF uploaded", fmt.Sprintf("%s (%d pages)", up.Filename, up.PageCount))
	}

	if len(fileIDs) == 0 {
		return StartResult{}, fmt.Errorf("%w: %w", ErrNoFilesUploaded, errors.Join(failed...))
	}

	notify(workflow.LevelInfo, "Research started", fmt.Sprintf("Analyzing %d PDF(s)...", len(fileIDs)))
	res, err := c.SendWithPDFs(ctx, req.Topic, fileIDs)
	if err != nil {
		notify(workflow.LevelError, "Connection error", "Could not reach the research API. Is the server running?")
		return StartResult{}, err
	}
	return res, nil
}
