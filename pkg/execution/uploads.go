package execution

import (
	"context"
	"fmt"
)

// FileUpload is an auxiliary file attached to a chat run.
type FileUpload struct {
	Name    string
	Content []byte
}

// UploadedFile is the stored reference handed to the workflow input.
type UploadedFile struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Uploader stores chat run attachments.
type Uploader interface {
	Upload(ctx context.Context, file FileUpload) (string, error)
}

// preflightUploads uploads chat files sequentially before the run. A
// single failure is recorded and surfaced but does not abort the other
// uploads; execution proceeds with whatever succeeded.
func (c *Controller) preflightUploads(ctx context.Context, files []FileUpload) ([]UploadedFile, error) {
	if c.uploader == nil {
		return nil, fmt.Errorf("no uploader configured for %d attached files", len(files))
	}

	uploaded := make([]UploadedFile, 0, len(files))

	var firstErr error

	for _, file := range files {
		url, err := c.uploader.Upload(ctx, file)
		if err != nil {
			c.logger.WarnContext(ctx, "file upload failed", "file", file.Name, "error", err)

			if firstErr == nil {
				firstErr = fmt.Errorf("upload of %s failed: %w", file.Name, err)
			}

			continue
		}

		uploaded = append(uploaded, UploadedFile{Name: file.Name, URL: url})
	}

	return uploaded, firstErr
}
