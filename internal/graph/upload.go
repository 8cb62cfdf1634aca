package graph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/onedrive-index/internal/driveid"
)

// SimpleUploadMaxSize is the maximum file size for a single-request upload (4 MiB).
const SimpleUploadMaxSize = 4 * 1024 * 1024

// UploadByPath creates or replaces the file at the escaped remote path with
// the content of r in a single PUT. Missing parent folders are created by
// the service. Never retried: r may already be partially consumed.
func (c *Client) UploadByPath(
	ctx context.Context, driveID driveid.ID, remote string, r io.Reader, size int64,
) (*Item, error) {
	if remote == "" {
		return nil, fmt.Errorf("graph: upload target must not be the drive root")
	}

	c.logger.Info("uploading by path",
		slog.String("drive_id", driveID.String()),
		slog.String("remote_path", remote),
		slog.Int64("size", size),
	)

	return c.simpleUpload(ctx, rootPath(driveID, remote, "/content"), r, size)
}

// UploadByID replaces the content of an existing file in place.
func (c *Client) UploadByID(
	ctx context.Context, driveID driveid.ID, itemID string, r io.Reader, size int64,
) (*Item, error) {
	c.logger.Info("uploading by id",
		slog.String("drive_id", driveID.String()),
		slog.String("item_id", itemID),
		slog.Int64("size", size),
	)

	return c.simpleUpload(ctx, itemPath(driveID, itemID)+"/content", r, size)
}

func (c *Client) simpleUpload(ctx context.Context, path string, r io.Reader, size int64) (*Item, error) {
	if size > SimpleUploadMaxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte single-request limit",
			ErrTooLarge, size, SimpleUploadMaxSize)
	}

	resp, err := c.doRawUpload(ctx, http.MethodPut, path, "application/octet-stream", r, size)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return c.decodeItem(resp.Body, "upload")
}

// doRawUpload sends an authenticated request with a custom content type.
// Unlike Do(), this does not retry: retrying a partially-consumed reader is not safe.
func (c *Client) doRawUpload(
	ctx context.Context, method, path, contentType string, body io.Reader, size int64,
) (*http.Response, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("graph: creating raw upload request: %w", err)
	}

	if size >= 0 {
		req.ContentLength = size
	}

	tok, err := c.token.Token()
	if err != nil {
		return nil, fmt.Errorf("graph: obtaining token for upload: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("raw upload request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("graph: raw upload request failed: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message
		resp.Body.Close()

		return nil, newGraphError(resp, errBody)
	}

	return resp, nil
}
