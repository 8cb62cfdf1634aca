package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tonimelisma/onedrive-index/internal/driveid"
)

type copyItemRequest struct {
	ParentReference copyParentRef `json:"parentReference"`
	Name            string        `json:"name,omitempty"`
}

type copyParentRef struct {
	DriveID string `json:"driveId,omitempty"`
	ID      string `json:"id"`
}

// CopyItem starts a server-side copy of itemID into destParentID. The copy
// runs asynchronously; the returned monitor URL reports its progress. An
// empty name keeps the source name.
func (c *Client) CopyItem(
	ctx context.Context, driveID driveid.ID, itemID, destParentID, name string,
) (*CopyMonitor, error) {
	c.logger.Info("copying item",
		slog.String("drive_id", driveID.String()),
		slog.String("item_id", itemID),
		slog.String("dest_parent_id", destParentID),
	)

	req := copyItemRequest{
		ParentReference: copyParentRef{ID: destParentID},
		Name:            name,
	}

	if !driveID.IsZero() {
		req.ParentReference.DriveID = driveID.String()
	}

	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling copy request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, itemPath(driveID, itemID)+"/copy", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if _, copyErr := io.Copy(io.Discard, resp.Body); copyErr != nil {
		return nil, fmt.Errorf("graph: draining copy response body: %w", copyErr)
	}

	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, fmt.Errorf("graph: copy accepted without a Location header (status %d)", resp.StatusCode)
	}

	return &CopyMonitor{URL: loc}, nil
}
