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

// Share link parameters. Links are read-only and anonymous.
const (
	LinkTypeView       = "view"
	LinkScopeAnonymous = "anonymous"
)

type createLinkRequest struct {
	Type  string `json:"type"`
	Scope string `json:"scope"`
}

type permissionResponse struct {
	ID   string     `json:"id"`
	Link *linkFacet `json:"link"`
}

type linkFacet struct {
	Type   string `json:"type"`
	Scope  string `json:"scope"`
	WebURL string `json:"webUrl"`
}

type permissionsListResponse struct {
	Value []permissionResponse `json:"value"`
}

func (p *permissionResponse) toLink() Link {
	return Link{
		PermissionID: p.ID,
		URL:          p.Link.WebURL,
		Type:         p.Link.Type,
		Scope:        p.Link.Scope,
	}
}

// CreateShareLink creates (or returns the existing) anonymous view link.
func (c *Client) CreateShareLink(ctx context.Context, driveID driveid.ID, itemID string) (*Link, error) {
	c.logger.Info("creating share link",
		slog.String("drive_id", driveID.String()),
		slog.String("item_id", itemID),
	)

	bodyBytes, err := json.Marshal(createLinkRequest{Type: LinkTypeView, Scope: LinkScopeAnonymous})
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling create link request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, itemPath(driveID, itemID)+"/createLink", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var pr permissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, fmt.Errorf("graph: decoding create link response: %w", err)
	}

	if pr.Link == nil || pr.Link.WebURL == "" {
		return nil, fmt.Errorf("graph: create link response has no link")
	}

	link := pr.toLink()

	return &link, nil
}

// ListShareLinks returns the sharing-link permissions on an item. Direct
// grants and inherited permissions without a link facet are skipped.
func (c *Client) ListShareLinks(ctx context.Context, driveID driveid.ID, itemID string) ([]Link, error) {
	resp, err := c.Do(ctx, http.MethodGet, itemPath(driveID, itemID)+"/permissions", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var plr permissionsListResponse
	if err := json.NewDecoder(resp.Body).Decode(&plr); err != nil {
		return nil, fmt.Errorf("graph: decoding permissions response: %w", err)
	}

	links := make([]Link, 0, len(plr.Value))

	for i := range plr.Value {
		if plr.Value[i].Link == nil {
			continue
		}

		links = append(links, plr.Value[i].toLink())
	}

	return links, nil
}

// DeletePermission removes a single permission from an item.
func (c *Client) DeletePermission(ctx context.Context, driveID driveid.ID, itemID, permissionID string) error {
	c.logger.Info("deleting permission",
		slog.String("drive_id", driveID.String()),
		slog.String("item_id", itemID),
		slog.String("permission_id", permissionID),
	)

	resp, err := c.Do(ctx, http.MethodDelete, itemPath(driveID, itemID)+"/permissions/"+permissionID, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, copyErr := io.Copy(io.Discard, resp.Body); copyErr != nil {
		return fmt.Errorf("graph: draining delete permission response body: %w", copyErr)
	}

	return nil
}

// DeleteShareLinks revokes every sharing link on an item and returns how
// many were removed. It stops at the first failed revocation.
func (c *Client) DeleteShareLinks(ctx context.Context, driveID driveid.ID, itemID string) (int, error) {
	links, err := c.ListShareLinks(ctx, driveID, itemID)
	if err != nil {
		return 0, err
	}

	removed := 0

	for i := range links {
		if err := c.DeletePermission(ctx, driveID, itemID, links[i].PermissionID); err != nil {
			return removed, err
		}

		removed++
	}

	c.logger.Info("share links revoked",
		slog.String("item_id", itemID),
		slog.Int("count", removed),
	)

	return removed, nil
}
