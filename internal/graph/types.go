package graph

import "time"

// ChildCountUnknown indicates the child count was not present in the API response.
const ChildCountUnknown = -1

// Item represents a OneDrive drive item (file or folder).
// Fields are normalized from the Graph API response, so callers never see
// raw API data. The JSON form is what the cache stores.
type Item struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	DriveID    string    `json:"drive_id,omitempty"` // normalized: lowercase
	ParentID   string    `json:"parent_id,omitempty"`
	Size       int64     `json:"size"`
	ETag       string    `json:"etag,omitempty"`
	CTag       string    `json:"ctag,omitempty"`
	IsFolder   bool      `json:"is_folder"`
	IsPackage  bool      `json:"is_package,omitempty"`
	MimeType   string    `json:"mime_type,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	ChildCount int       `json:"child_count"` // ChildCountUnknown if not present
	WebURL     string    `json:"web_url,omitempty"`

	// QuickXorHash is the base64 content digest Graph reports for files.
	// Business drives may omit it.
	QuickXorHash string `json:"quick_xor_hash,omitempty"`

	// DownloadURL is pre-authenticated and ephemeral. Never log or cache it.
	DownloadURL string `json:"-"`
}

// Drive describes a OneDrive drive.
type Drive struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DriveType  string `json:"drive_type"`
	OwnerName  string `json:"owner_name,omitempty"`
	QuotaUsed  int64  `json:"quota_used"`
	QuotaTotal int64  `json:"quota_total"`
}

// Link is an anonymous sharing link created on an item.
type Link struct {
	PermissionID string `json:"permission_id"`
	URL          string `json:"url"`
	Type         string `json:"type"`
	Scope        string `json:"scope"`
}

// CopyMonitor identifies an asynchronous server-side copy. URL is the
// monitor endpoint returned in the Location header; it needs no auth.
type CopyMonitor struct {
	URL string `json:"url"`
}

// User is the signed-in account.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}
