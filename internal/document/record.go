// Package document defines the durable document record owned by the store.
package document

import "time"

// Role is a user's access level on a document.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleEditor    Role = "editor"
	RoleCommenter Role = "commenter"
	RoleViewer    Role = "viewer"
	RoleNone      Role = "none"
)

// VersionEntry is one snapshot in a document's bounded history.
type VersionEntry struct {
	Version         uint64    `json:"version"`
	ContentSnapshot string    `json:"contentSnapshot"`
	EditedBy        string    `json:"editedBy"`
	Timestamp       time.Time `json:"timestamp"`

	// ArchivedSnapshotKey is the cold-storage object key. store.Archiver sets
	// it on the copy of an evicted entry that it uploads; entries kept in a
	// record's History never have it set, and ContentSnapshot is not cleared.
	// Nothing rehydrates entries automatically; see Archiver.Rehydrate in
	// internal/store/archive.go.
	ArchivedSnapshotKey string `json:"archivedSnapshotKey,omitempty"`
}

// MaxHistory is the bound on VersionEntry retention per document (spec §3).
const MaxHistory = 50

// Record is the document record owned by the store.
type Record struct {
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	Content string          `json:"content"`
	Version uint64          `json:"version"`
	Owner   string          `json:"owner"`
	Shares  map[string]Role `json:"shares"`
	History []VersionEntry  `json:"history"`
}

// MaxTitleLength bounds Title per spec §3.
const MaxTitleLength = 200

// PushHistory appends a pre-change snapshot, trimming the oldest entry once
// the bound is exceeded. The trimmed entry is returned so the caller can
// archive it if cold storage is configured.
func (r *Record) PushHistory(entry VersionEntry) (evicted *VersionEntry) {
	return r.PushHistoryBounded(entry, MaxHistory)
}

// PushHistoryBounded is PushHistory with an explicit bound, letting callers
// (tests, or a deployment-tuned config.VersionHistorySize) shrink the window
// below the default of 50.
func (r *Record) PushHistoryBounded(entry VersionEntry, maxHistory int) (evicted *VersionEntry) {
	r.History = append(r.History, entry)
	if len(r.History) > maxHistory {
		e := r.History[0]
		r.History = r.History[1:]
		return &e
	}
	return nil
}
