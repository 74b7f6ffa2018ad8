package models

import "strings"

// TempKeyPrefix is the staging namespace. Objects under it are uploaded
// through short-lived presigned URLs and are safe to delete at any time.
// A committed record must never keep a temp key past finalization.
const TempKeyPrefix = "temp/"

// FileAsset is a reference to an object in the blob store. Temporary and
// finalized assets are distinguished only by key prefix.
type FileAsset struct {
	Key          string `json:"key"`
	URL          string `json:"url"`
	MimeType     string `json:"mime_type"`
	OriginalName string `json:"original_name,omitempty"`
	SizeBytes    int64  `json:"size_bytes,omitempty"`
}

// IsTemp reports whether the asset still lives in the staging namespace.
func (a FileAsset) IsTemp() bool {
	return strings.HasPrefix(a.Key, TempKeyPrefix)
}

// IsZero reports whether no object is referenced at all.
func (a FileAsset) IsZero() bool {
	return a.Key == ""
}
