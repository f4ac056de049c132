package domain

import (
	"io"
	"time"
)

// StoredObject is the metadata of an uploaded file, unique on (Bucket, Key).
type StoredObject struct {
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	ETag        string    `json:"etag"`
	Source      string    `json:"source,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ObjectInfo is what the blob store reports about a stored key.
type ObjectInfo struct {
	Size        int64
	ETag        string
	ContentType string
}

// ObjectView is a stored object together with a time-limited retrieval URL.
// URL is empty when the blob backend cannot presign.
type ObjectView struct {
	StoredObject
	URL string `json:"url,omitempty"`
}

// UploadRequest describes a file handed to the upload path.
type UploadRequest struct {
	Filename    string
	ContentType string
	Source      string
	Size        int64
	Body        io.Reader
}
