// Package objectstore defines the gateway's file storage abstraction.
//
// A [Store] holds user-uploaded and tool-generated artifacts under
// per-user-namespaced keys. Two implementations are provided: pkg/objectstore/s3
// (a real backend over AWS S3 / any S3-compatible endpoint) and
// pkg/objectstore/mock (an in-memory test double), following the same
// interface/mock split used throughout this codebase's provider packages.
//
// All implementations must be safe for concurrent use.
package objectstore

import (
	"context"
	"time"
)

// Source classifies how an object entered the store.
type Source string

const (
	// SourceUser marks a file uploaded directly by a user.
	SourceUser Source = "user"

	// SourceTool marks a file generated by a tool call on the user's behalf.
	SourceTool Source = "tool"
)

// Object is the metadata describing a single stored file. It never carries
// the file body — callers fetch content separately via [Store.Get].
type Object struct {
	// Key is the fully-qualified object-store key, e.g.
	// "users/alice@example.com/uploads/1730000000_a1b2c3d4_report.pdf".
	Key string

	// Filename is the original, human-readable filename. The s3 backend's
	// List reports the key's last path segment here instead.
	Filename string

	// ContentType is the MIME type of the stored content.
	ContentType string

	// Size is the content length in bytes.
	Size int64

	// ETag is the backend-assigned content hash, when available.
	ETag string

	// Tags holds arbitrary metadata attached at upload time, including a
	// "source" tag set to the Source the object was uploaded under. The s3
	// backend fills it only on the Object returned by Upload; its Get and
	// List leave Tags nil.
	Tags map[string]string

	// LastModified is when the object was last written.
	LastModified time.Time

	// UserEmail is the owning user's identity.
	UserEmail string
}

// Content pairs an [Object]'s metadata with its body.
type Content struct {
	Object
	Body []byte
}

// Stats summarizes per-user storage usage, as returned by [Store.Stats].
type Stats struct {
	TotalFiles     int
	TotalSize      int64
	UploadCount    int
	GeneratedCount int
}

// ListOptions narrows the result of [Store.List].
type ListOptions struct {
	// Source restricts results to objects uploaded under this source.
	// The zero value (empty string) matches every source.
	Source Source

	// Limit caps the number of objects returned. Zero means the
	// implementation's own default (typically 100).
	Limit int
}

// Store is the gateway's file storage interface. Every method scopes access
// to a single user's namespace via the userEmail parameter — callers (e.g.
// internal/toolexec, internal/httpapi) are responsible for authorizing that
// the caller identity matches userEmail before invoking these methods.
type Store interface {
	// Upload stores body under a new key derived from userEmail, filename, and
	// source, returning the resulting [Object] metadata.
	Upload(ctx context.Context, userEmail, filename string, body []byte, contentType string, source Source, tags map[string]string) (Object, error)

	// Get retrieves the full content of the object identified by key.
	// Returns [ErrNotFound] if no such object exists.
	Get(ctx context.Context, userEmail, key string) (Content, error)

	// List returns metadata for objects in userEmail's namespace, newest first.
	List(ctx context.Context, userEmail string, opts ListOptions) ([]Object, error)

	// Delete removes the object identified by key.
	// Returns (false, nil) if no such object existed; (true, nil) on success.
	Delete(ctx context.Context, userEmail, key string) (bool, error)

	// Stats aggregates usage statistics for userEmail's namespace.
	Stats(ctx context.Context, userEmail string) (Stats, error)
}
