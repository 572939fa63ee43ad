// Package mock provides an in-memory test double for [objectstore.Store].
package mock

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/chatgw/pkg/objectstore"
)

// Store is an in-memory [objectstore.Store]. The zero value is ready to use.
// Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	objects map[string]objectstore.Content

	// UploadErr, when non-nil, is returned by every call to Upload.
	UploadErr error
}

// NewStore returns an empty, ready-to-use mock [objectstore.Store].
func NewStore() *Store {
	return &Store{objects: make(map[string]objectstore.Content)}
}

func (s *Store) ensure() {
	if s.objects == nil {
		s.objects = make(map[string]objectstore.Content)
	}
}

// Upload stores body in memory under a deterministically generated key.
func (s *Store) Upload(ctx context.Context, userEmail, filename string, body []byte, contentType string, source objectstore.Source, tags map[string]string) (objectstore.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure()

	if s.UploadErr != nil {
		return objectstore.Object{}, s.UploadErr
	}

	mergedTags := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		mergedTags[k] = v
	}
	mergedTags["source"] = string(source)

	key := objectstore.NewKey(userEmail, filename, source, time.Now())
	obj := objectstore.Object{
		Key:          key,
		Filename:     filename,
		ContentType:  contentType,
		Size:         int64(len(body)),
		Tags:         mergedTags,
		LastModified: time.Now(),
		UserEmail:    userEmail,
	}
	bodyCopy := make([]byte, len(body))
	copy(bodyCopy, body)
	s.objects[key] = objectstore.Content{Object: obj, Body: bodyCopy}
	return obj, nil
}

// Get retrieves a previously uploaded object.
func (s *Store) Get(ctx context.Context, userEmail, key string) (objectstore.Content, error) {
	if err := objectstore.ValidateKey(userEmail, key); err != nil {
		return objectstore.Content{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure()

	c, ok := s.objects[key]
	if !ok {
		return objectstore.Content{}, objectstore.ErrNotFound
	}
	return c, nil
}

// List returns metadata for every stored object under userEmail's namespace.
func (s *Store) List(ctx context.Context, userEmail string, opts objectstore.ListOptions) ([]objectstore.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure()

	prefix := "users/" + userEmail + "/"
	var out []objectstore.Object
	for key, c := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if opts.Source != "" && c.Tags["source"] != string(opts.Source) {
			continue
		}
		out = append(out, c.Object)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastModified.After(out[j].LastModified) })

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes an object.
func (s *Store) Delete(ctx context.Context, userEmail, key string) (bool, error) {
	if err := objectstore.ValidateKey(userEmail, key); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure()

	if _, ok := s.objects[key]; !ok {
		return false, nil
	}
	delete(s.objects, key)
	return true, nil
}

// Stats aggregates usage for userEmail's namespace.
func (s *Store) Stats(ctx context.Context, userEmail string) (objectstore.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensure()

	prefix := "users/" + userEmail + "/"
	var stats objectstore.Stats
	for key, c := range s.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		stats.TotalFiles++
		stats.TotalSize += c.Size
		switch c.Tags["source"] {
		case string(objectstore.SourceUser):
			stats.UploadCount++
		case string(objectstore.SourceTool):
			stats.GeneratedCount++
		}
	}
	return stats, nil
}

// Ensure Store implements objectstore.Store at compile time.
var _ objectstore.Store = (*Store)(nil)
