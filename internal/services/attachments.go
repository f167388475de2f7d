package services

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/webclipper/clipper-api/internal/models"
	"github.com/webclipper/clipper-api/pkg/errors"
	"github.com/webclipper/clipper-api/pkg/metrics"
)

// DefaultAttachmentLimit is the total decoded size cap per send session.
const DefaultAttachmentLimit = 10 * 1024 * 1024

// AttachmentStore holds pending attachments per send session. Attachments are
// transient by contract: they live in memory with a TTL, are delivered with
// the next successful send, and are cleared on confirmation. Nothing is ever
// written to disk.
type AttachmentStore struct {
	mu       sync.Mutex
	sessions *gocache.Cache
	limit    int
}

// NewAttachmentStore creates a store with the given session TTL and total
// size limit in bytes. A limit of 0 selects the default 10 MiB.
func NewAttachmentStore(sessionTTL time.Duration, limit int) *AttachmentStore {
	if limit <= 0 {
		limit = DefaultAttachmentLimit
	}
	return &AttachmentStore{
		sessions: gocache.New(sessionTTL, 2*sessionTTL),
		limit:    limit,
	}
}

// Add appends one attachment to a session. A single file over the limit, or
// one that would push the session total over it, is rejected. Re-adding a
// file with the same name and content is rejected without mutating the
// session, so a double-click on the file picker stays harmless.
func (s *AttachmentStore) Add(sessionID string, att models.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if att.Size() > s.limit {
		metrics.AttachmentsRejected.WithLabelValues("too_large").Inc()
		return errors.ErrAttachmentTooLarge
	}

	current := s.list(sessionID)
	total := att.Size()
	for _, existing := range current {
		if existing.Name == att.Name && existing.Data == att.Data {
			metrics.AttachmentsRejected.WithLabelValues("duplicate").Inc()
			return errors.ErrDuplicateAttachment
		}
		total += existing.Size()
	}
	if total > s.limit {
		metrics.AttachmentsRejected.WithLabelValues("too_large").Inc()
		return errors.ErrAttachmentTooLarge
	}

	s.sessions.SetDefault(sessionID, append(current, att))
	return nil
}

// List returns the pending attachments of a session, never nil.
func (s *AttachmentStore) List(sessionID string) []models.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(sessionID)
}

// Remove deletes one attachment by name.
func (s *AttachmentStore) Remove(sessionID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.list(sessionID)
	kept := make([]models.Attachment, 0, len(current))
	found := false
	for _, att := range current {
		if att.Name == name && !found {
			found = true
			continue
		}
		kept = append(kept, att)
	}
	if !found {
		return errors.NotFoundError("attachment " + name)
	}
	s.sessions.SetDefault(sessionID, kept)
	return nil
}

// Clear drops all attachments of a session. Called after a confirmed
// successful send.
func (s *AttachmentStore) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions.Delete(sessionID)
}

// TotalSize returns the decoded byte total of a session's attachments.
func (s *AttachmentStore) TotalSize(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, att := range s.list(sessionID) {
		total += att.Size()
	}
	return total
}

// list returns the session slice without locking. Callers hold s.mu.
func (s *AttachmentStore) list(sessionID string) []models.Attachment {
	value, found := s.sessions.Get(sessionID)
	if !found {
		return []models.Attachment{}
	}
	return value.([]models.Attachment)
}
