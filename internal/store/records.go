package store

import (
	"fmt"
	"sync"
	"time"

	"mailsift/internal/logger"
	"mailsift/internal/metrics"
	"mailsift/internal/models"
	"mailsift/utils"

	"go.uber.org/zap"
)

// RecordStore persists processed email records to a single JSON file. Every
// save is a read-modify-write of the whole file; the mutex serializes writers
// within this process. Records are keyed by provider message ID and the first
// write for an ID wins.
type RecordStore struct {
	path string
	mu   sync.Mutex
}

func NewRecordStore(path string) *RecordStore {
	return &RecordStore{path: path}
}

// Save appends the records whose IDs are not already stored and rewrites the
// file. Already-present IDs are skipped untouched.
func (s *RecordStore) Save(records []models.EmailRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.load()

	seen := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		seen[r.ID] = struct{}{}
	}

	appended := 0
	for _, r := range records {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		existing = append(existing, r)
		appended++
	}

	start := time.Now()
	envelope := models.RecordsFile{Version: 1, Emails: existing}
	if err := utils.SaveJSON(s.path, envelope); err != nil {
		return fmt.Errorf("failed to save email records: %w", err)
	}
	metrics.RecordStoreWrite("records", time.Since(start))

	logger.L.Debug("saved email records",
		zap.Int("appended", appended),
		zap.Int("total", len(existing)))
	return nil
}

// All returns every stored record. A missing or unreadable file is an empty
// store, never an error.
func (s *RecordStore) All() []models.EmailRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// ByCategory returns the stored records whose category matches exactly.
func (s *RecordStore) ByCategory(category string) []models.EmailRecord {
	var filtered []models.EmailRecord
	for _, r := range s.All() {
		if r.Category == category {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// Get returns the record with the given ID.
func (s *RecordStore) Get(id string) (models.EmailRecord, bool) {
	for _, r := range s.All() {
		if r.ID == id {
			return r, true
		}
	}
	return models.EmailRecord{}, false
}

// load reads the file without locking. Callers hold s.mu. Both the canonical
// versioned envelope and the legacy bare array layout are accepted.
func (s *RecordStore) load() []models.EmailRecord {
	if !utils.FileExists(s.path) {
		return nil
	}

	var envelope models.RecordsFile
	if err := utils.LoadJSON(s.path, &envelope); err == nil && envelope.Emails != nil {
		return envelope.Emails
	}

	var legacy []models.EmailRecord
	if err := utils.LoadJSON(s.path, &legacy); err != nil {
		logger.L.Warn("unreadable records file, treating as empty",
			zap.String("path", s.path), zap.Error(err))
		return nil
	}
	return legacy
}
