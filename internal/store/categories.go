package store

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"mailsift/internal/logger"
	"mailsift/internal/metrics"
	"mailsift/internal/models"
	"mailsift/utils"

	"go.uber.org/zap"
)

var (
	ErrMissingFields = errors.New("missing name or description")
	ErrAlreadyExists = errors.New("category already exists")
)

// CategoryStore persists user-defined categories to a single JSON file.
// Names are unique (case-sensitive exact match); categories are never
// updated or deleted.
type CategoryStore struct {
	path string
	mu   sync.Mutex
}

func NewCategoryStore(path string) *CategoryStore {
	return &CategoryStore{path: path}
}

// Add validates, appends and persists a new category, returning the stored
// entry. The ID is a millisecond-timestamp string.
func (s *CategoryStore) Add(name, description string) (models.Category, error) {
	if name == "" || description == "" {
		return models.Category{}, ErrMissingFields
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	categories := s.load()
	for _, c := range categories {
		if c.Name == name {
			return models.Category{}, ErrAlreadyExists
		}
	}

	category := models.Category{
		ID:          strconv.FormatInt(time.Now().UnixMilli(), 10),
		Name:        name,
		Description: description,
	}
	categories = append(categories, category)

	start := time.Now()
	envelope := models.CategoriesFile{Version: 1, Categories: categories}
	if err := utils.SaveJSON(s.path, envelope); err != nil {
		return models.Category{}, fmt.Errorf("failed to save categories: %w", err)
	}
	metrics.RecordStoreWrite("categories", time.Since(start))

	logger.L.Info("added category", zap.String("name", name))
	return category, nil
}

// List returns every stored category, or empty on a missing or unreadable
// file.
func (s *CategoryStore) List() []models.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// load reads the file without locking. Callers hold s.mu. Accepts the
// canonical versioned envelope and the legacy bare array layout.
func (s *CategoryStore) load() []models.Category {
	if !utils.FileExists(s.path) {
		return nil
	}

	var envelope models.CategoriesFile
	if err := utils.LoadJSON(s.path, &envelope); err == nil && envelope.Categories != nil {
		return envelope.Categories
	}

	var legacy []models.Category
	if err := utils.LoadJSON(s.path, &legacy); err != nil {
		logger.L.Warn("unreadable categories file, treating as empty",
			zap.String("path", s.path), zap.Error(err))
		return nil
	}
	return legacy
}
