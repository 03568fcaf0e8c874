package service

import (
	"context"
	"math/rand"

	"mailprobe/internal/errors"
	"mailprobe/internal/models"
)

// TemplateStore selects the probe message template.
type TemplateStore interface {
	SelectTemplate(ctx context.Context) (*models.MessageTemplate, error)
}

type templateStore struct {
	store Storage

	// injectable for deterministic selection in tests
	randInt func(n int) int
}

func NewTemplateStore(store Storage) TemplateStore {
	return &templateStore{
		store:   store,
		randInt: rand.Intn,
	}
}

// SelectTemplate picks uniformly at random among all stored templates.
// Returns nil without error when the store is empty.
func (s *templateStore) SelectTemplate(ctx context.Context) (*models.MessageTemplate, error) {
	templates, err := s.store.ListTemplates(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseQuery, "listing templates failed")
	}
	if len(templates) == 0 {
		return nil, nil
	}
	return templates[s.randInt(len(templates))], nil
}
