package stores

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/stockpoolhq/stockpool-backend/pkg/db/models"
	pkgerrors "github.com/stockpoolhq/stockpool-backend/pkg/errors"
)

// RegisterStoreInput captures the configuration for linking one store.
type RegisterStoreInput struct {
	Name            string
	SourceDomain    string
	SafetyBuffer    int
	ProviderBaseURL string
	ProviderToken   string
}

// Service exposes store configuration operations.
type Service interface {
	Register(ctx context.Context, input RegisterStoreInput) (*models.Store, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
	GetBySourceDomain(ctx context.Context, domain string) (*models.Store, error)
	List(ctx context.Context) ([]models.Store, error)
	AdoptSyncLocation(ctx context.Context, storeID uuid.UUID, locationID string) error
	SetEnabled(ctx context.Context, storeID uuid.UUID, enabled bool) error
	SetSafetyBuffer(ctx context.Context, storeID uuid.UUID, buffer int) error
}

type service struct {
	repo Repository
}

// NewService builds a store service backed by the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("store repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Register(ctx context.Context, input RegisterStoreInput) (*models.Store, error) {
	domain := strings.ToLower(strings.TrimSpace(input.SourceDomain))
	if domain == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source domain is required")
	}
	if input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "store name is required")
	}
	if input.SafetyBuffer < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "safety buffer must not be negative")
	}
	if input.ProviderBaseURL == "" || input.ProviderToken == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider credentials are required")
	}

	existing, err := s.repo.FindBySourceDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "store already registered for domain")
	}

	store := &models.Store{
		ID:              uuid.New(),
		Name:            input.Name,
		SourceDomain:    domain,
		Enabled:         true,
		SafetyBuffer:    input.SafetyBuffer,
		ProviderBaseURL: input.ProviderBaseURL,
		ProviderToken:   input.ProviderToken,
	}
	if err := s.repo.Create(ctx, store); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	store, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
	}
	return store, nil
}

func (s *service) GetBySourceDomain(ctx context.Context, domain string) (*models.Store, error) {
	return s.repo.FindBySourceDomain(ctx, strings.ToLower(strings.TrimSpace(domain)))
}

func (s *service) List(ctx context.Context) ([]models.Store, error) {
	return s.repo.List(ctx)
}

func (s *service) AdoptSyncLocation(ctx context.Context, storeID uuid.UUID, locationID string) error {
	if locationID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "location id is required")
	}
	return s.repo.AdoptSyncLocation(ctx, storeID, locationID)
}

func (s *service) SetEnabled(ctx context.Context, storeID uuid.UUID, enabled bool) error {
	return s.repo.SetEnabled(ctx, storeID, enabled)
}

func (s *service) SetSafetyBuffer(ctx context.Context, storeID uuid.UUID, buffer int) error {
	if buffer < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "safety buffer must not be negative")
	}
	return s.repo.SetSafetyBuffer(ctx, storeID, buffer)
}
