package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/stockpoolhq/stockpool-backend/pkg/db/models"
)

// MissReason explains why a notification could not be tied to a poolable
// group. Misses are expected control flow, not errors.
type MissReason string

const (
	MissNone            MissReason = ""
	MissUnknownVariant  MissReason = "unknown_variant"
	MissUntracked       MissReason = "untracked"
	MissNoGroup         MissReason = "no_group"
	MissGroupConflicted MissReason = "group_conflicted"
)

// Resolution carries the variant and group a notification resolved to, or
// the reason resolution stopped.
type Resolution struct {
	Variant *models.Variant
	Group   *models.Group
	Miss    MissReason
}

// Resolved reports whether the notification reached a workable group.
func (r Resolution) Resolved() bool { return r.Miss == MissNone }

type groupRegistry interface {
	FindByNormalizedBarcode(ctx context.Context, barcode string) (*models.Group, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Group, error)
	Create(ctx context.Context, group *models.Group) error
	AddMember(ctx context.Context, membership *models.GroupMembership) error
	MembershipForVariant(ctx context.Context, variantID uuid.UUID) (*models.GroupMembership, error)
}

// Service resolves notifications to variants and groups, and keeps group
// membership in step with variant barcodes.
type Service interface {
	Resolve(ctx context.Context, storeID uuid.UUID, externalItemID string) (Resolution, error)
	UpsertVariant(ctx context.Context, input UpsertVariantInput) (*models.Variant, error)
}

type service struct {
	variants Repository
	groups   groupRegistry
}

// NewService builds a catalog service backed by the provided repositories.
func NewService(variants Repository, registry groupRegistry) (Service, error) {
	if variants == nil {
		return nil, fmt.Errorf("variant repository required")
	}
	if registry == nil {
		return nil, fmt.Errorf("group registry required")
	}
	return &service{variants: variants, groups: registry}, nil
}

// Resolve walks item id to variant to membership to group. Each broken link
// produces a typed miss so callers can log the exact gate that stopped them.
func (s *service) Resolve(ctx context.Context, storeID uuid.UUID, externalItemID string) (Resolution, error) {
	variant, err := s.variants.FindByStoreItem(ctx, storeID, externalItemID)
	if err != nil {
		return Resolution{}, err
	}
	if variant == nil {
		return Resolution{Miss: MissUnknownVariant}, nil
	}
	if !variant.Tracked {
		return Resolution{Variant: variant, Miss: MissUntracked}, nil
	}

	membership, err := s.groups.MembershipForVariant(ctx, variant.ID)
	if err != nil {
		return Resolution{}, err
	}
	if membership == nil {
		return Resolution{Variant: variant, Miss: MissNoGroup}, nil
	}

	group, err := s.groups.FindByID(ctx, membership.GroupID)
	if err != nil {
		return Resolution{}, err
	}
	if group == nil {
		return Resolution{Variant: variant, Miss: MissNoGroup}, nil
	}
	if group.Status == models.GroupStatusConflicted {
		return Resolution{Variant: variant, Group: group, Miss: MissGroupConflicted}, nil
	}
	return Resolution{Variant: variant, Group: group}, nil
}

// UpsertVariantInput captures one catalog row as received from a store.
type UpsertVariantInput struct {
	StoreID        uuid.UUID
	ExternalItemID string
	Barcode        string
	Tracked        bool
}

// UpsertVariant writes the variant and, when its barcode normalizes to
// something, ensures a group exists and the variant is a member. Variants
// without a usable barcode stay groupless.
func (s *service) UpsertVariant(ctx context.Context, input UpsertVariantInput) (*models.Variant, error) {
	if input.StoreID == uuid.Nil {
		return nil, fmt.Errorf("store id is required")
	}
	if input.ExternalItemID == "" {
		return nil, fmt.Errorf("external item id is required")
	}

	variant := &models.Variant{
		ID:             uuid.New(),
		StoreID:        input.StoreID,
		ExternalItemID: input.ExternalItemID,
		Barcode:        input.Barcode,
		Tracked:        input.Tracked,
	}
	normalized := NormalizeBarcode(input.Barcode)
	if normalized != "" {
		variant.NormalizedBarcode = &normalized
	}
	if err := s.variants.Upsert(ctx, variant); err != nil {
		return nil, err
	}
	stored, err := s.variants.FindByStoreItem(ctx, input.StoreID, input.ExternalItemID)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		variant = stored
	}

	if normalized == "" {
		return variant, nil
	}

	group, err := s.groups.FindByNormalizedBarcode(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if group == nil {
		group = &models.Group{
			ID:                uuid.New(),
			NormalizedBarcode: normalized,
			Status:            models.GroupStatusActive,
		}
		if err := s.groups.Create(ctx, group); err != nil {
			return nil, err
		}
	}

	membership, err := s.groups.MembershipForVariant(ctx, variant.ID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		if err := s.groups.AddMember(ctx, &models.GroupMembership{
			VariantID: variant.ID,
			GroupID:   group.ID,
		}); err != nil {
			return nil, err
		}
	}
	return variant, nil
}
