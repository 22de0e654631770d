package provider

import (
	"context"
)

// Level is one observed inventory level at a provider location.
type Level struct {
	ItemID     string `json:"item_id"`
	LocationID string `json:"location_id"`
	Available  int    `json:"available"`
	OnHand     int    `json:"on_hand"`
}

// Client is the per-store capability surface the pool engine depends on. The
// implementation owns transient-failure retries; callers see only the final
// outcome.
type Client interface {
	// ReadLevels returns current levels for the requested items. Items the
	// provider does not know are simply absent from the result.
	ReadLevels(ctx context.Context, itemIDs []string) ([]Level, error)
	// WriteDelta applies an available-quantity change. Safe to call with
	// delta=0, which is a no-op.
	WriteDelta(ctx context.Context, itemID, locationID string, delta int) error
	// WriteAbsolute sets the available quantity outright.
	WriteAbsolute(ctx context.Context, itemID, locationID string, value int) error
}

// Credentials identify one store's external inventory system.
type Credentials struct {
	BaseURL     string
	AccessToken string
}

// Factory builds a capability client for a store's credentials.
type Factory interface {
	ForStore(creds Credentials) Client
}
