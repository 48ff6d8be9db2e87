package command

import (
	"context"
	"fmt"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SHOP COMMANDS
// Buying spends the price and adds the item in one state mutation.
// Using applies the item effect and consumes one unit.
// ══════════════════════════════════════════════════════════════════════════════

// ItemCommand contains the data for buying or using an item.
type ItemCommand struct {
	// TelegramID identifies the learner.
	TelegramID shared.TelegramID

	// ItemID is the catalog item id.
	ItemID string

	// Date is the action day (defaults to today in the configured zone).
	Date timeutil.Date
}

// Validate validates the command.
func (c ItemCommand) Validate() error {
	if err := requireTelegramID("shop", c.TelegramID); err != nil {
		return err
	}
	if c.ItemID == "" {
		return shared.NewDomainError("shop", "Validate", shared.ErrInvalidInput, "item_id is required")
	}
	return nil
}

// ItemResult contains the result of a shop operation.
type ItemResult struct {
	// Item is the catalog entry.
	Item ledger.ItemDef

	// Count is the inventory count after the operation.
	Count int

	// State is the committed state.
	State *ledger.State

	// Events contains domain events generated.
	Events []shared.Event
}

// ShopHandler handles purchases and item usage.
type ShopHandler struct {
	deps LedgerDeps

	// shieldEnabled gates the streak_shield effect.
	shieldEnabled func() bool
}

// NewShopHandler creates a new ShopHandler. shieldEnabled may be nil.
func NewShopHandler(deps LedgerDeps, shieldEnabled func() bool) *ShopHandler {
	if shieldEnabled == nil {
		shieldEnabled = func() bool { return true }
	}
	return &ShopHandler{deps: deps.withDefaults(), shieldEnabled: shieldEnabled}
}

// Purchase buys one unit of the item.
func (h *ShopHandler) Purchase(ctx context.Context, cmd ItemCommand) (*ItemResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	item, err := h.item(cmd.ItemID)
	if err != nil {
		return nil, err
	}

	today := h.deps.today(cmd.Date)
	state, events, err := h.deps.update(ctx, "purchase", cmd.TelegramID, today, func(s *ledger.State) error {
		return s.BuyItem(item, today, h.deps.Catalog)
	})
	if err != nil {
		return nil, fmt.Errorf("purchase: %w", err)
	}

	return &ItemResult{Item: item, Count: state.Inventory.Count(item.ID), State: state, Events: events}, nil
}

// Use applies the item effect and consumes one unit.
func (h *ShopHandler) Use(ctx context.Context, cmd ItemCommand) (*ItemResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	item, err := h.item(cmd.ItemID)
	if err != nil {
		return nil, err
	}
	if item.Effect == ledger.EffectStreakShield && !h.shieldEnabled() {
		return nil, shared.NewDomainError("use_item", "Handle", shared.ErrForbidden, "streak shield is disabled")
	}

	today := h.deps.today(cmd.Date)
	state, events, err := h.deps.update(ctx, "use_item", cmd.TelegramID, today, func(s *ledger.State) error {
		return s.UseItem(item, today)
	})
	if err != nil {
		return nil, fmt.Errorf("use_item: %w", err)
	}

	return &ItemResult{Item: item, Count: state.Inventory.Count(item.ID), State: state, Events: events}, nil
}

func (h *ShopHandler) item(id string) (ledger.ItemDef, error) {
	item, ok := h.deps.Catalog.Item(id)
	if !ok {
		return ledger.ItemDef{}, shared.WrapError("shop", "Item", shared.ErrNotFound,
			fmt.Sprintf("item %q not found", id), shared.ErrItemNotFound)
	}
	return item, nil
}
