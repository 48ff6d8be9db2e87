package ledger

import (
	"sort"

	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// Inventory - количество предметов по их идентификатору. Нулевые счётчики удаляются.
type Inventory map[string]int

// Count возвращает количество предмета.
func (inv Inventory) Count(itemID string) int {
	return inv[itemID]
}

// IDs возвращает идентификаторы в стабильном порядке.
func (inv Inventory) IDs() []string {
	ids := make([]string, 0, len(inv))
	for id := range inv {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (inv Inventory) clone() Inventory {
	c := make(Inventory, len(inv))
	for k, v := range inv {
		c[k] = v
	}
	return c
}

// AddInventoryItem добавляет qty штук предмета.
func (s *State) AddInventoryItem(itemID string, qty int) error {
	if itemID == "" {
		return shared.NewDomainError("ledger", "AddInventoryItem", shared.ErrInvalidOperation, "item id is required")
	}
	if qty <= 0 {
		return shared.Errorf("ledger", "AddInventoryItem", shared.ErrInvalidOperation, "quantity %d must be positive", qty)
	}
	if s.Inventory == nil {
		s.Inventory = Inventory{}
	}
	s.Inventory[itemID] += qty
	return nil
}

// ConsumeInventoryItem списывает одну штуку. Пустой слот - shared.ErrInvalidOperation.
func (s *State) ConsumeInventoryItem(itemID string) error {
	n := s.Inventory.Count(itemID)
	if n <= 0 {
		return shared.Errorf("ledger", "ConsumeInventoryItem", shared.ErrInvalidOperation, "no %q in inventory", itemID)
	}
	if n == 1 {
		delete(s.Inventory, itemID)
	} else {
		s.Inventory[itemID] = n - 1
	}
	return nil
}
