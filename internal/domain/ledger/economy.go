package ledger

import (
	"encoding/json"

	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ECONOMY
// ══════════════════════════════════════════════════════════════════════════════

// Economy - опыт и валюты ученика.
type Economy struct {
	XP    int `json:"xp"`
	Coins int `json:"coins"`
	Gems  int `json:"gems"`
}

// Level вычисляется из XP: floor(xp/500)+1.
func (e Economy) Level() shared.Level {
	return shared.XP(e.XP).Level()
}

// Balance возвращает остаток по валюте.
func (e Economy) Balance(c shared.Currency) int {
	switch c {
	case shared.CurrencyCoins:
		return e.Coins
	case shared.CurrencyGems:
		return e.Gems
	default:
		return 0
	}
}

// MarshalJSON добавляет производное поле level для клиентов.
func (e Economy) MarshalJSON() ([]byte, error) {
	type plain Economy
	return json.Marshal(struct {
		plain
		Level int `json:"level"`
	}{plain(e), e.Level().Int()})
}

// UnmarshalJSON игнорирует level: он всегда пересчитывается из XP.
func (e *Economy) UnmarshalJSON(b []byte) error {
	type plain Economy
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*e = Economy(p)
	return nil
}

// AwardXP начисляет опыт. Отрицательная сумма - shared.ErrInvalidOperation.
func (s *State) AwardXP(amount int, source string) error {
	if amount < 0 {
		return shared.Errorf("ledger", "AwardXP", shared.ErrInvalidOperation, "xp amount %d is negative", amount)
	}
	if amount == 0 {
		return nil
	}

	before := s.Economy.Level()
	s.Economy.XP += amount
	after := s.Economy.Level()

	s.record(XPAwarded{
		BaseEvent: s.base(shared.EventXPAwarded),
		Amount:    amount,
		Total:     s.Economy.XP,
		Source:    source,
	})
	if after > before {
		s.record(LevelUp{
			BaseEvent: s.base(shared.EventLevelUp),
			From:      before.Int(),
			To:        after.Int(),
		})
	}
	return nil
}

// GrantCurrency начисляет монеты и гемы. Отрицательные значения запрещены.
func (s *State) GrantCurrency(coins, gems int, source string) error {
	if coins < 0 || gems < 0 {
		return shared.Errorf("ledger", "GrantCurrency", shared.ErrInvalidOperation,
			"negative grant coins=%d gems=%d", coins, gems)
	}
	if coins == 0 && gems == 0 {
		return nil
	}

	s.Economy.Coins += coins
	s.Economy.Gems += gems

	s.record(CurrencyGranted{
		BaseEvent: s.base(shared.EventCurrencyGranted),
		Coins:     coins,
		Gems:      gems,
		Source:    source,
	})
	return nil
}

// SpendCurrency списывает валюту. При нехватке возвращает
// shared.ErrInsufficientFunds и не меняет баланс.
func (s *State) SpendCurrency(kind shared.Currency, amount int, reason string) error {
	if !kind.IsValid() {
		return shared.Errorf("ledger", "SpendCurrency", shared.ErrInvalidOperation, "unknown currency %q", kind)
	}
	if amount < 0 {
		return shared.Errorf("ledger", "SpendCurrency", shared.ErrInvalidOperation, "amount %d is negative", amount)
	}

	balance := s.Economy.Balance(kind)
	if amount > balance {
		return shared.Errorf("ledger", "SpendCurrency", shared.ErrInsufficientFunds,
			"need %d %s, have %d", amount, kind, balance)
	}
	if amount == 0 {
		return nil
	}

	switch kind {
	case shared.CurrencyCoins:
		s.Economy.Coins -= amount
	case shared.CurrencyGems:
		s.Economy.Gems -= amount
	}

	s.record(CurrencySpent{
		BaseEvent: s.base(shared.EventCurrencySpent),
		Currency:  kind,
		Amount:    amount,
		Balance:   s.Economy.Balance(kind),
		Reason:    reason,
	})
	return nil
}

// applyReward начисляет награду целиком.
func (s *State) applyReward(r shared.Reward, source string) error {
	if !r.IsValid() {
		return shared.Errorf("ledger", "applyReward", shared.ErrInvalidOperation, "negative reward %+v", r)
	}
	if err := s.AwardXP(r.XP, source); err != nil {
		return err
	}
	return s.GrantCurrency(r.Coins, r.Gems, source)
}
