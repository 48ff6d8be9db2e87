package ledger

import (
	"sort"

	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// BALANCE WHEEL
// ══════════════════════════════════════════════════════════════════════════════

const (
	MinBalanceScore = 1
	MaxBalanceScore = 10
)

// BalanceKind - какой замер записывается.
type BalanceKind string

const (
	BalanceInitial BalanceKind = "initial"
	BalanceFinal   BalanceKind = "final"
)

// ParseBalanceKind разбирает "initial" или "final".
func ParseBalanceKind(s string) (BalanceKind, error) {
	switch BalanceKind(s) {
	case BalanceInitial, BalanceFinal:
		return BalanceKind(s), nil
	}
	return "", shared.Errorf("ledger", "ParseBalanceKind", shared.ErrInvalidOperation, "unknown balance kind %q", s)
}

// BalanceScores - самооценка по сферам жизни в начале и в конце курса.
type BalanceScores struct {
	Initial   map[string]int `json:"initial,omitempty"`
	InitialOn timeutil.Date  `json:"initial_on,omitempty"`
	Final     map[string]int `json:"final,omitempty"`
	FinalOn   timeutil.Date  `json:"final_on,omitempty"`
}

// HasInitial проверяет, сделан ли стартовый замер.
func (b BalanceScores) HasInitial() bool { return len(b.Initial) > 0 }

// HasFinal проверяет, сделан ли итоговый замер.
func (b BalanceScores) HasFinal() bool { return len(b.Final) > 0 }

// Delta возвращает final-initial по каждой категории, если оба замера есть.
func (b BalanceScores) Delta() (map[string]int, bool) {
	if !b.HasInitial() || !b.HasFinal() {
		return nil, false
	}
	d := make(map[string]int, len(b.Final))
	for cat, f := range b.Final {
		if i, ok := b.Initial[cat]; ok {
			d[cat] = f - i
		}
	}
	return d, true
}

// Categories возвращает категории последнего замера в стабильном порядке.
func (b BalanceScores) Categories() []string {
	src := b.Final
	if len(src) == 0 {
		src = b.Initial
	}
	cats := make([]string, 0, len(src))
	for c := range src {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return cats
}

func (b BalanceScores) clone() BalanceScores {
	c := b
	c.Initial = cloneScores(b.Initial)
	c.Final = cloneScores(b.Final)
	return c
}

func (b BalanceScores) validate() error {
	for _, set := range []map[string]int{b.Initial, b.Final} {
		for cat, v := range set {
			if cat == "" || v < MinBalanceScore || v > MaxBalanceScore {
				return shared.Errorf("ledger", "Validate", shared.ErrCorruptState, "balance score %q=%d out of range", cat, v)
			}
		}
	}
	return nil
}

func cloneScores(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	c := make(map[string]int, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// RecordBalanceScores сохраняет замер. Стартовый замер пишется один раз,
// итоговый можно перезаписать. Каждая категория обязательна, оценка 1-10.
func (s *State) RecordBalanceScores(kind BalanceKind, scores map[string]int, categories []string, today timeutil.Date) error {
	const op = "RecordBalanceScores"

	if kind != BalanceInitial && kind != BalanceFinal {
		return shared.Errorf("ledger", op, shared.ErrInvalidOperation, "unknown balance kind %q", kind)
	}
	if kind == BalanceInitial && s.Balance.HasInitial() {
		return shared.NewDomainError("ledger", op, shared.ErrInvalidOperation, "initial balance scores already recorded")
	}

	allowed := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		allowed[c] = struct{}{}
		if _, ok := scores[c]; !ok {
			return shared.Errorf("ledger", op, shared.ErrInvalidOperation, "missing score for %q", c)
		}
	}
	for c, v := range scores {
		if len(allowed) > 0 {
			if _, ok := allowed[c]; !ok {
				return shared.Errorf("ledger", op, shared.ErrInvalidOperation, "unknown category %q", c)
			}
		}
		if v < MinBalanceScore || v > MaxBalanceScore {
			return shared.Errorf("ledger", op, shared.ErrInvalidOperation, "score %q=%d must be within %d..%d",
				c, v, MinBalanceScore, MaxBalanceScore)
		}
	}
	if len(scores) == 0 {
		return shared.NewDomainError("ledger", op, shared.ErrInvalidOperation, "no scores given")
	}

	switch kind {
	case BalanceInitial:
		s.Balance.Initial = cloneScores(scores)
		s.Balance.InitialOn = today
	case BalanceFinal:
		s.Balance.Final = cloneScores(scores)
		s.Balance.FinalOn = today
	}

	s.record(BalanceRecorded{
		BaseEvent: s.base(shared.EventBalanceRecorded),
		Kind:      kind,
		Scores:    cloneScores(scores),
	})
	return nil
}
