package ledger

import (
	"github.com/teens-space/progress-hub/internal/domain/shared"
	"github.com/teens-space/progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK
// ══════════════════════════════════════════════════════════════════════════════

// Policy - правила серии.
type Policy struct {
	// ProtectionWindowDays - сколько пропущенных дней подряд прощает щит.
	ProtectionWindowDays int
}

// DefaultPolicy - щит прощает ровно один пропущенный день.
func DefaultPolicy() Policy {
	return Policy{ProtectionWindowDays: 1}
}

func (p Policy) normalized() Policy {
	if p.ProtectionWindowDays <= 0 {
		return DefaultPolicy()
	}
	return p
}

// Streak - серия дней активности.
type Streak struct {
	// Current - текущая серия дней подряд.
	Current int `json:"current"`

	// Best - лучшая серия за всё время.
	Best int `json:"best"`

	// LastActivity - последний день с активностью, нулевая дата - активности не было.
	LastActivity timeutil.Date `json:"last_activity"`

	// Protection - активный щит, nil если щита нет.
	Protection *Protection `json:"protection,omitempty"`

	// ProtectionsUsed - сколько раз щит спас серию.
	ProtectionsUsed int `json:"protections_used"`
}

// Protection - активированный щит серии.
type Protection struct {
	ActivatedOn timeutil.Date `json:"activated_on"`
}

// IsProtected проверяет наличие активного щита.
func (s Streak) IsProtected() bool {
	return s.Protection != nil
}

// StreakOutcome - чем закончилась отметка активности.
type StreakOutcome string

const (
	StreakUnchanged StreakOutcome = "unchanged"
	StreakStarted   StreakOutcome = "started"
	StreakExtended  StreakOutcome = "extended"
	StreakProtected StreakOutcome = "protected"
	StreakReset     StreakOutcome = "reset"
)

// StreakResult - результат RecordActivity.
type StreakResult struct {
	Outcome    StreakOutcome `json:"outcome"`
	Previous   int           `json:"previous"`
	Current    int           `json:"current"`
	MissedDays int           `json:"missed_days,omitempty"`
}

// record применяет правила серии к дню today.
func (st *Streak) record(today timeutil.Date, p Policy) (StreakResult, error) {
	if today.IsZero() {
		return StreakResult{}, shared.NewDomainError("ledger", "RecordActivity", shared.ErrInvalidOperation, "activity date is required")
	}

	res := StreakResult{Previous: st.Current}

	if st.LastActivity.IsZero() {
		st.Current = 1
		st.LastActivity = today
		res.Outcome = StreakStarted
		res.Current = st.Current
		st.bumpBest()
		return res, nil
	}

	diff := st.LastActivity.DaysUntil(today)
	switch {
	case diff < 0:
		return StreakResult{}, shared.Errorf("ledger", "RecordActivity", shared.ErrInvalidOperation,
			"activity on %s is before last activity %s", today, st.LastActivity)

	case diff == 0:
		res.Outcome = StreakUnchanged
		if st.Current == 0 {
			st.Current = 1
			res.Outcome = StreakStarted
		}

	case diff == 1:
		st.Current++
		res.Outcome = StreakExtended

	default:
		missed := diff - 1
		res.MissedDays = missed
		if st.shieldCovers(today, missed, p) {
			st.Protection = nil
			st.ProtectionsUsed++
			if st.Current == 0 {
				st.Current = 1
			}
			res.Outcome = StreakProtected
		} else {
			st.Current = 1
			res.Outcome = StreakReset
		}
	}

	st.LastActivity = today
	st.bumpBest()
	res.Current = st.Current
	return res, nil
}

// shieldCovers: щит должен быть активирован до дня обнаружения пропуска,
// а пропуск не длиннее окна политики.
func (st *Streak) shieldCovers(today timeutil.Date, missed int, p Policy) bool {
	if st.Protection == nil {
		return false
	}
	if !st.Protection.ActivatedOn.Before(today) {
		return false
	}
	return missed <= p.normalized().ProtectionWindowDays
}

func (st *Streak) bumpBest() {
	if st.Current > st.Best {
		st.Best = st.Current
	}
}

// RecordActivity отмечает активность в день today.
//   - тот же день - без изменений
//   - следующий день - серия +1
//   - пропуск при активном щите - серия сохраняется, щит сгорает
//   - пропуск без щита - серия начинается заново с 1
func (s *State) RecordActivity(today timeutil.Date) (StreakResult, error) {
	res, err := s.Streak.record(today, s.Policy())
	if err != nil {
		return StreakResult{}, err
	}

	switch res.Outcome {
	case StreakStarted, StreakExtended:
		s.record(StreakChanged{
			BaseEvent: s.base(shared.EventStreakExtended),
			Previous:  res.Previous,
			Current:   res.Current,
			Best:      s.Streak.Best,
		})
	case StreakProtected:
		s.record(StreakChanged{
			BaseEvent:  s.base(shared.EventStreakProtected),
			Previous:   res.Previous,
			Current:    res.Current,
			Best:       s.Streak.Best,
			MissedDays: res.MissedDays,
		})
	case StreakReset:
		s.record(StreakChanged{
			BaseEvent:  s.base(shared.EventStreakReset),
			Previous:   res.Previous,
			Current:    res.Current,
			Best:       s.Streak.Best,
			MissedDays: res.MissedDays,
		})
	}
	return res, nil
}

// ActivateProtection включает щит серии. Второй щит поверх активного
// не ставится: shared.ErrInvalidOperation.
func (s *State) ActivateProtection(today timeutil.Date) error {
	if today.IsZero() {
		return shared.NewDomainError("ledger", "ActivateProtection", shared.ErrInvalidOperation, "activation date is required")
	}
	if s.Streak.Protection != nil {
		return shared.Errorf("ledger", "ActivateProtection", shared.ErrInvalidOperation,
			"streak shield already active since %s", s.Streak.Protection.ActivatedOn)
	}
	s.Streak.Protection = &Protection{ActivatedOn: today}
	return nil
}
