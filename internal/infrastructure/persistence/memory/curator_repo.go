package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/curator"
	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// CuratorRepository implements curator.Repository over maps.
type CuratorRepository struct {
	mu       sync.Mutex
	curators map[shared.CuratorID]curator.Curator
	codes    map[string]curator.AccessCode
	links    map[shared.CuratorID]map[shared.TelegramID]curator.Link
}

var _ curator.Repository = (*CuratorRepository)(nil)

// NewCuratorRepository creates an empty repository.
func NewCuratorRepository() *CuratorRepository {
	return &CuratorRepository{
		curators: make(map[shared.CuratorID]curator.Curator),
		codes:    make(map[string]curator.AccessCode),
		links:    make(map[shared.CuratorID]map[shared.TelegramID]curator.Link),
	}
}

// Create stores a curator.
func (r *CuratorRepository) Create(_ context.Context, c *curator.Curator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.curators[c.ID]; ok {
		return shared.Errorf("memory", "CreateCurator", shared.ErrAlreadyExists, "curator %s already exists", c.ID)
	}
	r.curators[c.ID] = *c
	return nil
}

// GetByID returns a copy of the curator.
func (r *CuratorRepository) GetByID(_ context.Context, id shared.CuratorID) (*curator.Curator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.curators[id]
	if !ok {
		return nil, shared.ErrCuratorNotFound
	}
	return &c, nil
}

// SaveCode stores a new access code.
func (r *CuratorRepository) SaveCode(_ context.Context, code *curator.AccessCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.curators[code.CuratorID]; !ok {
		return shared.ErrCuratorNotFound
	}
	if _, ok := r.codes[code.Code]; ok {
		return shared.NewDomainError("memory", "SaveCode", shared.ErrAlreadyExists, "access code already exists")
	}
	r.codes[code.Code] = *code
	return nil
}

// RedeemCode redeems the code and upserts the link under one lock.
func (r *CuratorRepository) RedeemCode(_ context.Context, code string, by shared.TelegramID, now time.Time) (*curator.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code = curator.NormalizeCode(code)
	ac, ok := r.codes[code]
	if !ok {
		return nil, shared.ErrAccessCodeNotFound
	}

	link, err := ac.Redeem(by, now)
	if err != nil {
		return nil, err
	}
	r.codes[code] = ac

	byCurator, ok := r.links[link.CuratorID]
	if !ok {
		byCurator = make(map[shared.TelegramID]curator.Link)
		r.links[link.CuratorID] = byCurator
	}
	if prev, ok := byCurator[link.TelegramID]; ok {
		// Повторная привязка меняет только роль.
		prev.Role = link.Role
		byCurator[link.TelegramID] = prev
	} else {
		byCurator[link.TelegramID] = *link
	}
	return link, nil
}

// PurgeExpiredCodes deletes unredeemed codes that expired before the cutoff.
func (r *CuratorRepository) PurgeExpiredCodes(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k, c := range r.codes {
		if !c.IsRedeemed() && c.ExpiresAt.Before(before) {
			delete(r.codes, k)
			n++
		}
	}
	return n, nil
}

// ListLinks returns the curator's links in link order.
func (r *CuratorRepository) ListLinks(_ context.Context, id shared.CuratorID) ([]curator.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]curator.Link, 0, len(r.links[id]))
	for _, l := range r.links[id] {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LinkedAt.Equal(out[j].LinkedAt) {
			return out[i].LinkedAt.Before(out[j].LinkedAt)
		}
		return out[i].TelegramID < out[j].TelegramID
	})
	return out, nil
}
