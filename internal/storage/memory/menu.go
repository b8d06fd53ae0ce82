package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mkrv/cafeorder/internal/domain/menu"
)

var _ menu.Repository = (*MenuRepository)(nil)

// MenuRepository is an in-memory menu.Repository.
type MenuRepository struct {
	mu         sync.RWMutex
	categories map[string]menu.Category
	items      map[string]menu.Item
}

// NewMenuRepository creates an empty MenuRepository.
func NewMenuRepository() *MenuRepository {
	return &MenuRepository{
		categories: make(map[string]menu.Category),
		items:      make(map[string]menu.Item),
	}
}

func (r *MenuRepository) ItemByID(_ context.Context, id string) (*menu.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	it, ok := r.items[id]
	if !ok {
		return nil, menu.ErrItemNotFound
	}
	return &it, nil
}

func (r *MenuRepository) ListCategories(_ context.Context) ([]menu.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]menu.Category, 0, len(r.categories))
	for _, c := range r.categories {
		if c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *MenuRepository) ListItems(_ context.Context, categoryID string) ([]menu.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []menu.Item
	for _, it := range r.items {
		if categoryID == "" || it.CategoryID == categoryID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *MenuRepository) UpsertCategory(_ context.Context, c *menu.Category) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.categories[c.ID] = *c
	return nil
}

func (r *MenuRepository) UpsertItem(_ context.Context, it *menu.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[it.ID] = *it
	return nil
}

func (r *MenuRepository) SetAvailability(_ context.Context, itemID string, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	it, ok := r.items[itemID]
	if !ok {
		return menu.ErrItemNotFound
	}
	it.Available = available
	r.items[itemID] = it
	return nil
}
