package extract

import (
	"context"
	"fmt"
	"sync"

	"github.com/masmgr/harmony-go/internal/dao"
	"github.com/masmgr/harmony-go/internal/model"
)

// itemResolver gets or creates Items of one Source. Lookup and creation
// happen under one lock so concurrent workers never create the same path
// twice.
type itemResolver struct {
	dao dao.Dao
	src *model.Source

	mu    sync.Mutex
	items map[string]*model.Item
}

func newItemResolver(d dao.Dao, src *model.Source) *itemResolver {
	return &itemResolver{dao: d, src: src, items: make(map[string]*model.Item)}
}

func (r *itemResolver) resolve(ctx context.Context, path string) (*model.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if it, ok := r.items[path]; ok {
		return it, nil
	}
	it, err := r.dao.GetItem(ctx, r.src, path)
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", path, err)
	}
	if it == nil {
		it = model.NewItem(r.src, path)
		if err := r.dao.SaveItem(ctx, it); err != nil {
			return nil, err
		}
	}
	r.items[path] = it
	return it, nil
}
