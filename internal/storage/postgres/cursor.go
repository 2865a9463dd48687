package postgres

import "context"

// CursorStore adapts a named row of indexer_cursor to the driver cursor
// interface, so live and backfill runs keep independent positions.
type CursorStore struct {
	store *Store
	name  string
}

func NewCursorStore(store *Store, name string) *CursorStore {
	return &CursorStore{store: store, name: name}
}

func (c *CursorStore) Load(ctx context.Context) (uint64, bool, error) {
	return c.store.LoadCursor(ctx, c.name)
}

func (c *CursorStore) Save(ctx context.Context, block uint64) error {
	return c.store.SaveCursor(ctx, c.name, block)
}
