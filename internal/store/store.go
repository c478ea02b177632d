package store

import (
	"context"

	"github.com/pedronipalhares/imea/internal/model"
)

// Store persists normalized observations between runs so datasets can be
// rebuilt without hitting the network.
type Store interface {
	UpsertRows(ctx context.Context, rows []model.Row) error
	ListRows(ctx context.Context) ([]model.Row, error)
	UpsertQuotes(ctx context.Context, quotes []model.Quote) error
	Close() error
}

// NopStore is used when persistence is disabled.
type NopStore struct{}

func (s *NopStore) UpsertRows(ctx context.Context, rows []model.Row) error {
	_ = ctx
	_ = rows
	return nil
}

func (s *NopStore) ListRows(ctx context.Context) ([]model.Row, error) {
	_ = ctx
	return nil, nil
}

func (s *NopStore) UpsertQuotes(ctx context.Context, quotes []model.Quote) error {
	_ = ctx
	_ = quotes
	return nil
}

func (s *NopStore) Close() error {
	return nil
}
