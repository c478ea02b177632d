package providers

import (
	"context"

	"github.com/pedronipalhares/imea/internal/model"
)

// Provider is a remote crop-statistics source. Authenticate must succeed
// before any other call; implementations attach the session token
// themselves.
type Provider interface {
	Name() string
	Authenticate(ctx context.Context) error
	ListSeasons(ctx context.Context) ([]model.Season, error)
	FetchSeries(ctx context.Context, task model.Task) ([]map[string]any, error)
	FetchQuotes(ctx context.Context, chain model.Crop) ([]map[string]any, error)
}
