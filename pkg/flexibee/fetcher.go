package flexibee

import (
	"context"

	"go.uber.org/zap"

	"github.com/cashflowhq/ledgersync/pkg/syncerrors"
)

// PageFunc fetches one page of records at the given offset.
type PageFunc func(ctx context.Context, offset, limit int) ([]Invoice, error)

// Fetcher walks offset-based pagination until the server reports the end
// of the result set. The natural stop is an empty or short page; MaxPages
// bounds servers that keep returning full pages forever.
type Fetcher struct {
	PageSize int
	MaxPages int
	logger   *zap.Logger
}

// NewFetcher returns a fetcher with the given page geometry.
func NewFetcher(pageSize, maxPages int, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		PageSize: pageSize,
		MaxPages: maxPages,
		logger:   logger.With(zap.String("component", "fetcher")),
	}
}

// FetchAll accumulates every page. A mid-stream failure returns the error
// without partial results so the caller never reconciles a half dataset.
func (f *Fetcher) FetchAll(ctx context.Context, fetch PageFunc) ([]Invoice, error) {
	var all []Invoice

	for page := 0; page < f.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		offset := page * f.PageSize
		records, err := fetch(ctx, offset, f.PageSize)
		if err != nil {
			return nil, err
		}

		all = append(all, records...)
		f.logger.Debug("fetched page",
			zap.Int("page", page),
			zap.Int("offset", offset),
			zap.Int("records", len(records)),
			zap.Int("total", len(all)))

		if len(records) < f.PageSize {
			return all, nil
		}
	}

	return nil, syncerrors.Newf(syncerrors.ErrorTypeData,
		"pagination did not terminate within %d pages", f.MaxPages)
}
