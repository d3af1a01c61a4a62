package source

import "context"

// ImageItem is one X-ray image offered by a source for batch classification.
type ImageItem struct {
	SourceID    string // Unique ID within the source
	Filename    string
	LocalPath   string
	Format      string // jpg, png, ...
	ContentType string
	UserName    string // optional submitter recorded with the prediction
	UserEmail   string
}

// Source is a cursor-paginated supply of images.
type Source interface {
	// GetSourceID returns the unique identifier for this source.
	GetSourceID() string

	// GetDisplayName returns a human-readable name for this source.
	GetDisplayName() string

	// FetchBatch fetches a batch of items starting from the given cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - cursor: pagination cursor or empty for first page.
	//   - limit: maximum number of items to fetch.
	// Returns:
	//   - items: batch of image items.
	//   - nextCursor: cursor for the next batch or empty if done.
	//   - err: non-nil if fetching fails.
	FetchBatch(ctx context.Context, cursor string, limit int) (items []ImageItem, nextCursor string, err error)
}
