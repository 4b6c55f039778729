package services

import "context"

// Page is one window of an offset-paginated listing.
type Page[T any] struct {
	Items []T
	Next  bool
}

// PageFunc fetches the page starting at offset with at most limit items.
type PageFunc[T any] func(ctx context.Context, offset, limit int) (Page[T], error)

// CollectPages calls fetch with increasing offsets until a page reports no successor
// and returns the concatenated items in order.
//
// An empty page ends the walk even if it claims a successor.
func CollectPages[T any](ctx context.Context, limit int, fetch PageFunc[T]) ([]T, error) {
	var all []T
	for offset := 0; ; offset += limit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := fetch(ctx, offset, limit)
		if err != nil {
			return nil, err
		}

		all = append(all, page.Items...)
		if !page.Next || len(page.Items) == 0 {
			return all, nil
		}
	}
}
