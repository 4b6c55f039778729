package tasks

import "github.com/desertthunder/plsync/internal/services"

// Batches splits items into consecutive chunks of at most size, preserving order.
//
// A non-positive size falls back to [services.MaxBatchSize]. The chunks share items' backing array.
func Batches(items []string, size int) [][]string {
	if size <= 0 {
		size = services.MaxBatchSize
	}
	if len(items) == 0 {
		return nil
	}

	batches := make([][]string, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end:end])
	}
	return batches
}
