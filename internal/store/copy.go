package store

import (
	"context"
	"fmt"
)

// Copy writes every document of the given collections from src to dst,
// keeping document IDs. Existing documents in dst are replaced.
func Copy(ctx context.Context, src, dst DocumentStore, collections ...string) (int, error) {
	copied := 0
	for _, collection := range collections {
		docs, err := src.Query(ctx, collection, Query{})
		if err != nil {
			return copied, fmt.Errorf("read %s: %w", collection, err)
		}
		for _, doc := range docs {
			if err := dst.Set(ctx, collection, doc.ID, doc.Data, false); err != nil {
				return copied, fmt.Errorf("write %s/%s: %w", collection, doc.ID, err)
			}
			copied++
		}
	}
	return copied, nil
}
