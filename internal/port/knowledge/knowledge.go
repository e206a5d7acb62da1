// Package knowledge defines the port for ranked document retrieval.
package knowledge

import "context"

// Document is one ranked retrieval hit.
type Document struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Store is the port interface for partitioned knowledge search. The
// generator queries its category's partition; the outstanding detector
// queries the confirmed-cases partition.
type Store interface {
	Search(ctx context.Context, partition, query string, limit int) ([]Document, error)
}
