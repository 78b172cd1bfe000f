package domain

import (
	"context"
	"fmt"
	"io"
)

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader downloads objects from blob storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// ReportPath is the blob key a settlement's archived report lives at,
// partitioned by the year and month of resolution.
//
//	reports/settlements/2025/01/mkt-42.json
func ReportPath(res SettlementResult) string {
	return fmt.Sprintf("reports/settlements/%s/%s.json",
		res.ResolvedAt.Format("2006/01"), res.MarketID)
}

// Archiver uploads per-market settlement reports for offline audit.
type Archiver interface {
	// ArchiveSettlement writes the full settlement report (inputs, result,
	// per-bet payouts) for one resolved market and returns the object path.
	ArchiveSettlement(ctx context.Context, res SettlementResult, bets []Bet, payouts []Payout) (string, error)
}
