package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mystquest/settler/internal/domain"
)

// SettlementReport is the full, self-contained record of one settlement as
// uploaded for offline audit: the frozen inputs, the engine's result, and
// every individual payout. Re-deriving the result from Bets must reproduce
// Result exactly.
type SettlementReport struct {
	Result  domain.SettlementResult `json:"result"`
	Bets    []domain.Bet            `json:"bets"`
	Payouts []domain.Payout         `json:"payouts"`
}

// ArchiveImpl implements domain.Archiver by serializing one JSON settlement
// report per resolved market and uploading it to S3.
//
// Uploading happens after the settlement transaction has committed; a failed
// upload never rolls back a settlement, it is retried out of band.
type ArchiveImpl struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		audit:  audit,
	}
}

// ArchiveSettlement uploads the settlement report for one resolved market to
// reports/settlements/YYYY/MM/{marketID}.json, records the archival in the
// audit log, and returns the object path.
func (a *ArchiveImpl) ArchiveSettlement(ctx context.Context, res domain.SettlementResult, bets []domain.Bet, payouts []domain.Payout) (string, error) {
	report := SettlementReport{
		Result:  res,
		Bets:    bets,
		Payouts: payouts,
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(report); err != nil {
		return "", fmt.Errorf("s3blob: marshal settlement report for market %s: %w", res.MarketID, err)
	}

	path := domain.ReportPath(res)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf.Bytes()), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: upload settlement report for market %s: %w", res.MarketID, err)
	}

	if err := a.audit.Log(ctx, "archive.settlement", map[string]any{
		"path":      path,
		"market_id": res.MarketID,
		"payouts":   len(payouts),
	}); err != nil {
		return path, fmt.Errorf("s3blob: settlement report audit log: %w", err)
	}

	return path, nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
