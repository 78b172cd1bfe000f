package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mystquest/settler/internal/domain"
)

func newTestAuditor(t *testing.T, env *testEnv) *AuditService {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewAuditService(
		testParams(t, domain.NoWinnersToTreasury),
		env.store, betStoreView{env.store}, env.store, ledgerStoreView{env.store}, nil, logger,
	)
}

func TestAuditCleanAfterSettlement(t *testing.T) {
	env := newTestEnv(t, domain.NoWinnersToTreasury)
	ctx := context.Background()

	m := env.openMarket(t)
	env.stake(t, m.ID, "carol", "YES", 4000)
	env.stake(t, m.ID, "alice", "NO", 1000)
	env.stake(t, m.ID, "bob", "NO", 5000)
	_, err := env.svc.ResolveMarket(ctx, m.ID, "NO")
	require.NoError(t, err)

	noWinners := env.openMarket(t)
	env.stake(t, noWinners.ID, "dave", "NO", 777)
	_, err = env.svc.ResolveMarket(ctx, noWinners.ID, "YES")
	require.NoError(t, err)

	report, err := newTestAuditor(t, env).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.True(t, report.Clean(), "violations: %v", report.Violations)
}

func TestAuditCleanAfterRefundSettlement(t *testing.T) {
	env := newTestEnv(t, domain.NoWinnersRefund)
	ctx := context.Background()

	m := env.openMarket(t)
	env.stake(t, m.ID, "alice", "NO", 1000)
	_, err := env.svc.ResolveMarket(ctx, m.ID, "YES")
	require.NoError(t, err)

	require.NoError(t, newTestAuditor(t, env).VerifyMarket(ctx, m.ID))
}

func TestAuditDetectsTamperedSettlement(t *testing.T) {
	env := newTestEnv(t, domain.NoWinnersToTreasury)
	ctx := context.Background()

	m := env.openMarket(t)
	env.stake(t, m.ID, "alice", "YES", 1000)
	env.stake(t, m.ID, "bob", "NO", 1000)
	_, err := env.svc.ResolveMarket(ctx, m.ID, "YES")
	require.NoError(t, err)

	// Skim 1 unit off the fee. The split no longer sums to the fee.
	env.store.mu.Lock()
	tampered := env.store.settlements[m.ID]
	tampered.PlatformFee++
	tampered.Distributable--
	env.store.settlements[m.ID] = tampered
	env.store.mu.Unlock()

	err = newTestAuditor(t, env).VerifyMarket(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)

	report, auditErr := newTestAuditor(t, env).Run(ctx)
	require.NoError(t, auditErr)
	assert.False(t, report.Clean())
	assert.Len(t, report.Violations, 1)
}

func TestAuditDetectsMissingLedgerEntry(t *testing.T) {
	env := newTestEnv(t, domain.NoWinnersToTreasury)
	ctx := context.Background()

	m := env.openMarket(t)
	env.stake(t, m.ID, "alice", "YES", 1000)
	env.stake(t, m.ID, "bob", "NO", 1000)
	_, err := env.svc.ResolveMarket(ctx, m.ID, "YES")
	require.NoError(t, err)

	// Drop the payout ledger entry; credits no longer balance stakes.
	env.store.mu.Lock()
	entries := env.store.ledger[m.ID]
	kept := entries[:0]
	for _, e := range entries {
		if e.Kind != domain.LedgerPayout {
			kept = append(kept, e)
		}
	}
	env.store.ledger[m.ID] = kept
	env.store.mu.Unlock()

	err = newTestAuditor(t, env).VerifyMarket(ctx, m.ID)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
}

func TestAuditReportTimestamps(t *testing.T) {
	env := newTestEnv(t, domain.NoWinnersToTreasury)

	before := time.Now().UTC()
	report, err := newTestAuditor(t, env).Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.Checked)
	assert.False(t, report.StartedAt.Before(before))
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}
