package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearledger/gatekeeper/pkg/audit"
	"github.com/clearledger/gatekeeper/pkg/registry"
)

func TestApplyModuleSelectionValidation(t *testing.T) {
	resolver, _, _, _ := newTestResolver(t)
	ctx := context.Background()

	err := resolver.ApplyModuleSelection(ctx, 1, map[string]ModuleSelection{
		"bogus": {Status: StatusEnabled},
	}, 99, "req-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown module")

	err = resolver.ApplyModuleSelection(ctx, 1, map[string]ModuleSelection{
		registry.ModuleCRM: {Status: Status("broken")},
	}, 99, "req-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status")

	err = resolver.ApplyModuleSelection(ctx, 1, map[string]ModuleSelection{
		registry.ModuleCRM: {Status: StatusTrial},
	}, 99, "req-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trial_expires_at")
}

func TestApplyModuleSelectionCommitsAndInvalidates(t *testing.T) {
	resolver, cache, auditLog, mock := newTestResolver(t)
	ctx := context.Background()

	cache.Set(ctx, 1, snapshotWith(1, nil, nil))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, trial_expires_at FROM org_entitlements`).
		WithArgs(int64(1), registry.ModuleCRM).
		WillReturnRows(sqlmock.NewRows([]string{"status", "trial_expires_at"}).AddRow(string(StatusDisabled), nil))
	mock.ExpectExec(`UPDATE org_entitlements`).
		WithArgs(StatusEnabled, nil, int64(1), registry.ModuleCRM).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO org_legacy_modules`).
		WithArgs(int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := resolver.ApplyModuleSelection(ctx, 1, map[string]ModuleSelection{
		registry.ModuleCRM: {Status: StatusEnabled},
	}, 99, "req-7")
	require.NoError(t, err)

	require.Len(t, auditLog.events, 1)
	event := auditLog.events[0]
	assert.Equal(t, audit.EventTypeEntitlementChange, event.EventType)
	assert.Equal(t, string(StatusDisabled), event.OldStatus)
	assert.Equal(t, string(StatusEnabled), event.NewStatus)
	assert.Equal(t, audit.ReasonAdminUpdate, event.Reason)
	assert.Equal(t, "req-7", event.RequestID)
	require.NotNil(t, event.ActorID)
	assert.Equal(t, int64(99), *event.ActorID)

	// Cache entry dropped before success was reported.
	assert.Contains(t, cache.invalidated, int64(1))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyModuleSelectionUnchangedRowWritesNoEvent(t *testing.T) {
	resolver, _, auditLog, mock := newTestResolver(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, trial_expires_at FROM org_entitlements`).
		WithArgs(int64(1), registry.ModuleCRM).
		WillReturnRows(sqlmock.NewRows([]string{"status", "trial_expires_at"}).AddRow(string(StatusEnabled), nil))
	mock.ExpectExec(`INSERT INTO org_legacy_modules`).
		WithArgs(int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := resolver.ApplyModuleSelection(ctx, 1, map[string]ModuleSelection{
		registry.ModuleCRM: {Status: StatusEnabled},
	}, 99, "req-8")
	require.NoError(t, err)
	assert.Empty(t, auditLog.events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyModuleSelectionTrialWithExpiry(t *testing.T) {
	resolver, _, auditLog, mock := newTestResolver(t)
	ctx := context.Background()

	expiry := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, trial_expires_at FROM org_entitlements`).
		WithArgs(int64(1), registry.ModuleInventory).
		WillReturnRows(sqlmock.NewRows([]string{"status", "trial_expires_at"}).AddRow(string(StatusDisabled), nil))
	mock.ExpectExec(`UPDATE org_entitlements`).
		WithArgs(StatusTrial, &expiry, int64(1), registry.ModuleInventory).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO org_legacy_modules`).
		WithArgs(int64(1), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := resolver.ApplyModuleSelection(ctx, 1, map[string]ModuleSelection{
		registry.ModuleInventory: {Status: StatusTrial, TrialExpiresAt: &expiry},
	}, 99, "req-9")
	require.NoError(t, err)

	require.Len(t, auditLog.events, 1)
	assert.Equal(t, string(StatusTrial), auditLog.events[0].NewStatus)
	require.NoError(t, mock.ExpectationsWereMet())
}
