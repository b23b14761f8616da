package entitlement

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/clearledger/gatekeeper/pkg/audit"
)

// ApplyModuleSelection transitions an organization's entitlements to the
// desired full module map. For each changed module it writes one audit event
// in the same transaction as the row change, re-derives the legacy boolean
// enabled-modules map, and invalidates the organization's cache entry before
// returning success.
func (r *Resolver) ApplyModuleSelection(ctx context.Context, orgID int64, desired map[string]ModuleSelection, actorID int64, requestID string) error {
	keys := make([]string, 0, len(desired))
	for moduleKey, sel := range desired {
		if _, ok := r.catalog.Module(moduleKey); !ok {
			return fmt.Errorf("unknown module key: %s", moduleKey)
		}
		if !sel.Status.Valid() {
			return fmt.Errorf("invalid status %q for module %s", sel.Status, moduleKey)
		}
		if sel.Status == StatusTrial && sel.TrialExpiresAt == nil {
			return fmt.Errorf("trial status for module %s requires trial_expires_at", moduleKey)
		}
		keys = append(keys, moduleKey)
	}
	sort.Strings(keys)

	tx, err := r.store.BeginTx(ctx)
	if err != nil {
		return err
	}

	legacy := make(map[string]bool, len(desired))
	for _, moduleKey := range keys {
		sel := desired[moduleKey]

		oldStatus, changed, err := r.store.UpsertEntitlementTx(ctx, tx, orgID, moduleKey, sel)
		if err != nil {
			tx.Rollback()
			return err
		}

		legacy[strings.ToUpper(moduleKey)] = sel.Status == StatusEnabled || sel.Status == StatusTrial

		if !changed {
			continue
		}

		if err := r.auditLog.RecordTx(ctx, tx, &audit.Event{
			OrganizationID: orgID,
			EventType:      audit.EventTypeEntitlementChange,
			ModuleKey:      moduleKey,
			OldStatus:      string(oldStatus),
			NewStatus:      string(sel.Status),
			ActorID:        &actorID,
			Reason:         audit.ReasonAdminUpdate,
			RequestID:      requestID,
		}); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := r.store.SetLegacyModuleMapTx(ctx, tx, orgID, legacy); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit entitlement update: %w", err)
	}

	r.cache.Invalidate(ctx, orgID)
	return nil
}

// SetSubmoduleEnabled toggles one submodule for an organization. The toggle
// is independent of the parent module's status; resolution still applies
// parent dominance at read time.
func (r *Resolver) SetSubmoduleEnabled(ctx context.Context, orgID int64, submoduleKey string, enabled bool, actorID int64, requestID string) error {
	moduleKey, ok := r.catalog.OwningModule(submoduleKey)
	if !ok {
		return fmt.Errorf("unknown submodule key: %s", submoduleKey)
	}

	if err := r.store.SetSubentitlement(ctx, orgID, submoduleKey, enabled); err != nil {
		return err
	}

	newStatus := "disabled"
	if enabled {
		newStatus = "enabled"
	}
	if err := r.auditLog.Record(ctx, &audit.Event{
		OrganizationID: orgID,
		EventType:      audit.EventTypeEntitlementChange,
		ModuleKey:      moduleKey + "." + submoduleKey,
		NewStatus:      newStatus,
		ActorID:        &actorID,
		Reason:         audit.ReasonAdminUpdate,
		RequestID:      requestID,
	}); err != nil {
		return err
	}

	r.cache.Invalidate(ctx, orgID)
	return nil
}

// MaterializeLegacyMaps rewrites the denormalized legacy enabled-modules map
// for every organization from current effective statuses. Runs periodically
// so backward-compatible readers see trial expirations without waiting for
// an administrative update.
func (r *Resolver) MaterializeLegacyMaps(ctx context.Context) error {
	orgIDs, err := r.store.ListOrganizationIDs(ctx)
	if err != nil {
		return err
	}

	for _, orgID := range orgIDs {
		snapshot, err := r.store.LoadSnapshot(ctx, orgID)
		if err != nil {
			return err
		}

		legacy := make(map[string]bool, len(snapshot.Modules))
		now := r.now()
		for moduleKey, row := range snapshot.Modules {
			legacy[strings.ToUpper(moduleKey)] = row.Effective(now).Enabled()
		}

		if err := r.store.SetLegacyModuleMap(ctx, orgID, legacy); err != nil {
			return err
		}
	}

	return nil
}
