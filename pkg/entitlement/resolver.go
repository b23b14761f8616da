package entitlement

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/clearledger/gatekeeper/pkg/audit"
	"github.com/clearledger/gatekeeper/pkg/registry"
)

// Resolver computes the effective entitlement status of modules and
// submodules for an organization at request time.
type Resolver struct {
	store    *Store
	cache    Cache
	catalog  *registry.Catalog
	auditLog audit.TxLogger
	now      func() time.Time
	log      *logrus.Logger
}

// NewResolver creates an entitlement resolver.
func NewResolver(store *Store, cache Cache, catalog *registry.Catalog, auditLog audit.TxLogger, log *logrus.Logger) *Resolver {
	return &Resolver{
		store:    store,
		cache:    cache,
		catalog:  catalog,
		auditLog: auditLog,
		now:      time.Now,
		log:      log,
	}
}

// ResolveModule computes the effective status of a module for an
// organization. Always-on and RBAC-only modules bypass resolution and report
// enabled. A missing entitlement row is created lazily from the legacy
// enabled-modules map or from parent-bundle inheritance; the auto-creation is
// recorded as an audit event. Trial expiry is computed against the stored
// timestamp, never written back: an expired trial reads as disabled while the
// row keeps its trial status.
func (r *Resolver) ResolveModule(ctx context.Context, orgID int64, moduleKey string) (ModuleStatus, error) {
	if registry.AlwaysOnModules()[moduleKey] || registry.RBACOnlyModules()[moduleKey] {
		return ModuleStatus{ModuleKey: moduleKey, Status: EffectiveEnabled}, nil
	}

	snapshot, err := r.snapshot(ctx, orgID)
	if err != nil {
		return ModuleStatus{}, err
	}

	row, ok := snapshot.Modules[moduleKey]
	if !ok {
		row, err = r.autoCreate(ctx, orgID, moduleKey)
		if err != nil {
			return ModuleStatus{}, err
		}
	}

	return ModuleStatus{
		ModuleKey:      moduleKey,
		Status:         row.Effective(r.now()),
		TrialExpiresAt: row.TrialExpiresAt,
	}, nil
}

// ResolveSubmodule computes whether a submodule is effectively enabled. A
// submodule can never be enabled when its owning module is not: the parent
// verdict dominates regardless of any stored subentitlement row. With the
// parent enabled, an absent row defaults to enabled.
func (r *Resolver) ResolveSubmodule(ctx context.Context, orgID int64, submoduleKey string) (bool, error) {
	moduleKey, ok := r.catalog.OwningModule(submoduleKey)
	if !ok {
		r.log.WithField("submodule_key", submoduleKey).Warn("submodule not in catalog")
		return false, nil
	}

	moduleStatus, err := r.ResolveModule(ctx, orgID, moduleKey)
	if err != nil {
		return false, err
	}
	if !moduleStatus.Status.Enabled() {
		return false, nil
	}

	snapshot, err := r.snapshot(ctx, orgID)
	if err != nil {
		return false, err
	}
	if enabled, present := snapshot.Submodules[submoduleKey]; present {
		return enabled, nil
	}
	return true, nil
}

// EffectiveEntitlements resolves the full catalog for an organization. Used
// by menu-rendering collaborators to show, hide, or gray out features.
func (r *Resolver) EffectiveEntitlements(ctx context.Context, orgID int64) (*EffectiveEntitlements, error) {
	result := &EffectiveEntitlements{
		OrganizationID: orgID,
		Modules:        make(map[string]ModuleStatus),
		Submodules:     make(map[string]bool),
	}

	for _, moduleKey := range r.catalog.ModuleKeys() {
		status, err := r.ResolveModule(ctx, orgID, moduleKey)
		if err != nil {
			return nil, err
		}
		result.Modules[moduleKey] = status

		for _, submoduleKey := range r.catalog.SubmodulesOf(moduleKey) {
			enabled, err := r.ResolveSubmodule(ctx, orgID, submoduleKey)
			if err != nil {
				return nil, err
			}
			result.Submodules[submoduleKey] = enabled
		}
	}

	return result, nil
}

// snapshot returns the organization's cached entitlement snapshot, loading
// and caching it on a miss.
func (r *Resolver) snapshot(ctx context.Context, orgID int64) (*Snapshot, error) {
	if cached, ok := r.cache.Get(ctx, orgID); ok {
		return cached, nil
	}

	snapshot, err := r.store.LoadSnapshot(ctx, orgID)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, orgID, snapshot)
	return snapshot, nil
}

// autoCreate materializes a missing entitlement row. Initial status comes
// from the legacy enabled-modules map (uppercased key), or from the parent
// module when this module is a child bundle. The write is recorded as an
// auto_migration audit event and the cache entry is dropped so the next
// snapshot includes the new row.
func (r *Resolver) autoCreate(ctx context.Context, orgID int64, moduleKey string) (OrgEntitlement, error) {
	legacy, err := r.store.GetLegacyModuleMap(ctx, orgID)
	if err != nil {
		return OrgEntitlement{}, err
	}

	sel := ModuleSelection{Status: StatusDisabled}
	if legacy[strings.ToUpper(moduleKey)] {
		sel.Status = StatusEnabled
	} else if parentKey := r.catalog.ParentModule(moduleKey); parentKey != "" {
		parentStatus, err := r.ResolveModule(ctx, orgID, parentKey)
		if err != nil {
			return OrgEntitlement{}, err
		}
		switch parentStatus.Status {
		case EffectiveEnabled:
			sel.Status = StatusEnabled
		case EffectiveTrialActive:
			sel.Status = StatusTrial
			sel.TrialExpiresAt = parentStatus.TrialExpiresAt
		}
	}

	row := OrgEntitlement{
		OrganizationID: orgID,
		ModuleKey:      moduleKey,
		Status:         sel.Status,
		TrialExpiresAt: sel.TrialExpiresAt,
	}

	created, err := r.store.CreateEntitlement(ctx, &row)
	if err != nil {
		return OrgEntitlement{}, err
	}
	if !created {
		// Lost the creation race; the winner's row is authoritative.
		existing, err := r.store.GetEntitlement(ctx, orgID, moduleKey)
		if err != nil {
			return OrgEntitlement{}, err
		}
		if existing != nil {
			return *existing, nil
		}
		return row, nil
	}

	if err := r.auditLog.Record(ctx, &audit.Event{
		OrganizationID: orgID,
		EventType:      audit.EventTypeEntitlementAutoMigration,
		ModuleKey:      moduleKey,
		NewStatus:      string(sel.Status),
		Reason:         audit.ReasonAutoMigration,
	}); err != nil {
		return OrgEntitlement{}, err
	}

	r.cache.Invalidate(ctx, orgID)
	return row, nil
}
