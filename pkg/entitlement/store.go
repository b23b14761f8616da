package entitlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Store handles entitlement persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new entitlement store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetEntitlement retrieves one (organization, module) row. Returns nil
// without error when no row exists, since absence triggers lazy creation.
func (s *Store) GetEntitlement(ctx context.Context, orgID int64, moduleKey string) (*OrgEntitlement, error) {
	query := `
		SELECT id, organization_id, module_key, status, trial_expires_at, created_at, updated_at
		FROM org_entitlements
		WHERE organization_id = $1 AND module_key = $2
	`

	var e OrgEntitlement
	var trialExpiresAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, orgID, moduleKey).Scan(
		&e.ID,
		&e.OrganizationID,
		&e.ModuleKey,
		&e.Status,
		&trialExpiresAt,
		&e.CreatedAt,
		&e.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}

	if trialExpiresAt.Valid {
		t := trialExpiresAt.Time
		e.TrialExpiresAt = &t
	}

	return &e, nil
}

// ListEntitlements returns all entitlement rows for an organization.
func (s *Store) ListEntitlements(ctx context.Context, orgID int64) ([]OrgEntitlement, error) {
	query := `
		SELECT id, organization_id, module_key, status, trial_expires_at, created_at, updated_at
		FROM org_entitlements
		WHERE organization_id = $1
		ORDER BY module_key ASC
	`

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entitlements: %w", err)
	}
	defer rows.Close()

	var entitlements []OrgEntitlement
	for rows.Next() {
		var e OrgEntitlement
		var trialExpiresAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.ModuleKey, &e.Status, &trialExpiresAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entitlement: %w", err)
		}
		if trialExpiresAt.Valid {
			t := trialExpiresAt.Time
			e.TrialExpiresAt = &t
		}
		entitlements = append(entitlements, e)
	}

	return entitlements, rows.Err()
}

// CreateEntitlement inserts a row if none exists yet. Returns false when a
// concurrent request already created the row; the caller re-reads in that
// case rather than failing.
func (s *Store) CreateEntitlement(ctx context.Context, e *OrgEntitlement) (bool, error) {
	query := `
		INSERT INTO org_entitlements (organization_id, module_key, status, trial_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (organization_id, module_key) DO NOTHING
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		e.OrganizationID,
		e.ModuleKey,
		e.Status,
		e.TrialExpiresAt,
		now,
		now,
	).Scan(&e.ID)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create entitlement: %w", err)
	}

	e.CreatedAt = now
	e.UpdatedAt = now
	return true, nil
}

// UpsertEntitlementTx transitions a row to the desired status within an
// existing transaction, returning the previous status. changed is false when
// the row already carried the desired state.
func (s *Store) UpsertEntitlementTx(ctx context.Context, tx *sql.Tx, orgID int64, moduleKey string, sel ModuleSelection) (oldStatus Status, changed bool, err error) {
	var current Status
	var currentExpiry sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT status, trial_expires_at FROM org_entitlements
		WHERE organization_id = $1 AND module_key = $2
		FOR UPDATE
	`, orgID, moduleKey).Scan(&current, &currentExpiry)

	if err == sql.ErrNoRows {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO org_entitlements (organization_id, module_key, status, trial_expires_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NOW(), NOW())
		`, orgID, moduleKey, sel.Status, sel.TrialExpiresAt)
		if err != nil {
			return "", false, fmt.Errorf("failed to insert entitlement: %w", err)
		}
		return "", true, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to lock entitlement: %w", err)
	}

	sameExpiry := (sel.TrialExpiresAt == nil && !currentExpiry.Valid) ||
		(sel.TrialExpiresAt != nil && currentExpiry.Valid && sel.TrialExpiresAt.Equal(currentExpiry.Time))
	if current == sel.Status && sameExpiry {
		return current, false, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE org_entitlements
		SET status = $1, trial_expires_at = $2, updated_at = NOW()
		WHERE organization_id = $3 AND module_key = $4
	`, sel.Status, sel.TrialExpiresAt, orgID, moduleKey)
	if err != nil {
		return "", false, fmt.Errorf("failed to update entitlement: %w", err)
	}

	return current, true, nil
}

// ListSubentitlements returns all submodule rows for an organization.
func (s *Store) ListSubentitlements(ctx context.Context, orgID int64) ([]OrgSubentitlement, error) {
	query := `
		SELECT id, organization_id, submodule_key, enabled, created_at, updated_at
		FROM org_subentitlements
		WHERE organization_id = $1
		ORDER BY submodule_key ASC
	`

	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subentitlements: %w", err)
	}
	defer rows.Close()

	var subs []OrgSubentitlement
	for rows.Next() {
		var sub OrgSubentitlement
		if err := rows.Scan(&sub.ID, &sub.OrganizationID, &sub.SubmoduleKey, &sub.Enabled, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan subentitlement: %w", err)
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// SetSubentitlement upserts a submodule toggle for an organization.
func (s *Store) SetSubentitlement(ctx context.Context, orgID int64, submoduleKey string, enabled bool) error {
	query := `
		INSERT INTO org_subentitlements (organization_id, submodule_key, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (organization_id, submodule_key)
		DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = NOW()
	`

	if _, err := s.db.ExecContext(ctx, query, orgID, submoduleKey, enabled); err != nil {
		return fmt.Errorf("failed to set subentitlement: %w", err)
	}
	return nil
}

// GetLegacyModuleMap reads the organization's legacy boolean enabled-modules
// map. Keys are uppercased module keys. An absent row yields an empty map.
func (s *Store) GetLegacyModuleMap(ctx context.Context, orgID int64) (map[string]bool, error) {
	query := `SELECT enabled_modules FROM org_legacy_modules WHERE organization_id = $1`

	var raw []byte
	err := s.db.QueryRowContext(ctx, query, orgID).Scan(&raw)
	if err == sql.ErrNoRows {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get legacy module map: %w", err)
	}

	legacy := make(map[string]bool)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return nil, fmt.Errorf("failed to unmarshal legacy module map: %w", err)
		}
	}
	return legacy, nil
}

// SetLegacyModuleMapTx rewrites the legacy boolean map within an existing
// transaction, keeping it consistent with the entitlement rows it mirrors.
func (s *Store) SetLegacyModuleMapTx(ctx context.Context, tx *sql.Tx, orgID int64, modules map[string]bool) error {
	data, err := json.Marshal(modules)
	if err != nil {
		return fmt.Errorf("failed to marshal legacy module map: %w", err)
	}

	query := `
		INSERT INTO org_legacy_modules (organization_id, enabled_modules, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (organization_id)
		DO UPDATE SET enabled_modules = EXCLUDED.enabled_modules, updated_at = NOW()
	`

	if _, err := tx.ExecContext(ctx, query, orgID, data); err != nil {
		return fmt.Errorf("failed to set legacy module map: %w", err)
	}
	return nil
}

// SetLegacyModuleMap rewrites the legacy boolean map outside a transaction.
// Used by the periodic snapshot materializer.
func (s *Store) SetLegacyModuleMap(ctx context.Context, orgID int64, modules map[string]bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	if err := s.SetLegacyModuleMapTx(ctx, tx, orgID, modules); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ListOrganizationIDs returns every organization that has entitlement rows.
// Used by the snapshot materializer job.
func (s *Store) ListOrganizationIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT organization_id FROM org_entitlements ORDER BY organization_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan organization id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadSnapshot reads all entitlement state for an organization into a
// snapshot.
func (s *Store) LoadSnapshot(ctx context.Context, orgID int64) (*Snapshot, error) {
	entitlements, err := s.ListEntitlements(ctx, orgID)
	if err != nil {
		return nil, err
	}
	subentitlements, err := s.ListSubentitlements(ctx, orgID)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		OrganizationID: orgID,
		Modules:        make(map[string]OrgEntitlement, len(entitlements)),
		Submodules:     make(map[string]bool, len(subentitlements)),
		LoadedAt:       time.Now(),
	}
	for _, e := range entitlements {
		snapshot.Modules[e.ModuleKey] = e
	}
	for _, sub := range subentitlements {
		snapshot.Submodules[sub.SubmoduleKey] = sub.Enabled
	}

	return snapshot, nil
}

// BeginTx starts a transaction for multi-row administrative updates.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	return tx, nil
}
