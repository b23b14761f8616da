package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store handles catalog persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new registry store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateModule inserts a module. Existing keys are left untouched so the seed
// can run on every startup.
func (s *Store) CreateModule(ctx context.Context, module *Module) error {
	query := `
		INSERT INTO modules (key, display_name, description, parent_key, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO NOTHING
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		module.Key,
		module.DisplayName,
		module.Description,
		module.ParentKey,
		module.IsActive,
		now,
		now,
	).Scan(&module.ID)

	if err == sql.ErrNoRows {
		// Already seeded.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create module: %w", err)
	}

	module.CreatedAt = now
	module.UpdatedAt = now
	return nil
}

// CreateSubmodule inserts a submodule, skipping existing keys.
func (s *Store) CreateSubmodule(ctx context.Context, submodule *Submodule) error {
	query := `
		INSERT INTO submodules (module_key, key, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (module_key, key) DO NOTHING
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		submodule.ModuleKey,
		submodule.Key,
		submodule.DisplayName,
		now,
		now,
	).Scan(&submodule.ID)

	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create submodule: %w", err)
	}

	submodule.CreatedAt = now
	submodule.UpdatedAt = now
	return nil
}

// ListModules returns all modules.
func (s *Store) ListModules(ctx context.Context) ([]Module, error) {
	query := `
		SELECT id, key, display_name, description, parent_key, is_active, created_at, updated_at
		FROM modules
		ORDER BY key ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	defer rows.Close()

	var modules []Module
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.Key, &m.DisplayName, &m.Description, &m.ParentKey, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		modules = append(modules, m)
	}

	return modules, rows.Err()
}

// ListSubmodules returns all submodules.
func (s *Store) ListSubmodules(ctx context.Context) ([]Submodule, error) {
	query := `
		SELECT id, module_key, key, display_name, created_at, updated_at
		FROM submodules
		ORDER BY module_key ASC, key ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list submodules: %w", err)
	}
	defer rows.Close()

	var submodules []Submodule
	for rows.Next() {
		var sm Submodule
		if err := rows.Scan(&sm.ID, &sm.ModuleKey, &sm.Key, &sm.DisplayName, &sm.CreatedAt, &sm.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan submodule: %w", err)
		}
		submodules = append(submodules, sm)
	}

	return submodules, rows.Err()
}

// LoadCatalog reads the full catalog into memory.
func (s *Store) LoadCatalog(ctx context.Context) (*Catalog, error) {
	modules, err := s.ListModules(ctx)
	if err != nil {
		return nil, err
	}
	submodules, err := s.ListSubmodules(ctx)
	if err != nil {
		return nil, err
	}
	return NewCatalog(modules, submodules), nil
}

// SeedBuiltInCatalog inserts the built-in modules and submodules if missing.
func (s *Store) SeedBuiltInCatalog(ctx context.Context) error {
	for _, m := range BuiltInModules() {
		if err := s.CreateModule(ctx, &m); err != nil {
			return fmt.Errorf("failed to seed module %s: %w", m.Key, err)
		}
	}
	for _, sm := range BuiltInSubmodules() {
		if err := s.CreateSubmodule(ctx, &sm); err != nil {
			return fmt.Errorf("failed to seed submodule %s.%s: %w", sm.ModuleKey, sm.Key, err)
		}
	}
	return nil
}
