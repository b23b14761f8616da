// Package registry holds the static catalog of billable modules and
// submodules. The catalog is the source of truth for module keys referenced
// by entitlements and role assignments; entries are additive only, since
// existing entitlement rows reference them by key.
package registry
