package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func builtInCatalog() *Catalog {
	return NewCatalog(BuiltInModules(), BuiltInSubmodules())
}

func TestCatalogModuleLookup(t *testing.T) {
	catalog := builtInCatalog()

	module, ok := catalog.Module(ModuleCRM)
	require.True(t, ok)
	assert.Equal(t, ModuleCRM, module.Key)

	_, ok = catalog.Module("nonexistent")
	assert.False(t, ok)
}

func TestCatalogOwningModule(t *testing.T) {
	catalog := builtInCatalog()

	owner, ok := catalog.OwningModule("leads")
	require.True(t, ok)
	assert.Equal(t, ModuleCRM, owner)

	owner, ok = catalog.OwningModule("payment_vouchers")
	require.True(t, ok)
	assert.Equal(t, ModuleVouchers, owner)

	_, ok = catalog.OwningModule("nonexistent")
	assert.False(t, ok)
}

func TestCatalogParentModule(t *testing.T) {
	catalog := builtInCatalog()

	// Vouchers is bundled under finance; standalone modules have no parent.
	assert.Equal(t, ModuleFinance, catalog.ParentModule(ModuleVouchers))
	assert.Equal(t, "", catalog.ParentModule(ModuleCRM))
	assert.Equal(t, "", catalog.ParentModule("nonexistent"))
}

func TestCatalogSubmodulesOf(t *testing.T) {
	catalog := builtInCatalog()

	subs := catalog.SubmodulesOf(ModuleCRM)
	assert.NotEmpty(t, subs)
	for _, sub := range subs {
		owner, ok := catalog.OwningModule(sub)
		require.True(t, ok)
		assert.Equal(t, ModuleCRM, owner)
	}
}

func TestModuleKeysCoverBuiltIns(t *testing.T) {
	catalog := builtInCatalog()
	keys := catalog.ModuleKeys()

	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		seen[key] = true
	}
	for _, module := range BuiltInModules() {
		assert.True(t, seen[module.Key], "catalog missing %s", module.Key)
	}
}

func TestExemptModuleSets(t *testing.T) {
	assert.True(t, AlwaysOnModules()[ModuleDashboard])
	assert.True(t, AlwaysOnModules()[ModuleSettings])
	assert.True(t, RBACOnlyModules()[ModuleAdmin])
	assert.True(t, RBACOnlyModules()[ModuleReports])
	assert.False(t, AlwaysOnModules()[ModuleCRM])
	assert.False(t, RBACOnlyModules()[ModuleVouchers])
}
