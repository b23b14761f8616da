package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	n, err := NewDefaultNormalizer()
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"legacy underscore spelling", "manage_users", "users.manage"},
		{"legacy voucher spelling", "approve_vouchers", "vouchers.approve"},
		{"colon separator folds to dot", "crm:contacts:read", "crm.contacts.read"},
		{"colon legacy spelling", "crm:manage_contacts", "crm.contacts.manage"},
		{"canonical passes through", "inventory.stock.read", "inventory.stock.read"},
		{"unknown passes through unchanged", "custom.thing.do", "custom.thing.do"},
		{"whitespace trimmed", "  users.manage  ", "users.manage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, n.Normalize(tt.input))
		})
	}
}

func TestExpandUmbrellaPermissions(t *testing.T) {
	n, err := NewDefaultNormalizer()
	require.NoError(t, err)

	granted := NewSet("users.manage")
	expanded := n.Expand(granted)

	assert.True(t, expanded.Has("users.manage"))
	assert.True(t, expanded.Has("users.create"))
	assert.True(t, expanded.Has("users.read"))
	assert.True(t, expanded.Has("users.update"))
	assert.True(t, expanded.Has("users.delete"))
	assert.False(t, expanded.Has("vouchers.approve"))
}

func TestExpandIsIdempotent(t *testing.T) {
	n, err := NewDefaultNormalizer()
	require.NoError(t, err)

	granted := NewSet("vouchers.approve", "masterdata.read")
	once := n.Expand(granted)
	twice := n.Expand(once)

	assert.Equal(t, once, twice)
}

func TestExpandIsMonotonic(t *testing.T) {
	n, err := NewDefaultNormalizer()
	require.NoError(t, err)

	small := n.Expand(NewSet("crm.manage"))
	large := n.Expand(NewSet("crm.manage", "inventory.manage"))

	for perm := range small {
		assert.True(t, large.Has(perm), "expansion dropped %s when grants grew", perm)
	}
}

func TestExpandTransitiveHierarchy(t *testing.T) {
	n, err := NewNormalizer(nil, map[string][]string{
		"a.manage": {"b.manage"},
		"b.manage": {"b.read", "b.write"},
	})
	require.NoError(t, err)

	expanded := n.Expand(NewSet("a.manage"))
	assert.True(t, expanded.Has("b.read"))
	assert.True(t, expanded.Has("b.write"))
}

func TestNewNormalizerRejectsCycles(t *testing.T) {
	_, err := NewNormalizer(nil, map[string][]string{
		"a.manage": {"b.manage"},
		"b.manage": {"a.manage"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestNormalizeThenCheckLegacyScenario(t *testing.T) {
	// A role stored with the historical spelling must satisfy a check
	// against the canonical name and vice versa.
	n, err := NewDefaultNormalizer()
	require.NoError(t, err)

	granted := NewSet(n.Normalize("manage_users"))
	expanded := n.Expand(granted)

	assert.True(t, expanded.Has(n.Normalize("users.manage")))
	assert.True(t, expanded.Has(n.Normalize("users.delete")))
}
