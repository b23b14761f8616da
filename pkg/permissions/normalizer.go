package permissions

import (
	"fmt"
	"strings"
)

// Set is a set of canonical permission strings.
type Set map[string]struct{}

// NewSet builds a set from permission strings.
func NewSet(perms ...string) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports whether the set contains a permission.
func (s Set) Has(perm string) bool {
	_, ok := s[perm]
	return ok
}

// Add inserts a permission into the set.
func (s Set) Add(perm string) {
	s[perm] = struct{}{}
}

// List returns the set contents as a slice.
func (s Set) List() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}

// Normalizer folds legacy permission spellings into canonical dotted form and
// expands umbrella permissions via the hierarchy table. Both tables are fixed
// at construction; NewNormalizer rejects hierarchy cycles so expansion can
// never loop at request time.
type Normalizer struct {
	legacy    map[string]string
	hierarchy map[string][]string
}

// NewNormalizer builds a normalizer from a legacy spelling map and a
// hierarchy table. It returns an error if the hierarchy contains a cycle;
// that is a configuration defect and must fail at startup, not per request.
func NewNormalizer(legacy map[string]string, hierarchy map[string][]string) (*Normalizer, error) {
	n := &Normalizer{legacy: legacy, hierarchy: hierarchy}
	if err := n.validateHierarchy(); err != nil {
		return nil, err
	}
	return n, nil
}

// NewDefaultNormalizer builds a normalizer with the built-in tables.
func NewDefaultNormalizer() (*Normalizer, error) {
	return NewNormalizer(DefaultLegacyMap(), DefaultHierarchy())
}

// Normalize maps any raw permission string to canonical dotted form. Unknown
// inputs pass through unchanged: an unrecognized permission simply matches
// nothing a role grants, so it fails safe at the gate.
func (n *Normalizer) Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if canonical, ok := n.legacy[raw]; ok {
		return canonical
	}
	// Colon-joined spellings differ from canonical only in the separator.
	if strings.Contains(raw, ":") {
		folded := strings.ReplaceAll(raw, ":", ".")
		if canonical, ok := n.legacy[folded]; ok {
			return canonical
		}
		return folded
	}
	return raw
}

// Expand unions every permission implied by the input set, recursively.
// Expand(Expand(x)) == Expand(x) and Expand(x) is always a superset of x.
func (n *Normalizer) Expand(granted Set) Set {
	expanded := make(Set, len(granted))
	queue := make([]string, 0, len(granted))
	for p := range granted {
		queue = append(queue, p)
	}

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if expanded.Has(p) {
			continue
		}
		expanded.Add(p)
		queue = append(queue, n.hierarchy[p]...)
	}

	return expanded
}

// validateHierarchy runs a depth-first search over the hierarchy table and
// rejects cycles.
func (n *Normalizer) validateHierarchy() error {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(n.hierarchy))

	var visit func(perm string, path []string) error
	visit = func(perm string, path []string) error {
		switch state[perm] {
		case inStack:
			return fmt.Errorf("permission hierarchy cycle: %s", strings.Join(append(path, perm), " -> "))
		case done:
			return nil
		}
		state[perm] = inStack
		for _, implied := range n.hierarchy[perm] {
			if err := visit(implied, append(path, perm)); err != nil {
				return err
			}
		}
		state[perm] = done
		return nil
	}

	for perm := range n.hierarchy {
		if err := visit(perm, nil); err != nil {
			return err
		}
	}
	return nil
}

// DefaultLegacyMap returns the built-in translation of historical permission
// spellings to canonical form. The map is consulted on every check; callers
// never pre-apply it.
func DefaultLegacyMap() map[string]string {
	return map[string]string{
		// Underscore-joined verb_noun spellings from the first-generation
		// permission system.
		"manage_users":     "users.manage",
		"manage_roles":     "roles.manage",
		"manage_modules":   "admin.modules.manage",
		"view_reports":     "reports.read",
		"create_vouchers":  "vouchers.create",
		"approve_vouchers": "vouchers.approve",
		"view_dashboard":   "dashboard.read",
		"manage_inventory": "inventory.manage",
		"view_inventory":   "inventory.read",
		"manage_customers": "crm.contacts.manage",

		// Colon-joined spellings that do not fold cleanly by separator
		// replacement alone.
		"crm:manage_contacts": "crm.contacts.manage",
		"hr:run_payroll":      "hr.payroll.update",
	}
}

// DefaultHierarchy returns the built-in umbrella permission table. Keys are
// umbrella permissions; values are the concrete permissions they imply.
func DefaultHierarchy() map[string][]string {
	return map[string][]string{
		"masterdata.read": {
			"crm.contacts.read",
			"inventory.stock.read",
			"finance.ledger.read",
		},
		"crm.manage": {
			"crm.create",
			"crm.read",
			"crm.update",
			"crm.delete",
		},
		"inventory.manage": {
			"inventory.create",
			"inventory.read",
			"inventory.update",
			"inventory.delete",
		},
		"vouchers.approve": {
			"vouchers.approve.level_1",
			"vouchers.approve.level_2",
		},
		"users.manage": {
			"users.create",
			"users.read",
			"users.update",
			"users.delete",
		},
	}
}
