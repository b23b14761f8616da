// Package permissions defines the canonical permission vocabulary and the
// normalization of legacy spellings into it.
//
// Canonical permissions are dotted strings of the form "module.action" or
// "module.submodule.action". Historical clients used underscore-joined and
// colon-joined spellings; those are folded to canonical form on every check
// so callers never have to pre-normalize. A static hierarchy table expands
// umbrella permissions into the concrete permissions they imply.
package permissions
