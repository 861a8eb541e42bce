// Package requests implements customer requests handled by support staff:
// dedicated IP changes and reverting a contact finalize.
//
// Each (tenant, type) has at most one outstanding request. An outstanding
// revert-finalize request also acts as a gate: the lifecycle service refuses
// primary-key changes and filter deletes while one exists.
package requests
