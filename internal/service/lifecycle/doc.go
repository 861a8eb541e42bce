// Package lifecycle implements the contact state machine of a tenant:
// manual and filter deletes, duplicate resolution, primary-key changes and
// finalize.
//
// Contacts are never removed; every transition flips status and records a
// typed deletion reason so it can be undone by the matching operation.
// Primary-key changes and filter deletes refuse to run while a
// revert-finalize request is outstanding.
package lifecycle
