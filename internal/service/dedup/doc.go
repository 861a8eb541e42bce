// Package dedup implements primary-key based contact deduplication.
//
// Active contacts are grouped by their value at the tenant's primary key.
// Within a group the earliest-created contact is canonical. The next one is
// linked to it as a duplicate pending manual resolution; any further members
// are soft-deleted with a PRIMARY_KEY reason so they can be restored if the
// primary key is later removed or changed.
//
// Plan is pure. Service.MarkDuplicates loads the tenant's contacts, plans,
// and either reports the duplicate count (dry run) or writes the plan in one
// batch.
package dedup
