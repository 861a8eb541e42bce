// Package audience implements audience counting and saved segments.
//
// Counts are computed on demand against the tenant's ACTIVE contacts; a
// segment stores only its filters and its usersCount is filled in at read
// time. Segment creation is gated on the tenant having finalized its
// contacts.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package audience
