package domain

// DedupAction is the change a deduplication pass makes to one contact.
type DedupAction string

const (
	// DedupLink keeps the contact ACTIVE and points it at the canonical
	// contact as a duplicate pending resolution.
	DedupLink DedupAction = "LINK"
	// DedupSuppress soft-deletes the contact with a PRIMARY_KEY reason.
	DedupSuppress DedupAction = "SUPPRESS"
	// DedupUnlink clears a stale link on a contact that is now canonical.
	DedupUnlink DedupAction = "UNLINK"
)

// DedupUpdate is one write produced by a deduplication plan.
type DedupUpdate struct {
	ContactID   string      `json:"contactId"`
	Action      DedupAction `json:"action"`
	CanonicalID string      `json:"canonicalId,omitempty"`
	PrimaryKey  string      `json:"primaryKey,omitempty"`
}
