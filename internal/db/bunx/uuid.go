package bunx

import "github.com/google/uuid"

// NewUUIDv7 returns a time-ordered UUIDv7 string for primary keys generated by
// the application (seeded roles, permissions and departments).
//
// It panics only when the entropy source fails, in which case no row could be
// written safely anyway.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}
