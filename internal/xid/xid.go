package xid

import "github.com/google/uuid"

// New returns a prefixed random identifier such as "sale-3f2c...".
func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
