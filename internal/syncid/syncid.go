// Package syncid defines the opaque tenant/timeline identifiers the sync
// engine keys all of its state by.
package syncid

import (
	"fmt"

	"github.com/google/uuid"
)

// ID is a 128-bit opaque identifier with a canonical lowercase-hex string
// form, used for both tenant and timeline ids.
type ID uuid.UUID

// NewID generates a fresh random ID.
func NewID() ID {
	return ID(uuid.New())
}

// ParseID parses the canonical lowercase-hex form produced by String.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("parse id %q: %w", s, err)
	}
	return ID(u), nil
}

func (id ID) String() string {
	return uuid.UUID(id).String()
}

func (id ID) IsZero() bool {
	return id == ID{}
}

// SyncID is the (tenant, timeline) pair that keys every piece of remote
// sync state: the remote index, the sync queue, and task batches.
type SyncID struct {
	TenantID   ID
	TimelineID ID
}

func New(tenantID, timelineID ID) SyncID {
	return SyncID{TenantID: tenantID, TimelineID: timelineID}
}

// String renders "tenant/timeline" in canonical lowercase hex, the same
// shape used to derive remote paths (§6).
func (s SyncID) String() string {
	return fmt.Sprintf("%s/%s", s.TenantID, s.TimelineID)
}
