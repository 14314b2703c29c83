package models

import (
	"time"

	"github.com/Ramsey-B/aster/pkg/records"
)

// SnapshotMessage is the payload delivered on the source-snapshots topic: a
// consistent capture of the source relations for one tenant's model, taken in
// a single extraction pass. Dimensions and facts for a run are always built
// from the same message.
type SnapshotMessage struct {
	TenantID   string           `json:"tenant_id"`
	SpecKey    string           `json:"spec_key"`
	FailFast   bool             `json:"fail_fast,omitempty"`
	Relations  records.Snapshot `json:"relations"`
	CapturedAt time.Time        `json:"captured_at"`
}
