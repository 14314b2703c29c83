package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/aster/pkg/models"
)

func TestParseSnapshotMessage(t *testing.T) {
	msg := &IncomingMessage{
		Value: []byte(`{
			"tenant_id": "tenant-1",
			"spec_key": "classicmodels",
			"relations": {
				"customers": [{"customer_number": "103", "customer_name": "Atelier graphique"}]
			},
			"captured_at": "2026-08-29T12:00:00Z"
		}`),
	}

	require.NoError(t, msg.ParseSnapshotMessage())
	assert.Equal(t, "tenant-1", msg.GetTenantID())
	assert.Equal(t, "classicmodels", msg.GetSpecKey())

	recs, err := msg.Snapshot.Relations.Relation("customers")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Atelier graphique", recs[0]["customer_name"])
}

func TestParseSnapshotMessage_MissingSpecKey(t *testing.T) {
	msg := &IncomingMessage{Value: []byte(`{"tenant_id": "tenant-1", "relations": {}}`)}

	require.Error(t, msg.ParseSnapshotMessage())
}

func TestGetTenantID_FallsBackToHeader(t *testing.T) {
	msg := &IncomingMessage{
		Value:   []byte(`{"spec_key": "classicmodels", "relations": {}}`),
		Headers: map[string]string{"tenant_id": "tenant-2"},
	}

	require.NoError(t, msg.ParseSnapshotMessage())
	assert.Equal(t, "tenant-2", msg.GetTenantID())
}

func TestNewRunEvent(t *testing.T) {
	reason := "snapshot is missing relation \"products\""
	run := &models.BuildRun{
		ID:            "run-1",
		TenantID:      "tenant-1",
		SpecKey:       "classicmodels",
		SpecVersion:   3,
		Status:        models.RunStatusFailed,
		FailureReason: &reason,
	}

	event := NewRunEvent(run)
	assert.Equal(t, "run.failed", event.EventType)
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, 3, event.SpecVersion)
	assert.Equal(t, reason, event.FailureReason)
}
