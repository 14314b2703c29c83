package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ramsey-B/aster/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Parsed content
	Snapshot *models.SnapshotMessage
}

// ParseSnapshotMessage parses the message value as a source snapshot
func (m *IncomingMessage) ParseSnapshotMessage() error {
	var msg models.SnapshotMessage
	if err := json.Unmarshal(m.Value, &msg); err != nil {
		return err
	}
	if msg.SpecKey == "" {
		return fmt.Errorf("snapshot message is missing spec_key")
	}
	m.Snapshot = &msg
	return nil
}

// GetTenantID returns the tenant ID from the snapshot, falling back to the
// message header.
func (m *IncomingMessage) GetTenantID() string {
	if m.Snapshot != nil && m.Snapshot.TenantID != "" {
		return m.Snapshot.TenantID
	}
	return m.Headers["tenant_id"]
}

// GetSpecKey returns the model spec key the snapshot targets
func (m *IncomingMessage) GetSpecKey() string {
	if m.Snapshot != nil {
		return m.Snapshot.SpecKey
	}
	return ""
}
