package amqp

import (
	"encoding/json"
	"time"
)

// TableSyncMessage announces that a stored table reached a new version.
// The worker reads the table itself; the message only carries the key.
type TableSyncMessage struct {
	Table     string    `json:"table"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func NewTableSyncMessage(table string, version int64) *TableSyncMessage {
	return &TableSyncMessage{
		Table:     table,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TableSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TableSyncMessageFromJSON parses a message body.
func TableSyncMessageFromJSON(data []byte) (*TableSyncMessage, error) {
	var msg TableSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
