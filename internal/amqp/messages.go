package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"costmanager/internal/core"
)

// CostRecordedMessage announces a newly stored entry. It carries the whole
// entry so consumers never need to read the store back.
type CostRecordedMessage struct {
	Entry     core.CostEntry `json:"entry"`
	Timestamp time.Time      `json:"timestamp"`
}

func NewCostRecordedMessage(entry core.CostEntry) *CostRecordedMessage {
	return &CostRecordedMessage{
		Entry:     entry,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *CostRecordedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CostRecordedMessageFromJSON decodes a message and rejects one without a
// stored entry.
func CostRecordedMessageFromJSON(data []byte) (*CostRecordedMessage, error) {
	var msg CostRecordedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Entry.ID <= 0 {
		return nil, fmt.Errorf("message has no entry id")
	}
	return &msg, nil
}
