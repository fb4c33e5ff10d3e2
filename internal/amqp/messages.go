package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Ledger event actions carried on the wire.
const (
	ActionAdded   = "added"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// LedgerEventMessage announces a transaction change. It carries only
// the transaction ID and the action; consumers that need the full row
// fetch it from the database themselves.
type LedgerEventMessage struct {
	MessageID     string    `json:"message_id"`
	TransactionID int64     `json:"transaction_id"`
	Action        string    `json:"action"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(transactionID int64, action string) *LedgerEventMessage {
	return &LedgerEventMessage{
		MessageID:     uuid.NewString(),
		TransactionID: transactionID,
		Action:        action,
		Timestamp:     time.Now(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
