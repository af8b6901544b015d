package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Topics consumed by external indexers. Payload fields are stable; field
// order within the JSON object is not.
const (
	TopicWorkRegistered        = "work.registered"
	TopicWorkVerified          = "work.verified"
	TopicDisputeFiled          = "dispute.filed"
	TopicDisputeResolved       = "dispute.resolved"
	TopicVerificationRequested = "verification.requested"
	TopicVerificationCompleted = "verification.completed"
	TopicTimeoutRefund         = "payout.timeout_refund"
	TopicRefundIssued          = "payout.refund_issued"
)

// Emit writes an outbox row inside the caller's transaction so the event is
// published iff the surrounding state change commits.
func Emit(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s payload: %w", topic, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`, topic, string(body)); err != nil {
		return fmt.Errorf("events: enqueue %s: %w", topic, err)
	}
	return nil
}
