package join

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/relaybase/engine/internal/apperr"
	"github.com/relaybase/engine/internal/ids"
	"github.com/relaybase/engine/internal/outbox"
	"github.com/relaybase/engine/internal/workqueue"
)

// WaitPayload is the JSON shape of a "join.wait" outbox message.
type WaitPayload struct {
	JoinID               string  `json:"joinId"`
	FailIfAnyStepFailed  bool    `json:"failIfAnyStepFailed"`
	OnCompleteTopic      string  `json:"onCompleteTopic,omitempty"`
	OnCompletePayload    string  `json:"onCompletePayload,omitempty"`
}

// NewWaitHandler builds the "join.wait" outbox.Handler (spec §4.4).
// Idempotent: repeated invocations on a terminal join have no effect.
func NewWaitHandler(joins Store, outboxStore outbox.Store, db workqueue.Executor) outbox.Handler {
	return func(ctx context.Context, msg outbox.Message) error {
		var payload WaitPayload
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			return fmt.Errorf("join.wait: decode payload: %w", err)
		}

		joinID, err := ids.ParseJoinID(payload.JoinID)
		if err != nil {
			return fmt.Errorf("join.wait: parse join id: %w", err)
		}

		j, err := joins.GetJoin(ctx, joinID)
		if err != nil {
			return fmt.Errorf("join.wait: get join: %w", err)
		}

		if j.Status != StatusPending {
			return nil
		}

		if j.CompletedSteps < j.ExpectedSteps {
			return apperr.ErrJoinNotReady
		}

		finalStatus := StatusCompleted
		if payload.FailIfAnyStepFailed && j.FailedSteps > 0 {
			finalStatus = StatusFailed
		}

		if _, err := joins.UpdateStatus(ctx, joinID, finalStatus); err != nil {
			return fmt.Errorf("join.wait: update status: %w", err)
		}

		if finalStatus == StatusCompleted && payload.OnCompleteTopic != "" {
			followUp := outbox.NewMessage{
				Topic:     payload.OnCompleteTopic,
				Payload:   payload.OnCompletePayload,
				MessageID: ids.NewOutboxMessageID(),
			}
			if _, err := outboxStore.Enqueue(ctx, db, followUp); err != nil {
				return fmt.Errorf("join.wait: enqueue follow-up: %w", err)
			}
		}

		return nil
	}
}
