package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaybase/engine/internal/clock"
	"github.com/relaybase/engine/internal/ids"
	"github.com/relaybase/engine/internal/outbox"
	"github.com/relaybase/engine/internal/pg"
)

func newEnqueueCmd() *cobra.Command {
	var topic, payload, table string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue an outbox message",
		RunE: func(cmd *cobra.Command, args []string) error {
			if topic == "" {
				return fmt.Errorf("--topic required")
			}
			db, err := pg.Open(dsnFlag)
			if err != nil {
				return err
			}
			defer db.Close()

			store := outbox.NewPostgresStore(db, schemaFlag, table, clock.System{})
			id, err := store.Enqueue(context.Background(), db, outbox.NewMessage{
				Topic:     topic,
				Payload:   payload,
				MessageID: ids.NewOutboxMessageID(),
			})
			if err != nil {
				return err
			}
			fmt.Println(id.String())
			return nil
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "Outbox message topic (required)")
	cmd.Flags().StringVarP(&payload, "payload", "p", "", "Outbox message payload")
	cmd.Flags().StringVar(&table, "table", "outbox", "Outbox table name")
	return cmd
}
