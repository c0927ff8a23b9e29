package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newTimerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Manage one-shot timers",
	}
	cmd.AddCommand(newTimerScheduleCmd())
	cmd.AddCommand(newTimerCancelCmd())
	return cmd
}

func newTimerScheduleCmd() *cobra.Command {
	var topic, payload, dueIn string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a one-shot timer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if topic == "" || dueIn == "" {
				return fmt.Errorf("--topic and --due-in are required")
			}
			delay, err := time.ParseDuration(dueIn)
			if err != nil {
				return fmt.Errorf("invalid --due-in: %w", err)
			}

			store, closeDB, err := openSchedulerStore()
			if err != nil {
				return err
			}
			defer closeDB()

			id, err := store.ScheduleTimer(context.Background(), topic, payload, time.Now().UTC().Add(delay))
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "Outbox topic to emit when the timer fires (required)")
	cmd.Flags().StringVarP(&payload, "payload", "p", "", "Payload to emit when the timer fires")
	cmd.Flags().StringVar(&dueIn, "due-in", "", "Delay before firing, e.g. 90s, 5m (required)")
	return cmd
}

func newTimerCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending timer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := openSchedulerStore()
			if err != nil {
				return err
			}
			defer closeDB()

			cancelled, err := store.CancelTimer(context.Background(), args[0])
			if err != nil {
				return err
			}
			if !cancelled {
				return fmt.Errorf("timer %q was not pending, nothing cancelled", args[0])
			}
			fmt.Printf("timer %q cancelled\n", args[0])
			return nil
		},
	}
	return cmd
}
