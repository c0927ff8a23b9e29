package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/relaybase/engine/internal/clock"
	"github.com/relaybase/engine/internal/pg"
	"github.com/relaybase/engine/internal/scheduler"
)

func openSchedulerStore() (*scheduler.PostgresStore, func() error, error) {
	db, err := pg.Open(dsnFlag)
	if err != nil {
		return nil, nil, err
	}
	store := scheduler.NewPostgresStore(db, schemaFlag, "jobs", "job_runs", "timers", clock.System{})
	return store, db.Close, nil
}

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage recurring jobs",
	}
	cmd.AddCommand(newJobUpsertCmd())
	cmd.AddCommand(newJobDeleteCmd())
	cmd.AddCommand(newJobTriggerCmd())
	return cmd
}

func newJobUpsertCmd() *cobra.Command {
	var name, topic, cronSchedule, payload string

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Create or update a recurring job",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" || topic == "" || cronSchedule == "" {
				return fmt.Errorf("--name, --topic and --cron are required")
			}
			store, closeDB, err := openSchedulerStore()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := store.CreateOrUpdateJob(context.Background(), name, topic, cronSchedule, payload); err != nil {
				return err
			}
			fmt.Printf("job %q upserted\n", name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "Job name (required)")
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "Outbox topic to emit (required)")
	cmd.Flags().StringVarP(&cronSchedule, "cron", "c", "", "Standard 5-field cron schedule (required)")
	cmd.Flags().StringVarP(&payload, "payload", "p", "", "Payload to emit on each run")
	return cmd
}

func newJobDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a recurring job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := openSchedulerStore()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := store.DeleteJob(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("job %q deleted\n", args[0])
			return nil
		},
	}
	return cmd
}

func newJobTriggerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trigger <name>",
		Short: "Trigger an immediate out-of-cycle run of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeDB, err := openSchedulerStore()
			if err != nil {
				return err
			}
			defer closeDB()

			id, err := store.TriggerJobAsync(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	return cmd
}
