package dispatcher_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/relaybase/engine/internal/clock"
	"github.com/relaybase/engine/internal/dispatcher"
	"github.com/relaybase/engine/internal/ids"
	"github.com/relaybase/engine/internal/outbox"
	"github.com/relaybase/engine/internal/pg"
	"github.com/relaybase/engine/internal/schema"
)

// TestDispatcher_Enqueue_Claim_Ack_EndToEnd exercises a full
// enqueue->dispatch->ack cycle against a real Postgres container (spec
// §4.1, §4.3). Opt-in: requires RELAYBASE_TEST_DOCKER=1 so the normal
// unit-test run never depends on a local docker daemon.
func TestDispatcher_Enqueue_Claim_Ack_EndToEnd(t *testing.T) {
	if os.Getenv("RELAYBASE_TEST_DOCKER") == "" {
		t.Skip("set RELAYBASE_TEST_DOCKER=1 to run against a disposable Postgres container")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "relaybase",
			"POSTGRES_PASSWORD": "relaybase",
			"POSTGRES_DB":       "relaybase",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	defer func() { _ = container.Terminate(ctx) }()

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://relaybase:relaybase@%s:%s/relaybase?sslmode=disable", host, port.Port())

	if err := schema.New(zerolog.Nop()).Deploy(ctx, dsn, "infra"); err != nil {
		t.Fatalf("deploy schema: %v", err)
	}

	db, err := pg.Open(dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	clk := clock.System{}
	outboxStore := outbox.NewPostgresStore(db, "infra", "outbox", clk)

	var handled []string
	resolver := outbox.NewMapResolver(map[string]outbox.Handler{
		"e2e.topic": func(ctx context.Context, msg outbox.Message) error {
			handled = append(handled, msg.Payload)
			return nil
		},
	})

	provider := fixedProvider{stores: []dispatcher.NamedStore{{Identifier: "infra", Store: outboxStore}}}
	d := dispatcher.New(provider, resolver, nil, dispatcher.Config{
		MaxAttempts:   5,
		LeaseDuration: 30 * time.Second,
	}, zerolog.Nop())

	if _, err := outboxStore.Enqueue(ctx, db, outbox.NewMessage{
		Topic:     "e2e.topic",
		Payload:   "hello-relaybase",
		MessageID: ids.NewOutboxMessageID(),
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	n, err := d.RunOnce(ctx, 10)
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 message processed, got %d", n)
	}
	if len(handled) != 1 || handled[0] != "hello-relaybase" {
		t.Fatalf("expected handler to observe the enqueued payload, got %v", handled)
	}
}

type fixedProvider struct {
	stores []dispatcher.NamedStore
}

func (p fixedProvider) GetAllStores(ctx context.Context) ([]dispatcher.NamedStore, error) {
	return p.stores, nil
}
