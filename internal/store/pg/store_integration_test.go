package pg

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/txplain/txplain/internal/models"
	"github.com/txplain/txplain/internal/store"
)

// newTestPostgres starts a throwaway Postgres container, applies schema.sql,
// and returns a connection string. Callers must terminate the container.
func newTestPostgres(ctx context.Context, t *testing.T) (string, func()) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "magraph",
			"POSTGRES_PASSWORD": "magraph",
			"POSTGRES_DB":       "magraph",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	connString := "postgres://magraph:magraph@" + host + ":" + port.Port() + "/magraph?sslmode=disable"

	schema, err := os.ReadFile("schema.sql")
	if err != nil {
		t.Fatalf("read schema.sql: %v", err)
	}

	s, err := New(ctx, connString, "")
	if err != nil {
		t.Fatalf("connect to test postgres: %v", err)
	}
	if _, err := s.pool.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	s.Close()

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	}
	return connString, cleanup
}

// TestCreateDealSerializesOnDealKeyAcrossProcessInstances exercises the
// redsync-backed distributed lock guarding deal_key creation: two PGStore
// instances (standing in for two process instances) race CreateDeal with
// the same deal_key against a shared miniredis instance, and only one must
// win.
func TestCreateDealSerializesOnDealKeyAcrossProcessInstances(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers-backed integration test in short mode")
	}

	ctx := context.Background()
	connString, cleanupPG := newTestPostgres(ctx, t)
	defer cleanupPG()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	redisURL := "redis://" + mr.Addr()

	storeA, err := New(ctx, connString, redisURL)
	if err != nil {
		t.Fatalf("open store A: %v", err)
	}
	defer storeA.Close()
	storeB, err := New(ctx, connString, redisURL)
	if err != nil {
		t.Fatalf("open store B: %v", err)
	}
	defer storeB.Close()

	const dealKey = "cik:0000320193:cik:0001018724"
	var successCount int32
	var conflictCount int32

	race := func(s *PGStore) {
		d := &models.Deal{DealKey: dealKey, State: models.DealStateCandidate}
		err := s.CreateDeal(ctx, d)
		switch err {
		case nil:
			atomic.AddInt32(&successCount, 1)
		case store.ErrDealKeyExists:
			atomic.AddInt32(&conflictCount, 1)
		default:
			t.Errorf("unexpected CreateDeal error: %v", err)
		}
	}

	done := make(chan struct{}, 2)
	go func() { race(storeA); done <- struct{}{} }()
	go func() { race(storeB); done <- struct{}{} }()
	<-done
	<-done

	if successCount != 1 {
		t.Errorf("expected exactly 1 successful CreateDeal, got %d", successCount)
	}
	if conflictCount != 1 {
		t.Errorf("expected exactly 1 ErrDealKeyExists conflict, got %d", conflictCount)
	}
}
