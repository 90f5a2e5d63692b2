package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/ahmadramadhannn/mudah-titip/agreement"
	"github.com/ahmadramadhannn/mudah-titip/test/actors"
	"github.com/ahmadramadhannn/mudah-titip/test/chaos"
	"github.com/ahmadramadhannn/mudah-titip/test/infra"
	"github.com/ahmadramadhannn/mudah-titip/test/oracles"
)

var (
	flDuration     = flag.Duration("duration", 60*time.Second, "how long to run stress")
	flConcurrency  = flag.Int("concurrency", 8, "number of concurrent actors per role")
	flConsignments = flag.Int("consignments", 4, "number of contested consignments")
	flSeed         = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN          = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
	flChaos        = flag.Bool("chaos", true, "randomly terminate idle-in-transaction backends")
)

func TestNegotiationConcurrency(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test skipped in short mode")
	}
	seed := *flSeed
	rand.Seed(seed)

	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	var (
		pgC      *infra.PGContainer
		dsn      string
		err      error
		isolated bool
	)
	switch {
	case *flDSN != "":
		dsn, isolated = *flDSN, true
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn, isolated = os.Getenv("STRESS_TEST_PG_DSN"), true
	case dockerAvailable(ctx):
		pgC, dsn, err = infra.StartPostgres(ctx, "")
		if err != nil {
			t.Fatalf("start postgres: %v", err)
		}
	default:
		dsn, err = infra.InitLocalDatabase(ctx, "mudah_titip_stress")
		if err != nil {
			t.Skipf("no postgres available: %v", err)
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, infra.Options{Isolate: isolated, MaxConns: int32(*flConcurrency*3 + 4)})
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	party, consignments := mustSeed(t, ctx, pool, *flConsignments)
	engine := agreement.NewEngine(agreement.NewPGStore(pool), actors.NopNotifier{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var stats actors.Stats
	g, actorCtx := errgroup.WithContext(ctx)
	stop := make(chan struct{})
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error { return actors.Proposer(actorCtx, engine, consignments, party, &stats, stop) })
		g.Go(func() error { return actors.Counterer(actorCtx, pool, engine, party, &stats, stop) })
		g.Go(func() error { return actors.Responder(actorCtx, pool, engine, party, &stats, stop) })
	}
	if *flChaos {
		go chaos.TerminateRandomBackend(actorCtx, pool, stop)
	}

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(actorCtx, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Logf("oracle query error (retrying next tick): %v", err)
				continue
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}

	name, row, err := oracles.Run(context.Background(), pool)
	if err != nil {
		t.Fatalf("final oracle run: %v", err)
	}
	if name != "" {
		t.Fatalf("Oracle %s failed after run. First row: %s (seed=%d)", name, row, seed)
	}

	t.Logf("proposed=%d countered=%d accepted=%d rejected=%d refused=%d unexpected=%d (seed=%d)",
		stats.Proposed.Load(), stats.Countered.Load(), stats.Accepted.Load(), stats.Rejected.Load(),
		stats.Refused.Load(), stats.Unexpected.Load(), seed)
	if last, ok := stats.LastError.Load().(string); ok {
		t.Logf("last unexpected error: %s", last)
	}
	if stats.Proposed.Load() == 0 {
		t.Fatalf("no proposal ever succeeded")
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool, n int) (actors.Party, []string) {
	t.Helper()
	var party actors.Party
	suffix := rand.Int63()
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, name, password_hash, role) VALUES ($1, 'Stress Shop', 'x', 'shop_owner') RETURNING id::text`,
		fmt.Sprintf("shop%d@example.com", suffix)).Scan(&party.ShopOwnerID); err != nil {
		t.Fatalf("seed shop owner: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, name, password_hash, role) VALUES ($1, 'Stress Consignor', 'x', 'consignor') RETURNING id::text`,
		fmt.Sprintf("consignor%d@example.com", suffix)).Scan(&party.ConsignorID); err != nil {
		t.Fatalf("seed consignor: %v", err)
	}

	var shopID, productID string
	if err := pool.QueryRow(ctx, `INSERT INTO shops (owner_id, name) VALUES ($1, 'Toko Stress') RETURNING id::text`, party.ShopOwnerID).Scan(&shopID); err != nil {
		t.Fatalf("seed shop: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO products (owner_id, name) VALUES ($1, 'Keripik') RETURNING id::text`, party.ConsignorID).Scan(&productID); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	consignments := make([]string, 0, n)
	for i := 0; i < n; i++ {
		var id string
		if err := pool.QueryRow(ctx, `INSERT INTO consignments (shop_id, product_id, initial_quantity, current_quantity, selling_price)
                                      VALUES ($1, $2, 100, 40, 15000) RETURNING id::text`, shopID, productID).Scan(&id); err != nil {
			t.Fatalf("seed consignment: %v", err)
		}
		consignments = append(consignments, id)
	}
	return party, consignments
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	dumps := []struct {
		name string
		sql  string
	}{
		{"agreements", `SELECT id, consignment_id, proposed_by, status, previous_version_id, updated_at FROM agreements ORDER BY updated_at DESC LIMIT 50`},
		{"agreement_events", `SELECT id, agreement_id, type, actor_id, created_at FROM agreement_events ORDER BY id DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
