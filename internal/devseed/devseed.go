// Package devseed populates a development database with a small bike-share
// system so worker runs produce visible moves: a handful of stations with
// deliberate surpluses and deficits, plus a neighbor graph connecting them.
package devseed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/urbanflow/rebal/internal/data/pgxutil"
)

// DemoSystemID is the system seeded for local development.
const DemoSystemID = "metro-bike"

// bucketGrain aligns the seeded snapshot with the cadence ingest would use.
const bucketGrain = 5 * time.Minute

// Services bundles the dependencies needed for development seeding.
type Services struct {
	DB *sql.DB
}

// NewServices constructs the seeding dependencies using the provided DB.
func NewServices(db *sql.DB) Services {
	return Services{DB: db}
}

type seedStation struct {
	Key      string
	Bikes    int
	Docks    int
	Capacity *int
	Quality  string
}

type seedEdge struct {
	From  string
	To    string
	DistM float64
	Rank  int
}

// Run executes the full development seeding workflow against the provided DB.
// The snapshot and neighbor rows are upserted, so repeated runs refresh the
// demo bucket instead of erroring.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	bucket := time.Now().UTC().Truncate(bucketGrain)

	err := pgxutil.WithSQLTx(ctx, svcs.DB, pgxutil.SQLTxConfig{Fn: func(tx *sql.Tx) error {
		if seedErr := seedStationStatus(ctx, tx, bucket); seedErr != nil {
			return fmt.Errorf("seed station status: %w", seedErr)
		}
		if seedErr := seedNeighborEdges(ctx, tx); seedErr != nil {
			return fmt.Errorf("seed neighbor edges: %w", seedErr)
		}
		return nil
	}})
	if err != nil {
		return err
	}

	if logger != nil {
		logger.InfoContext(ctx, "seeded demo snapshot",
			"system_id", DemoSystemID,
			"bucket_ts", bucket,
			"stations", len(demoStations()),
			"neighbor_edges", len(demoEdges()))
	}
	return nil
}

func seedStationStatus(ctx context.Context, tx *sql.Tx, bucket time.Time) error {
	const upsert = `
        INSERT INTO station_status
            (system_id, station_key, bucket_ts, bikes_available, docks_available, capacity, bucket_quality)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (system_id, bucket_ts, station_key) DO UPDATE SET
            bikes_available = EXCLUDED.bikes_available,
            docks_available = EXCLUDED.docks_available,
            capacity        = EXCLUDED.capacity,
            bucket_quality  = EXCLUDED.bucket_quality`

	for _, s := range demoStations() {
		if _, err := tx.ExecContext(ctx, upsert,
			DemoSystemID, s.Key, bucket, s.Bikes, s.Docks, s.Capacity, s.Quality,
		); err != nil {
			return fmt.Errorf("upsert station %q: %w", s.Key, err)
		}
	}
	return nil
}

func seedNeighborEdges(ctx context.Context, tx *sql.Tx) error {
	const upsert = `
        INSERT INTO station_neighbors (system_id, station_key, neighbor_key, dist_m, rank)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (system_id, station_key, neighbor_key) DO UPDATE SET
            dist_m = EXCLUDED.dist_m,
            rank   = EXCLUDED.rank`

	for _, e := range demoEdges() {
		if _, err := tx.ExecContext(ctx, upsert,
			DemoSystemID, e.From, e.To, e.DistM, e.Rank,
		); err != nil {
			return fmt.Errorf("upsert edge %s->%s: %w", e.From, e.To, err)
		}
	}
	return nil
}

// demoStations sketches a downtown loop: commuter stations drained by the
// morning rush next to overflowing transit hubs, so both donor and receiver
// roles are represented. One station has no published capacity and one
// carries a degraded grade to exercise quality filtering.
func demoStations() []seedStation {
	cap24 := 24
	cap30 := 30
	cap16 := 16
	return []seedStation{
		{Key: "union-station", Bikes: 27, Docks: 3, Capacity: &cap30, Quality: "ok"},
		{Key: "market-square", Bikes: 22, Docks: 2, Capacity: &cap24, Quality: "ok"},
		{Key: "riverfront", Bikes: 12, Docks: 12, Capacity: &cap24, Quality: "ok"},
		{Key: "city-hall", Bikes: 1, Docks: 23, Capacity: &cap24, Quality: "ok"},
		{Key: "tech-campus", Bikes: 0, Docks: 16, Capacity: &cap16, Quality: "ok"},
		{Key: "harbor-east", Bikes: 2, Docks: 22, Capacity: &cap24, Quality: "ok"},
		{Key: "museum-district", Bikes: 13, Docks: 11, Capacity: &cap24, Quality: "ok"},
		{Key: "stadium-north", Bikes: 20, Docks: 4, Capacity: nil, Quality: "ok"},
		{Key: "old-town", Bikes: 3, Docks: 13, Capacity: &cap16, Quality: "degraded"},
	}
}

func demoEdges() []seedEdge {
	pairs := []seedEdge{
		{From: "union-station", To: "city-hall", DistM: 410, Rank: 1},
		{From: "union-station", To: "market-square", DistM: 520, Rank: 2},
		{From: "union-station", To: "old-town", DistM: 760, Rank: 3},
		{From: "market-square", To: "city-hall", DistM: 330, Rank: 1},
		{From: "market-square", To: "riverfront", DistM: 560, Rank: 2},
		{From: "market-square", To: "tech-campus", DistM: 840, Rank: 3},
		{From: "city-hall", To: "market-square", DistM: 330, Rank: 1},
		{From: "city-hall", To: "union-station", DistM: 410, Rank: 2},
		{From: "city-hall", To: "museum-district", DistM: 690, Rank: 3},
		{From: "riverfront", To: "harbor-east", DistM: 450, Rank: 1},
		{From: "riverfront", To: "market-square", DistM: 560, Rank: 2},
		{From: "tech-campus", To: "stadium-north", DistM: 380, Rank: 1},
		{From: "tech-campus", To: "market-square", DistM: 840, Rank: 2},
		{From: "harbor-east", To: "riverfront", DistM: 450, Rank: 1},
		{From: "harbor-east", To: "stadium-north", DistM: 620, Rank: 2},
		{From: "museum-district", To: "city-hall", DistM: 690, Rank: 1},
		{From: "museum-district", To: "old-town", DistM: 510, Rank: 2},
		{From: "stadium-north", To: "tech-campus", DistM: 380, Rank: 1},
		{From: "stadium-north", To: "harbor-east", DistM: 620, Rank: 2},
		{From: "old-town", To: "museum-district", DistM: 510, Rank: 1},
		{From: "old-town", To: "union-station", DistM: 760, Rank: 2},
	}
	return pairs
}
