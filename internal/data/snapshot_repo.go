package data

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/urbanflow/rebal/internal/domain/model"
	"github.com/urbanflow/rebal/internal/engine"
)

// SnapshotRepo reads the station feed: fill-level buckets and the
// pre-ranked neighbor graph. It is read-only from this core's point of view.
type SnapshotRepo struct {
	DB     *sql.DB
	logger *slog.Logger
}

// NewSnapshotRepo creates a SnapshotRepo.
func NewSnapshotRepo(db *sql.DB, cfg RepoConfig) *SnapshotRepo {
	return &SnapshotRepo{DB: db, logger: cfg.logger()}
}

// ResolveBucket returns the newest bucket at or before the requested time,
// or ErrNoSnapshot when the feed has nothing that old.
func (r *SnapshotRepo) ResolveBucket(ctx context.Context, systemID string, at time.Time) (time.Time, error) {
	var bucket sql.NullTime
	err := r.DB.QueryRowContext(ctx,
		`SELECT MAX(bucket_ts) FROM station_status WHERE system_id = $1 AND bucket_ts <= $2`,
		systemID, at.UTC(),
	).Scan(&bucket)
	if err != nil {
		return time.Time{}, fmt.Errorf("resolve bucket: %w", err)
	}
	if !bucket.Valid {
		return time.Time{}, ErrNoSnapshot
	}
	return bucket.Time, nil
}

// GetStationsAt loads the station rows for one bucket, sorted by key.
// Missing capacity falls back to bikes + docks.
func (r *SnapshotRepo) GetStationsAt(ctx context.Context, systemID string, bucket time.Time) ([]model.Station, error) {
	rows, err := r.DB.QueryContext(ctx, `
	  SELECT station_key,
	         COALESCE(capacity, bikes_available + docks_available),
	         bikes_available,
	         docks_available,
	         bucket_quality
	  FROM station_status
	  WHERE system_id = $1 AND bucket_ts = $2
	  ORDER BY station_key
	`, systemID, bucket.UTC())
	if err != nil {
		return nil, fmt.Errorf("load stations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stations []model.Station
	for rows.Next() {
		var st model.Station
		if err := rows.Scan(&st.StationKey, &st.Capacity, &st.Bikes, &st.Docks, &st.BucketQuality); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		stations = append(stations, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stations: %w", err)
	}
	return stations, nil
}

// GetNeighborEdges loads the directed neighbor graph for a system, ordered
// by (from, rank).
func (r *SnapshotRepo) GetNeighborEdges(ctx context.Context, systemID string) ([]model.NeighborEdge, error) {
	rows, err := r.DB.QueryContext(ctx, `
	  SELECT station_key, neighbor_key, dist_m, rank
	  FROM station_neighbors
	  WHERE system_id = $1
	  ORDER BY station_key, rank, neighbor_key
	`, systemID)
	if err != nil {
		return nil, fmt.Errorf("load neighbor edges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var edges []model.NeighborEdge
	for rows.Next() {
		var e model.NeighborEdge
		if err := rows.Scan(&e.FromStationKey, &e.ToStationKey, &e.DistM, &e.Rank); err != nil {
			return nil, fmt.Errorf("scan neighbor edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate neighbor edges: %w", err)
	}
	return edges, nil
}

// SnapshotIdentity recomputes the canonical identity of the station rows at
// a bucket: a digest over the key-sorted rows, plus a short display id.
func (r *SnapshotRepo) SnapshotIdentity(ctx context.Context, systemID string, bucket time.Time) (model.SnapshotIdentity, error) {
	stations, err := r.GetStationsAt(ctx, systemID, bucket)
	if err != nil {
		return model.SnapshotIdentity{}, err
	}
	return ComputeSnapshotIdentity(systemID, bucket, stations)
}

// ComputeSnapshotIdentity derives the identity from rows already in hand.
// Rows are re-sorted by key so callers need not guarantee order.
func ComputeSnapshotIdentity(systemID string, bucket time.Time, stations []model.Station) (model.SnapshotIdentity, error) {
	sorted := make([]model.Station, len(stations))
	copy(sorted, stations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StationKey < sorted[j].StationKey })

	canonical, err := engine.MarshalCanonical(sorted)
	if err != nil {
		return model.SnapshotIdentity{}, fmt.Errorf("canonicalize snapshot: %w", err)
	}
	sum := sha256.Sum256(canonical)
	sha := hex.EncodeToString(sum[:])

	return model.SnapshotIdentity{
		ViewSnapshotID:     fmt.Sprintf("vs:%s:%d:%s", systemID, bucket.UTC().Unix(), sha[:16]),
		ViewSnapshotSHA256: sha,
	}, nil
}
