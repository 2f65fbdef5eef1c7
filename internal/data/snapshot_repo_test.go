package data_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanflow/rebal/internal/data"
	"github.com/urbanflow/rebal/internal/domain/model"
	"github.com/urbanflow/rebal/internal/testutil"
)

func newSnapshotRepo(db *sql.DB) *data.SnapshotRepo {
	return data.NewSnapshotRepo(db, data.RepoConfig{Logger: testutil.DiscardLogger()})
}

func seedStation(t *testing.T, db *sql.DB, systemID, key string, bucket time.Time, bikes, docks int, capacity *int) {
	t.Helper()
	_, err := db.Exec(`
	  INSERT INTO station_status (system_id, station_key, bucket_ts, bikes_available, docks_available, capacity)
	  VALUES ($1, $2, $3, $4, $5, $6)
	`, systemID, key, bucket.UTC(), bikes, docks, capacity)
	require.NoError(t, err)
}

func seedNeighbor(t *testing.T, db *sql.DB, systemID, from, to string, distM float64, rank int) {
	t.Helper()
	_, err := db.Exec(`
	  INSERT INTO station_neighbors (system_id, station_key, neighbor_key, dist_m, rank)
	  VALUES ($1, $2, $3, $4, $5)
	`, systemID, from, to, distM, rank)
	require.NoError(t, err)
}

func TestResolveBucketPicksNewestAtOrBefore(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := newSnapshotRepo(db)
		base := testutil.TestTime()

		seedStation(t, db, "metro-bike", "st-1", base.Add(-30*time.Minute), 5, 5, nil)
		seedStation(t, db, "metro-bike", "st-1", base.Add(-15*time.Minute), 6, 4, nil)
		seedStation(t, db, "metro-bike", "st-1", base.Add(15*time.Minute), 7, 3, nil)

		bucket, err := repo.ResolveBucket(ctx, "metro-bike", base)
		require.NoError(t, err)
		assert.Equal(t, base.Add(-15*time.Minute), bucket.UTC())

		// Exact match counts as at-or-before.
		bucket, err = repo.ResolveBucket(ctx, "metro-bike", base.Add(15*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, base.Add(15*time.Minute), bucket.UTC())
	})
}

func TestResolveBucketNoSnapshot(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := newSnapshotRepo(db)
		base := testutil.TestTime()

		_, err := repo.ResolveBucket(ctx, "metro-bike", base)
		assert.ErrorIs(t, err, data.ErrNoSnapshot)

		// A bucket from the future alone is not resolvable either.
		seedStation(t, db, "metro-bike", "st-1", base.Add(time.Hour), 5, 5, nil)
		_, err = repo.ResolveBucket(ctx, "metro-bike", base)
		assert.ErrorIs(t, err, data.ErrNoSnapshot)

		// Other systems never bleed through.
		seedStation(t, db, "harbor-bike", "st-1", base.Add(-time.Hour), 5, 5, nil)
		_, err = repo.ResolveBucket(ctx, "metro-bike", base)
		assert.ErrorIs(t, err, data.ErrNoSnapshot)
	})
}

func TestGetStationsAtDerivesMissingCapacity(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := newSnapshotRepo(db)
		bucket := testutil.TestTime()

		seedStation(t, db, "metro-bike", "st-b", bucket, 3, 9, nil)
		seedStation(t, db, "metro-bike", "st-a", bucket, 8, 2, testutil.IntPtr(12))
		seedStation(t, db, "metro-bike", "st-a", bucket.Add(-15*time.Minute), 1, 9, nil)

		stations, err := repo.GetStationsAt(ctx, "metro-bike", bucket)
		require.NoError(t, err)
		require.Len(t, stations, 2)

		// Sorted by station key, stated capacity kept, missing capacity
		// falls back to bikes + docks.
		assert.Equal(t, "st-a", stations[0].StationKey)
		assert.Equal(t, 12, stations[0].Capacity)
		assert.Equal(t, "st-b", stations[1].StationKey)
		assert.Equal(t, 12, stations[1].Capacity)
		assert.Equal(t, 3, stations[1].Bikes)
		assert.Equal(t, 9, stations[1].Docks)
	})
}

func TestGetStationsAtEmptyBucket(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := newSnapshotRepo(db)
		stations, err := repo.GetStationsAt(context.Background(), "metro-bike", testutil.TestTime())
		require.NoError(t, err)
		assert.Empty(t, stations)
	})
}

func TestGetNeighborEdgesOrderedByRank(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := newSnapshotRepo(db)

		seedNeighbor(t, db, "metro-bike", "st-b", "st-a", 120, 1)
		seedNeighbor(t, db, "metro-bike", "st-a", "st-c", 480, 2)
		seedNeighbor(t, db, "metro-bike", "st-a", "st-b", 120, 1)
		seedNeighbor(t, db, "harbor-bike", "st-a", "st-z", 50, 1)

		edges, err := repo.GetNeighborEdges(ctx, "metro-bike")
		require.NoError(t, err)
		require.Len(t, edges, 3)
		assert.Equal(t, model.NeighborEdge{FromStationKey: "st-a", ToStationKey: "st-b", DistM: 120, Rank: 1}, edges[0])
		assert.Equal(t, model.NeighborEdge{FromStationKey: "st-a", ToStationKey: "st-c", DistM: 480, Rank: 2}, edges[1])
		assert.Equal(t, model.NeighborEdge{FromStationKey: "st-b", ToStationKey: "st-a", DistM: 120, Rank: 1}, edges[2])
	})
}

func TestSnapshotIdentityStableAcrossRowOrder(t *testing.T) {
	bucket := testutil.TestTime()
	stations := []model.Station{
		testutil.Station("st-a", 12, 8),
		testutil.Station("st-b", 10, 3),
		testutil.Station("st-c", 16, 16),
	}
	shuffled := []model.Station{stations[2], stations[0], stations[1]}

	first, err := data.ComputeSnapshotIdentity("metro-bike", bucket, stations)
	require.NoError(t, err)
	second, err := data.ComputeSnapshotIdentity("metro-bike", bucket, shuffled)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first.ViewSnapshotSHA256, 64)
	assert.Equal(t,
		fmt.Sprintf("vs:metro-bike:%d:%s", bucket.Unix(), first.ViewSnapshotSHA256[:16]),
		first.ViewSnapshotID)
}

func TestSnapshotIdentityChangesWithContent(t *testing.T) {
	bucket := testutil.TestTime()
	base := []model.Station{testutil.Station("st-a", 12, 8)}
	changed := []model.Station{testutil.Station("st-a", 12, 9)}

	first, err := data.ComputeSnapshotIdentity("metro-bike", bucket, base)
	require.NoError(t, err)
	second, err := data.ComputeSnapshotIdentity("metro-bike", bucket, changed)
	require.NoError(t, err)

	assert.NotEqual(t, first.ViewSnapshotSHA256, second.ViewSnapshotSHA256)
	assert.NotEqual(t, first.ViewSnapshotID, second.ViewSnapshotID)
}

func TestSnapshotIdentityFromDatabaseRows(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		repo := newSnapshotRepo(db)
		bucket := testutil.TestTime()

		seedStation(t, db, "metro-bike", "st-a", bucket, 8, 4, testutil.IntPtr(12))
		seedStation(t, db, "metro-bike", "st-b", bucket, 3, 7, nil)

		identity, err := repo.SnapshotIdentity(ctx, "metro-bike", bucket)
		require.NoError(t, err)

		want, err := data.ComputeSnapshotIdentity("metro-bike", bucket, []model.Station{
			testutil.Station("st-a", 12, 8),
			testutil.Station("st-b", 10, 3),
		})
		require.NoError(t, err)
		assert.Equal(t, want, identity)
	})
}
