package bucket_test

import (
	"fmt"
	"testing"

	"github.com/floedb/floe/bucket"
	"github.com/floedb/floe/record"
	"github.com/floedb/floe/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPartitionPath = "year=2016/month=9/day=26"

type stubEstimator struct {
	size int64
}

func (s stubEstimator) AvgRecordSizeBytes(_ int) (int64, bool) {
	return s.size, s.size > 0
}

func makeBatch(path string, inserts, updates int, updateFileID string) []record.Record {
	var records []record.Record
	for i := 0; i < inserts; i++ {
		records = append(records, record.Record{
			Key: record.Key{RecordKey: fmt.Sprintf("ins-%d", i), PartitionPath: path},
		})
	}
	for i := 0; i < updates; i++ {
		records = append(records, record.Record{
			Key:      record.Key{RecordKey: fmt.Sprintf("upd-%d", i), PartitionPath: path},
			Location: &record.Location{CommitID: "001", FileID: updateFileID},
		})
	}
	return records
}

func baseConfig() bucket.Config {
	return bucket.Config{
		SmallFileLimitBytes:     0,
		MaxFileSizeBytes:        1000 * 1024,
		InsertSplitSize:         100,
		RecordSizeEstimateBytes: 1024,
	}
}

func TestInsertsSplitAndUpdatesCollapse(t *testing.T) {
	// 200 inserts and 100 updates to one file, no small files: the
	// updates share a single UPDATE bucket and the inserts split in two
	records := makeBatch(testPartitionPath, 200, 100, "file1")
	profile := workload.BuildProfile(records)
	fileGroups := map[string][]bucket.FileGroup{
		testPartitionPath: {{ID: "file1", Bytes: 1024, Rows: 1}},
	}

	plan, err := bucket.NewPlan(profile, fileGroups, nil, baseConfig())
	require.NoError(t, err)

	insertBuckets := plan.GetInsertBuckets(testPartitionPath)
	require.Len(t, insertBuckets, 2)
	assert.InDelta(t, 0.5, insertBuckets[0].Weight, 1e-9)
	assert.InDelta(t, 0.5, insertBuckets[1].Weight, 1e-9)

	assert.Equal(t, 3, plan.NumPartitions())
	assert.Equal(t, bucket.Update, plan.GetBucketInfo(0).Type)
	assert.Equal(t, bucket.Insert, plan.GetBucketInfo(1).Type)
	assert.Equal(t, bucket.Insert, plan.GetBucketInfo(2).Type)

	// every update goes to bucket 0 regardless of record key
	for _, rec := range records {
		if !rec.IsUpdate() {
			continue
		}
		idx, err := plan.BucketFor(rec.Key, rec.Location)
		require.NoError(t, err)
		assert.Equal(t, 0, idx)
	}
}

func TestSmallFileAbsorption(t *testing.T) {
	// one 800KB file under a 1000KB small-file limit: at the 1024-byte
	// record size estimate it absorbs 200 of the 400 inserts, the rest
	// split into two new buckets
	records := makeBatch(testPartitionPath, 400, 100, "file1")
	profile := workload.BuildProfile(records)
	fileGroups := map[string][]bucket.FileGroup{
		testPartitionPath: {{ID: "file1", Bytes: 800 * 1024, Rows: 800}},
	}

	cfg := baseConfig()
	cfg.SmallFileLimitBytes = 1000 * 1024

	plan, err := bucket.NewPlan(profile, fileGroups, nil, cfg)
	require.NoError(t, err)

	require.Equal(t, 3, plan.NumPartitions())
	assert.Equal(t, bucket.Update, plan.GetBucketInfo(0).Type)
	assert.Equal(t, bucket.Insert, plan.GetBucketInfo(1).Type)
	assert.Equal(t, bucket.Insert, plan.GetBucketInfo(2).Type)

	insertBuckets := plan.GetInsertBuckets(testPartitionPath)
	require.Len(t, insertBuckets, 3)
	assert.Equal(t, 0, insertBuckets[0].BucketNumber, "first insert bucket must be the update bucket")
	assert.InDelta(t, 0.5, insertBuckets[0].Weight, 0.01)

	assertWeightsSumToOne(t, insertBuckets)
}

func TestAutoTunedInsertSplits(t *testing.T) {
	records := makeBatch(testPartitionPath, 2400, 100, "file1")
	profile := workload.BuildProfile(records)
	fileGroups := map[string][]bucket.FileGroup{
		testPartitionPath: {{ID: "file1", Bytes: 800 * 1024, Rows: 800}},
	}

	cfg := baseConfig()
	cfg.SmallFileLimitBytes = 1000 * 1024
	cfg.AutoTuneInsertSplits = true

	plan, err := bucket.NewPlan(profile, fileGroups, stubEstimator{size: 1024}, cfg)
	require.NoError(t, err)

	// 200 absorbed by file1, then 2200 at 1000*1024/1024=1000 records
	// per new bucket
	require.Equal(t, 4, plan.NumPartitions())
	assert.Equal(t, bucket.Update, plan.GetBucketInfo(0).Type)
	for i := 1; i < 4; i++ {
		assert.Equal(t, bucket.Insert, plan.GetBucketInfo(i).Type)
	}

	insertBuckets := plan.GetInsertBuckets(testPartitionPath)
	require.Len(t, insertBuckets, 4)
	assert.Equal(t, 0, insertBuckets[0].BucketNumber)
	assert.InDelta(t, 200.0/2400, insertBuckets[0].Weight, 0.01)
	assertWeightsSumToOne(t, insertBuckets)

	// auto-tuning only resizes insert buckets, update routing is
	// untouched
	idx, err := plan.BucketFor(record.Key{RecordKey: "upd-0", PartitionPath: testPartitionPath}, &record.Location{CommitID: "001", FileID: "file1"})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
}

func TestAutoTuneSamplingFallback(t *testing.T) {
	// estimator has nothing to sample, the configured split size
	// applies and no error surfaces
	records := makeBatch(testPartitionPath, 200, 0, "")
	profile := workload.BuildProfile(records)

	cfg := baseConfig()
	cfg.AutoTuneInsertSplits = true

	plan, err := bucket.NewPlan(profile, nil, stubEstimator{size: 0}, cfg)
	require.NoError(t, err)
	assert.Len(t, plan.GetInsertBuckets(testPartitionPath), 2)
}

func TestConfigErrors(t *testing.T) {
	profile := workload.BuildProfile(makeBatch(testPartitionPath, 10, 0, ""))

	cfg := baseConfig()
	cfg.MaxFileSizeBytes = 0
	_, err := bucket.NewPlan(profile, nil, nil, cfg)
	assert.ErrorIs(t, err, bucket.ErrInvalidConfig)

	cfg = baseConfig()
	cfg.InsertSplitSize = 0
	_, err = bucket.NewPlan(profile, nil, nil, cfg)
	assert.ErrorIs(t, err, bucket.ErrInvalidConfig)

	cfg = baseConfig()
	cfg.SmallFileLimitBytes = -1
	_, err = bucket.NewPlan(profile, nil, nil, cfg)
	assert.ErrorIs(t, err, bucket.ErrInvalidConfig)

	// a non-positive split size is fine while auto-tuning can size the
	// buckets, but not when sampling falls through
	cfg = baseConfig()
	cfg.InsertSplitSize = 0
	cfg.AutoTuneInsertSplits = true
	_, err = bucket.NewPlan(profile, nil, stubEstimator{size: 1024}, cfg)
	assert.NoError(t, err, "auto-tuning sizes the buckets itself")

	_, err = bucket.NewPlan(profile, nil, stubEstimator{size: 0}, cfg)
	assert.ErrorIs(t, err, bucket.ErrInvalidConfig, "sampling fell through with no usable split size")
}

func TestUpdateToUnknownFileGroup(t *testing.T) {
	records := makeBatch(testPartitionPath, 0, 5, "ghost")
	profile := workload.BuildProfile(records)

	// snapshot knows nothing about "ghost"
	_, err := bucket.NewPlan(profile, map[string][]bucket.FileGroup{}, nil, baseConfig())
	assert.ErrorIs(t, err, bucket.ErrUnknownFileGroup)
}

func TestEmptyBatch(t *testing.T) {
	plan, err := bucket.NewPlan(workload.BuildProfile(nil), nil, nil, baseConfig())
	require.NoError(t, err)
	assert.Equal(t, 0, plan.NumPartitions())

	_, err = plan.BucketFor(record.Key{RecordKey: "a", PartitionPath: "nowhere"}, nil)
	assert.ErrorIs(t, err, bucket.ErrNoInsertBuckets)
}

func TestEveryRecordGetsExactlyOneBucket(t *testing.T) {
	pathA := "year=2022/month=1"
	pathB := "year=2022/month=2"
	records := append(makeBatch(pathA, 350, 40, "fileA"), makeBatch(pathB, 120, 0, "")...)
	profile := workload.BuildProfile(records)
	fileGroups := map[string][]bucket.FileGroup{
		pathA: {{ID: "fileA", Bytes: 500 * 1024, Rows: 500}},
	}

	cfg := baseConfig()
	cfg.SmallFileLimitBytes = 600 * 1024

	plan, err := bucket.NewPlan(profile, fileGroups, nil, cfg)
	require.NoError(t, err)

	for _, rec := range records {
		idx, err := plan.BucketFor(rec.Key, rec.Location)
		require.NoError(t, err)
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, plan.NumPartitions())

		// stable across repeated calls within the same plan
		again, err := plan.BucketFor(rec.Key, rec.Location)
		require.NoError(t, err)
		require.Equal(t, idx, again)
	}

	assertWeightsSumToOne(t, plan.GetInsertBuckets(pathA))
	assertWeightsSumToOne(t, plan.GetInsertBuckets(pathB))
}

func TestHashedInsertRoutingTracksWeights(t *testing.T) {
	records := makeBatch(testPartitionPath, 2000, 0, "")
	profile := workload.BuildProfile(records)

	plan, err := bucket.NewPlan(profile, nil, nil, func() bucket.Config {
		cfg := baseConfig()
		cfg.InsertSplitSize = 1000
		return cfg
	}())
	require.NoError(t, err)
	require.Equal(t, 2, plan.NumPartitions())

	counts := make(map[int]int)
	for _, rec := range records {
		idx, err := plan.BucketFor(rec.Key, nil)
		require.NoError(t, err)
		counts[idx]++
	}

	// two equal-weight buckets: hashed routing should land near 50/50
	for idx, n := range counts {
		assert.Greaterf(t, n, 600, "bucket %d starved", idx)
		assert.Lessf(t, n, 1400, "bucket %d overloaded", idx)
	}
}

func TestUpdatesOnlyPartitionHasNoInsertBuckets(t *testing.T) {
	records := makeBatch(testPartitionPath, 0, 50, "file1")
	profile := workload.BuildProfile(records)
	fileGroups := map[string][]bucket.FileGroup{
		testPartitionPath: {{ID: "file1", Bytes: 5 * 1024 * 1024, Rows: 5000}},
	}

	plan, err := bucket.NewPlan(profile, fileGroups, nil, baseConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, plan.NumPartitions())
	assert.Empty(t, plan.GetInsertBuckets(testPartitionPath))
}

func assertWeightsSumToOne(t *testing.T, insertBuckets []bucket.InsertBucket) {
	t.Helper()
	sum := 0.0
	for _, b := range insertBuckets {
		assert.Greater(t, b.Weight, 0.0)
		assert.LessOrEqual(t, b.Weight, 1.0)
		sum += b.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
}
