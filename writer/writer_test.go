package writer_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/floedb/floe/bucket"
	"github.com/floedb/floe/datastore"
	"github.com/floedb/floe/metastore"
	"github.com/floedb/floe/record"
	"github.com/floedb/floe/writer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memMetaStore is an in-memory MetaStore for exercising the write path
// without a database.
type memMetaStore struct {
	mu     sync.Mutex
	groups map[string]map[string]bucket.FileGroup // ns|path -> fileID -> group
}

func newMemMetaStore() *memMetaStore {
	return &memMetaStore{groups: make(map[string]map[string]bucket.FileGroup)}
}

func (ms *memMetaStore) key(namespace, partitionPath string) string {
	return namespace + "|" + partitionPath
}

func (ms *memMetaStore) seed(namespace, partitionPath string, fg bucket.FileGroup) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	k := ms.key(namespace, partitionPath)
	if ms.groups[k] == nil {
		ms.groups[k] = make(map[string]bucket.FileGroup)
	}
	ms.groups[k][fg.ID] = fg
}

func (ms *memMetaStore) ListFileGroups(_ context.Context, namespace, partitionPath string) ([]bucket.FileGroup, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var out []bucket.FileGroup
	for _, fg := range ms.groups[ms.key(namespace, partitionPath)] {
		out = append(out, fg)
	}
	return out, nil
}

func (ms *memMetaStore) CreateFileGroup(_ context.Context, namespace, partitionPath string, fg bucket.FileGroup, _ []string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	k := ms.key(namespace, partitionPath)
	if ms.groups[k] == nil {
		ms.groups[k] = make(map[string]bucket.FileGroup)
	}
	if _, exists := ms.groups[k][fg.ID]; exists {
		return metastore.ErrFileGroupExists
	}
	ms.groups[k][fg.ID] = fg
	return nil
}

func (ms *memMetaStore) SetFileGroupSize(_ context.Context, namespace, partitionPath, fileID string, bytes, rows int64) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	fg, exists := ms.groups[ms.key(namespace, partitionPath)][fileID]
	if !exists {
		return metastore.ErrFileGroupNotFound
	}
	fg.Bytes = bytes
	fg.Rows = rows
	ms.groups[ms.key(namespace, partitionPath)][fileID] = fg
	return nil
}

func (ms *memMetaStore) Shutdown(_ context.Context) error {
	return nil
}

const testPath = "year=2022/month=1"

func insertRecords(n int) []record.Record {
	var records []record.Record
	for i := 0; i < n; i++ {
		records = append(records, record.Record{
			Key: record.Key{RecordKey: fmt.Sprintf("k-%d", i), PartitionPath: testPath},
			// flattened HTTP rows arrive with lowercase keys
			Row: map[string]any{"id": fmt.Sprintf("k-%d", i), "val": float64(i)},
		})
	}
	return records
}

func testConfig() bucket.Config {
	return bucket.Config{
		SmallFileLimitBytes:     0,
		MaxFileSizeBytes:        1000 * 1024,
		InsertSplitSize:         5,
		RecordSizeEstimateBytes: 1024,
	}
}

func TestWriteBatchInserts(t *testing.T) {
	ms := newMemMetaStore()
	ds, err := datastore.NewDiskDataStore(t.TempDir())
	require.NoError(t, err)
	w := writer.NewWriter(ms, ds)

	cfg := testConfig()
	cfg.InsertSplitSize = 50

	stats, err := w.WriteBatch(context.Background(), "testns", insertRecords(100), cfg)
	require.NoError(t, err)

	assert.Equal(t, int64(100), stats.NumRows)
	assert.Equal(t, int64(2), stats.NumFiles, "100 inserts at split size 50")
	assert.Equal(t, int64(2), stats.InsertBuckets)
	assert.Equal(t, int64(0), stats.UpdateBuckets)
	assert.Greater(t, stats.BytesWritten, int64(0))
	assert.NotEmpty(t, stats.CommitID)

	groups, err := ms.ListFileGroups(context.Background(), "testns", testPath)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	var totalRows int64
	for _, fg := range groups {
		assert.Greater(t, fg.Bytes, int64(0))
		totalRows += fg.Rows

		// file is really on disk under the commit-suffixed key
		b, err := ds.ReadFile(context.Background(), fmt.Sprintf("ns=testns/%s/%s_%s.parquet", testPath, fg.ID, stats.CommitID))
		require.NoError(t, err)
		assert.NotEmpty(t, b)
	}
	assert.Equal(t, int64(100), totalRows)
}

func TestWriteBatchUpdatesRewriteFileGroup(t *testing.T) {
	ms := newMemMetaStore()
	ms.seed("testns", testPath, bucket.FileGroup{ID: "file1", Bytes: 5 * 1024 * 1024, Rows: 5000})
	ds, err := datastore.NewDiskDataStore(t.TempDir())
	require.NoError(t, err)
	w := writer.NewWriter(ms, ds)

	records := insertRecords(2)
	for i := 0; i < 3; i++ {
		records = append(records, record.Record{
			Key:      record.Key{RecordKey: fmt.Sprintf("u-%d", i), PartitionPath: testPath},
			Location: &record.Location{CommitID: "001", FileID: "file1"},
			Row:      map[string]any{"id": fmt.Sprintf("u-%d", i), "val": float64(i)},
		})
	}

	stats, err := w.WriteBatch(context.Background(), "testns", records, testConfig())
	require.NoError(t, err)

	assert.Equal(t, int64(5), stats.NumRows)
	assert.Equal(t, int64(2), stats.NumFiles)
	assert.Equal(t, int64(1), stats.UpdateBuckets)
	assert.Equal(t, int64(1), stats.InsertBuckets)

	groups, err := ms.ListFileGroups(context.Background(), "testns", testPath)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	for _, fg := range groups {
		if fg.ID == "file1" {
			// rewritten copy-on-write, size reflects the new file
			assert.Equal(t, int64(3), fg.Rows)
			assert.Less(t, fg.Bytes, int64(5*1024*1024))
		}
	}
}

func TestWriteBatchAbortsOnStaleSnapshot(t *testing.T) {
	ms := newMemMetaStore()
	ds, err := datastore.NewDiskDataStore(t.TempDir())
	require.NoError(t, err)
	w := writer.NewWriter(ms, ds)

	records := []record.Record{{
		Key:      record.Key{RecordKey: "u-0", PartitionPath: testPath},
		Location: &record.Location{CommitID: "001", FileID: "ghost"},
		Row:      map[string]any{"id": "u-0"},
	}}

	_, err = w.WriteBatch(context.Background(), "testns", records, testConfig())
	require.ErrorIs(t, err, bucket.ErrUnknownFileGroup)

	// nothing was registered
	groups, err := ms.ListFileGroups(context.Background(), "testns", testPath)
	require.NoError(t, err)
	assert.Empty(t, groups)
}
