package writer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/floedb/floe/bucket"
	"github.com/floedb/floe/datastore"
	"github.com/floedb/floe/gologger"
	"github.com/floedb/floe/metastore"
	"github.com/floedb/floe/pqschema"
	"github.com/floedb/floe/record"
	"github.com/floedb/floe/sampler"
	"github.com/floedb/floe/utils"
	"github.com/floedb/floe/workload"
	pqwriter "github.com/xitongsys/parquet-go/writer"
	"golang.org/x/sync/errgroup"
)

var logger = gologger.NewLogger()

type (
	// Writer runs the full write path of a batch: profile the records,
	// plan the buckets against the metastore snapshot, shuffle every
	// record to its bucket, then serialize and commit one file per
	// bucket.
	Writer struct {
		Meta metastore.MetaStore
		Data datastore.DataStore
	}

	BatchStats struct {
		NumRows       int64
		NumFiles      int64
		BytesWritten  int64
		UpdateBuckets int64
		InsertBuckets int64
		CommitID      string
		TimeMS        int64
	}
)

func NewWriter(ms metastore.MetaStore, ds datastore.DataStore) *Writer {
	return &Writer{
		Meta: ms,
		Data: ds,
	}
}

// PlanBatch builds the immutable bucket plan for a batch: one workload
// profile pass, one metastore listing per partition path, one planning
// pass. No file is touched.
func (w *Writer) PlanBatch(ctx context.Context, namespace string, records []record.Record, cfg bucket.Config) (*bucket.Plan, error) {
	profile := workload.BuildProfile(records)

	fileGroups := make(map[string][]bucket.FileGroup)
	for _, path := range profile.PartitionPaths() {
		groups, err := w.Meta.ListFileGroups(ctx, namespace, path)
		if err != nil {
			return nil, fmt.Errorf("error in ListFileGroups for %q: %w", path, err)
		}
		fileGroups[path] = groups
	}

	plan, err := bucket.NewPlan(profile, fileGroups, sampler.NewBatchSampler(records), cfg)
	if err != nil {
		return nil, fmt.Errorf("error in bucket.NewPlan: %w", err)
	}
	return plan, nil
}

// WriteBatch plans the batch and then writes it: records are routed to
// their buckets concurrently (the plan is immutable, lookups need no
// locks), then every non-empty bucket serializes its rows to parquet,
// uploads the file, and commits its metadata. Planning errors abort
// before any file is opened.
func (w *Writer) WriteBatch(ctx context.Context, namespace string, records []record.Record, cfg bucket.Config) (BatchStats, error) {
	start := time.Now()

	plan, err := w.PlanBatch(ctx, namespace, records, cfg)
	if err != nil {
		return BatchStats{}, err
	}

	assignments, err := routeRecords(plan, records)
	if err != nil {
		return BatchStats{}, err
	}

	// group record indexes per bucket
	byBucket := make([][]int, plan.NumPartitions())
	for i, b := range assignments {
		byBucket[b] = append(byBucket[b], i)
	}

	stats := BatchStats{
		CommitID: utils.GenCommitID(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for bucketIdx, recIdxs := range byBucket {
		if len(recIdxs) == 0 {
			continue
		}
		bucketIdx, recIdxs := bucketIdx, recIdxs
		g.Go(func() error {
			return w.writeBucket(gctx, namespace, plan, records, bucketIdx, recIdxs, &stats)
		})
	}
	if err := g.Wait(); err != nil {
		return BatchStats{}, err
	}

	for i := 0; i < plan.NumPartitions(); i++ {
		if plan.GetBucketInfo(i).Type == bucket.Update {
			stats.UpdateBuckets++
		} else {
			stats.InsertBuckets++
		}
	}
	stats.TimeMS = time.Since(start).Milliseconds()

	logger.Debug().Str("namespace", namespace).Str("commitID", stats.CommitID).Int64("rows", stats.NumRows).Int64("files", stats.NumFiles).Int64("bytes", stats.BytesWritten).Msg("wrote batch")

	return stats, nil
}

// routeRecords computes every record's bucket index, sharded across
// CPUs. Pure lookups into the shared plan.
func routeRecords(plan *bucket.Plan, records []record.Record) ([]int, error) {
	assignments := make([]int, len(records))

	shards := runtime.NumCPU()
	chunk := (len(records) + shards - 1) / shards
	if chunk < 1 {
		chunk = 1
	}

	var g errgroup.Group
	for s := 0; s*chunk < len(records); s++ {
		lo := s * chunk
		hi := lo + chunk
		if hi > len(records) {
			hi = len(records)
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				idx, err := plan.BucketFor(records[i].Key, records[i].Location)
				if err != nil {
					return fmt.Errorf("error in plan.BucketFor: %w", err)
				}
				assignments[i] = idx
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return assignments, nil
}

func (w *Writer) writeBucket(ctx context.Context, namespace string, plan *bucket.Plan, records []record.Record, bucketIdx int, recIdxs []int, stats *BatchStats) error {
	info := plan.GetBucketInfo(bucketIdx)
	partitionPath := records[recIdxs[0]].Key.PartitionPath

	accumulator := pqschema.NewAccumulator()
	for _, i := range recIdxs {
		accumulator.WriteRow(records[i].Row)
	}
	parquetSchema, err := accumulator.SchemaString()
	if err != nil {
		return fmt.Errorf("error in SchemaString: %w", err)
	}

	var b bytes.Buffer
	pw, err := pqwriter.NewJSONWriterFromWriter(parquetSchema, &b, 4)
	if err != nil {
		return fmt.Errorf("error in NewJSONWriterFromWriter: %w", err)
	}
	for _, i := range recIdxs {
		rowBytes, err := json.Marshal(records[i].Row)
		if err != nil {
			return fmt.Errorf("error in json.Marshal of flat row: %w", err)
		}
		if err := pw.Write(string(rowBytes)); err != nil {
			return fmt.Errorf("error in pw.Write for row %+v: %w", string(rowBytes), err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("error in pw.WriteStop: %w", err)
	}

	fileKey := fmt.Sprintf("ns=%s/%s/%s_%s.parquet", namespace, partitionPath, info.FileIDPrefix, stats.CommitID)
	written, err := w.Data.WriteFile(ctx, fileKey, &b)
	if err != nil {
		return fmt.Errorf("error in WriteFile: %w", err)
	}

	rows := int64(len(recIdxs))
	if info.Type == bucket.Update {
		// copy-on-write rewrite of an existing file group under a new
		// commit token
		err = w.Meta.SetFileGroupSize(ctx, namespace, partitionPath, info.FileIDPrefix, written, rows)
	} else {
		err = w.Meta.CreateFileGroup(ctx, namespace, partitionPath, bucket.FileGroup{
			ID:    info.FileIDPrefix,
			Bytes: written,
			Rows:  rows,
		}, accumulator.ColumnNames())
	}
	if err != nil {
		return fmt.Errorf("error committing file group metadata: %w", err)
	}

	atomic.AddInt64(&stats.NumRows, rows)
	atomic.AddInt64(&stats.NumFiles, 1)
	atomic.AddInt64(&stats.BytesWritten, written)

	return nil
}
