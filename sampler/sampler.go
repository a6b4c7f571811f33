package sampler

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/floedb/floe/gologger"
	"github.com/floedb/floe/pqschema"
	"github.com/floedb/floe/record"
	"github.com/xitongsys/parquet-go/writer"
)

var logger = gologger.NewLogger()

// BatchSampler estimates the average serialized record size of a batch
// by writing a handful of sampled rows through a real parquet writer
// into memory. Used by the bucket assigner when auto-tuning insert
// splits.
type BatchSampler struct {
	rows []map[string]any
}

func NewBatchSampler(records []record.Record) *BatchSampler {
	rows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		if rec.Row != nil {
			rows = append(rows, rec.Row)
		}
	}
	return &BatchSampler{rows: rows}
}

// AvgRecordSizeBytes serializes up to k evenly spaced rows and reports
// total bytes / rows written. ok is false when the batch is too small
// to sample or serialization yields nothing, callers fall back to their
// configured split size.
func (s *BatchSampler) AvgRecordSizeBytes(k int) (int64, bool) {
	if k <= 0 || len(s.rows) == 0 {
		return 0, false
	}
	if k > len(s.rows) {
		k = len(s.rows)
	}

	stride := len(s.rows) / k
	if stride < 1 {
		stride = 1
	}
	sample := make([]map[string]any, 0, k)
	for i := 0; i < len(s.rows) && len(sample) < k; i += stride {
		sample = append(sample, s.rows[i])
	}

	size, err := serializedSize(sample)
	if err != nil {
		logger.Warn().Err(err).Msg("record size sampling failed, falling back to configured split size")
		return 0, false
	}
	if size <= 0 {
		return 0, false
	}
	return size / int64(len(sample)), true
}

func serializedSize(rows []map[string]any) (int64, error) {
	accumulator := pqschema.NewAccumulator()
	for _, row := range rows {
		accumulator.WriteRow(row)
	}
	parquetSchema, err := accumulator.SchemaString()
	if err != nil {
		return 0, fmt.Errorf("error in SchemaString: %w", err)
	}

	var b bytes.Buffer
	pw, err := writer.NewJSONWriterFromWriter(parquetSchema, &b, 1)
	if err != nil {
		return 0, fmt.Errorf("error in NewJSONWriterFromWriter: %w", err)
	}
	for _, row := range rows {
		rowBytes, err := json.Marshal(row)
		if err != nil {
			return 0, fmt.Errorf("error in json.Marshal of sample row: %w", err)
		}
		if err := pw.Write(string(rowBytes)); err != nil {
			return 0, fmt.Errorf("error in pw.Write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return 0, fmt.Errorf("error in pw.WriteStop: %w", err)
	}

	return int64(b.Len()), nil
}
