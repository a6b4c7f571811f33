package http_server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danthegoodman1/gojsonutils"
	"github.com/floedb/floe/bucket"
	"github.com/floedb/floe/partitioner"
	"github.com/floedb/floe/record"
	"github.com/floedb/floe/utils"
)

type (
	WriteReqBody struct {
		// Line-delimited JSON (NDJSON)
		RowsString *string
		// Array of JSON
		Rows        []*map[string]any
		Partitioner []partitioner.PartitionPlan
		// KeyColumn is the column holding the record key
		KeyColumn string `validate:"required"`
		Config    *ConfigOverrides
	}

	// ConfigOverrides are per-request bucket assigner knobs layered
	// over the environment defaults.
	ConfigOverrides struct {
		SmallFileLimitBytes     *int64
		MaxFileSizeBytes        *int64
		InsertSplitSize         *int64
		AutoTuneInsertSplits    *bool
		RecordSizeEstimateBytes *int64
	}

	PlanResponse struct {
		NumPartitions int
		Buckets       []PlanBucket
		InsertBuckets map[string][]bucket.InsertBucket
	}

	PlanBucket struct {
		Index        int
		Type         bucket.BucketType
		FileIDPrefix string
	}
)

// Reserved row fields marking a record as an update to an existing file
// group. Stripped before the row is written.
const (
	locationFileIDField   = "_fileId"
	locationCommitIDField = "_commitId"
)

var (
	ErrNotFlatMap = errors.New("not a flat map")
	ErrMissingKey = errors.New("row is missing the key column")
)

func (s *HTTPServer) WriteHandler(c *CustomContext) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*60)
	defer cancel()

	var reqBody WriteReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	records, err := buildRecords(reqBody)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if len(records) == 0 {
		return c.String(http.StatusBadRequest, "no rows found")
	}

	stats, err := s.Writer.WriteBatch(ctx, c.Param("ns"), records, assignerConfig(reqBody.Config))
	if errors.Is(err, bucket.ErrInvalidConfig) {
		return c.String(http.StatusBadRequest, err.Error())
	} else if errors.Is(err, bucket.ErrUnknownFileGroup) {
		// stale or corrupted view of table state, nothing was written
		return c.String(http.StatusConflict, err.Error())
	} else if err != nil {
		return c.InternalError(err, "error writing batch")
	}

	return c.JSON(http.StatusAccepted, stats)
}

// PlanHandler is the dry-run surface: builds the bucket plan for the
// batch and returns it without opening a single file.
func (s *HTTPServer) PlanHandler(c *CustomContext) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*30)
	defer cancel()

	var reqBody WriteReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}

	records, err := buildRecords(reqBody)
	if err != nil {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if len(records) == 0 {
		return c.String(http.StatusBadRequest, "no rows found")
	}

	plan, err := s.Writer.PlanBatch(ctx, c.Param("ns"), records, assignerConfig(reqBody.Config))
	if errors.Is(err, bucket.ErrInvalidConfig) {
		return c.String(http.StatusBadRequest, err.Error())
	} else if errors.Is(err, bucket.ErrUnknownFileGroup) {
		return c.String(http.StatusConflict, err.Error())
	} else if err != nil {
		return c.InternalError(err, "error planning batch")
	}

	res := PlanResponse{
		NumPartitions: plan.NumPartitions(),
		InsertBuckets: make(map[string][]bucket.InsertBucket),
	}
	for i := 0; i < plan.NumPartitions(); i++ {
		info := plan.GetBucketInfo(i)
		res.Buckets = append(res.Buckets, PlanBucket{
			Index:        i,
			Type:         info.Type,
			FileIDPrefix: info.FileIDPrefix,
		})
	}
	for _, path := range plan.PartitionPaths() {
		res.InsertBuckets[path] = utils.ArrayOrEmpty(plan.GetInsertBuckets(path))
	}

	return c.JSON(http.StatusOK, res)
}

func assignerConfig(overrides *ConfigOverrides) bucket.Config {
	cfg := bucket.DefaultConfig()
	if overrides == nil {
		return cfg
	}
	cfg.SmallFileLimitBytes = utils.Deref(overrides.SmallFileLimitBytes, cfg.SmallFileLimitBytes)
	cfg.MaxFileSizeBytes = utils.Deref(overrides.MaxFileSizeBytes, cfg.MaxFileSizeBytes)
	cfg.InsertSplitSize = utils.Deref(overrides.InsertSplitSize, cfg.InsertSplitSize)
	cfg.AutoTuneInsertSplits = utils.Deref(overrides.AutoTuneInsertSplits, cfg.AutoTuneInsertSplits)
	cfg.RecordSizeEstimateBytes = utils.Deref(overrides.RecordSizeEstimateBytes, cfg.RecordSizeEstimateBytes)
	return cfg
}

// buildRecords extracts flat rows from the request (NDJSON or JSON
// array), computes each row's partition path, and lifts the reserved
// location fields into record locations.
func buildRecords(reqBody WriteReqBody) ([]record.Record, error) {
	var records []record.Record

	appendRow := func(raw map[string]any) error {
		flat, err := gojsonutils.Flatten(raw, nil)
		if err != nil {
			return fmt.Errorf("error flattening JSON map: %w", err)
		}
		flatMap, ok := flat.(map[string]any)
		if !ok {
			return fmt.Errorf("got a non flat map %+v: %w", flat, ErrNotFlatMap)
		}

		keyVal, exists := flatMap[reqBody.KeyColumn]
		if !exists {
			return fmt.Errorf("column %q: %w", reqBody.KeyColumn, ErrMissingKey)
		}

		var location *record.Location
		if fileID, isStr := flatMap[locationFileIDField].(string); isStr && fileID != "" {
			commitID, _ := flatMap[locationCommitIDField].(string)
			location = &record.Location{
				CommitID: commitID,
				FileID:   fileID,
			}
		}
		delete(flatMap, locationFileIDField)
		delete(flatMap, locationCommitIDField)

		partitionPath, err := partitioner.GetRowPartition(flatMap, reqBody.Partitioner)
		if err != nil {
			return fmt.Errorf("error getting partition for row: %w", err)
		}

		records = append(records, record.Record{
			Key: record.Key{
				RecordKey:     fmt.Sprint(keyVal),
				PartitionPath: partitionPath,
			},
			Location: location,
			Row:      flatMap,
		})
		return nil
	}

	if reqBody.RowsString != nil {
		ndJSONScanner := bufio.NewScanner(strings.NewReader(*reqBody.RowsString))
		for ndJSONScanner.Scan() {
			var raw any
			if err := json.Unmarshal([]byte(ndJSONScanner.Text()), &raw); err != nil {
				return nil, fmt.Errorf("error in json.Unmarshal: %w", err)
			}
			jsonMap, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("line was not a JSON object: %w", ErrNotFlatMap)
			}
			if err := appendRow(jsonMap); err != nil {
				return nil, err
			}
		}
	} else {
		for _, row := range reqBody.Rows {
			// JSON nulls in the array decode to nil pointers
			if row == nil {
				continue
			}
			if err := appendRow(*row); err != nil {
				return nil, err
			}
		}
	}

	return records, nil
}
