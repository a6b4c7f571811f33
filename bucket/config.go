package bucket

import (
	"fmt"

	"github.com/floedb/floe/utils"
)

var ErrInvalidConfig = utils.PermError("invalid bucket assigner config")

type Config struct {
	// SmallFileLimitBytes is the target size for existing file groups:
	// files under it are eligible to absorb inserts. 0 disables
	// absorption entirely.
	SmallFileLimitBytes int64
	// MaxFileSizeBytes is the hard cap for any output file
	MaxFileSizeBytes int64
	// InsertSplitSize is the max record count per new insert bucket
	// when auto-tuning is off
	InsertSplitSize int64
	// AutoTuneInsertSplits sizes new insert buckets from the sampled
	// average record size instead of InsertSplitSize
	AutoTuneInsertSplits bool
	// RecordSizeEstimateBytes converts spare byte capacity into record
	// counts when no sample is available
	RecordSizeEstimateBytes int64
}

// DefaultConfig reads the engine knobs from the environment.
func DefaultConfig() Config {
	return Config{
		SmallFileLimitBytes:     utils.GetEnvOrDefaultInt("FLOE_SMALL_FILE_LIMIT_BYTES", 100*1024*1024),
		MaxFileSizeBytes:        utils.GetEnvOrDefaultInt("FLOE_MAX_FILE_SIZE_BYTES", 120*1024*1024),
		InsertSplitSize:         utils.GetEnvOrDefaultInt("FLOE_INSERT_SPLIT_SIZE", 500_000),
		AutoTuneInsertSplits:    utils.GetEnvOrDefault("FLOE_AUTO_TUNE_INSERT_SPLITS", "0") == "1",
		RecordSizeEstimateBytes: utils.GetEnvOrDefaultInt("FLOE_RECORD_SIZE_ESTIMATE_BYTES", 1024),
	}
}

func (c Config) Validate() error {
	if c.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("MaxFileSizeBytes must be positive, got %d: %w", c.MaxFileSizeBytes, ErrInvalidConfig)
	}
	if c.SmallFileLimitBytes < 0 {
		return fmt.Errorf("SmallFileLimitBytes must not be negative, got %d: %w", c.SmallFileLimitBytes, ErrInvalidConfig)
	}
	if !c.AutoTuneInsertSplits && c.InsertSplitSize <= 0 {
		return fmt.Errorf("InsertSplitSize must be positive when auto-tuning is off, got %d: %w", c.InsertSplitSize, ErrInvalidConfig)
	}
	return nil
}

func (c Config) recordSizeEstimate() int64 {
	if c.RecordSizeEstimateBytes > 0 {
		return c.RecordSizeEstimateBytes
	}
	return 1024
}
