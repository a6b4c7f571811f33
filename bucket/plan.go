package bucket

import (
	"fmt"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/floedb/floe/record"
	"github.com/floedb/floe/utils"
	"github.com/floedb/floe/workload"
)

var (
	// ErrUnknownFileGroup means an update record references a file group
	// that the metadata snapshot does not know about. The table view is
	// corrupted or stale, the whole batch must abort.
	ErrUnknownFileGroup = utils.PermError("update references a file group missing from the metadata snapshot")

	// ErrNoInsertBuckets means an insert record arrived for a partition
	// path the plan holds no insert buckets for, i.e. the record was not
	// part of the profiled batch.
	ErrNoInsertBuckets = utils.PermError("no insert buckets planned for partition path")
)

// sampleSize is how many records the size estimator may look at when
// auto-tuning insert splits.
const sampleSize = 100

// Plan is the immutable output of the bucket assigner: every bucket the
// batch will write to, indexed densely across all partition paths, plus
// the routing tables BucketFor reads. Once built it is shared read-only
// across all writer workers.
type Plan struct {
	buckets []BucketInfo

	// per partition path
	insertBuckets map[string][]InsertBucket
	cumWeights    map[string][]float64
	updateBuckets map[string]map[string]int // fileID -> bucket index
}

// NewPlan runs the full planning pass and returns a complete plan or an
// error, never a partial plan. For every partition path in the profile:
// update buckets first (one per distinct update-target file group), then
// small-file absorption, then new insert buckets sized by the effective
// split size, with insert weights proportional to routed record counts.
func NewPlan(profile *workload.Profile, fileGroups map[string][]FileGroup, estimator SizeEstimator, cfg Config) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	avgRecordSize := cfg.recordSizeEstimate()
	insertsPerBucket := cfg.InsertSplitSize
	if cfg.AutoTuneInsertSplits && estimator != nil {
		if sampled, ok := estimator.AvgRecordSizeBytes(sampleSize); ok && sampled > 0 {
			avgRecordSize = sampled
			insertsPerBucket = cfg.MaxFileSizeBytes / avgRecordSize
			if insertsPerBucket < 1 {
				insertsPerBucket = 1
			}
		}
		// too few records to sample: keep the configured split size
	}
	if insertsPerBucket <= 0 {
		return nil, fmt.Errorf("effective insert split size %d: %w", insertsPerBucket, ErrInvalidConfig)
	}

	p := &Plan{
		insertBuckets: make(map[string][]InsertBucket),
		cumWeights:    make(map[string][]float64),
		updateBuckets: make(map[string]map[string]int),
	}

	// sorted for stable bucket indices across runs
	paths := profile.PartitionPaths()
	sort.Strings(paths)

	for _, path := range paths {
		stat, _ := profile.Stat(path)

		groupsByID := make(map[string]FileGroup, len(fileGroups[path]))
		for _, fg := range fileGroups[path] {
			groupsByID[fg.ID] = fg
		}

		updateToBucket := make(map[string]int)
		p.updateBuckets[path] = updateToBucket

		// one UPDATE bucket per distinct update-target file group, so at
		// most one writer ever touches an existing file group per batch
		updateTargets := make([]string, 0, len(stat.UpdateLocationCounts))
		for fileID := range stat.UpdateLocationCounts {
			updateTargets = append(updateTargets, fileID)
		}
		sort.Strings(updateTargets)
		for _, fileID := range updateTargets {
			if _, exists := groupsByID[fileID]; !exists {
				return nil, fmt.Errorf("file group %q in partition path %q: %w", fileID, path, ErrUnknownFileGroup)
			}
			updateToBucket[fileID] = p.addBucket(BucketInfo{Type: Update, FileIDPrefix: fileID})
		}

		if stat.Inserts == 0 {
			continue
		}

		unassigned := stat.Inserts
		var inserts []InsertBucket

		// absorb inserts into existing small files before opening new
		// ones, ascending file ID, never past the small-file target or
		// the hard file size cap
		targetBytes := cfg.SmallFileLimitBytes
		if cfg.MaxFileSizeBytes < targetBytes {
			targetBytes = cfg.MaxFileSizeBytes
		}
		for _, fg := range smallFiles(fileGroups[path], cfg.SmallFileLimitBytes) {
			if unassigned <= 0 {
				break
			}
			capRecords := (targetBytes - fg.Bytes) / avgRecordSize
			if capRecords <= 0 {
				continue
			}
			assign := capRecords
			if unassigned < assign {
				assign = unassigned
			}

			idx, exists := updateToBucket[fg.ID]
			if !exists {
				// appending rewrites the existing file group, so this is
				// an UPDATE bucket even without update records
				idx = p.addBucket(BucketInfo{Type: Update, FileIDPrefix: fg.ID})
				updateToBucket[fg.ID] = idx
			}
			inserts = append(inserts, InsertBucket{
				BucketNumber: idx,
				Weight:       float64(assign) / float64(stat.Inserts),
			})
			unassigned -= assign
		}

		// whatever is left goes to brand-new file groups, the last one
		// unpadded
		if unassigned > 0 {
			numNew := (unassigned + insertsPerBucket - 1) / insertsPerBucket
			for i := int64(0); i < numNew; i++ {
				n := insertsPerBucket
				if i == numNew-1 {
					n = unassigned - insertsPerBucket*(numNew-1)
				}
				idx := p.addBucket(BucketInfo{Type: Insert, FileIDPrefix: utils.GenFileID()})
				inserts = append(inserts, InsertBucket{
					BucketNumber: idx,
					Weight:       float64(n) / float64(stat.Inserts),
				})
			}
		}

		p.insertBuckets[path] = inserts

		cum := make([]float64, len(inserts))
		running := 0.0
		for i, b := range inserts {
			running += b.Weight
			cum[i] = running
		}
		// pin the top so a hash landing in the final float sliver still
		// resolves to the last bucket
		cum[len(cum)-1] = 1.0
		p.cumWeights[path] = cum
	}

	return p, nil
}

func (p *Plan) addBucket(info BucketInfo) int {
	p.buckets = append(p.buckets, info)
	return len(p.buckets) - 1
}

func smallFiles(groups []FileGroup, smallFileLimitBytes int64) []FileGroup {
	var smalls []FileGroup
	for _, fg := range groups {
		if fg.Bytes > 0 && fg.Bytes < smallFileLimitBytes {
			smalls = append(smalls, fg)
		}
	}
	sort.Slice(smalls, func(i, j int) bool {
		return smalls[i].ID < smalls[j].ID
	})
	return smalls
}

// NumPartitions is the total bucket count across all partition paths.
func (p *Plan) NumPartitions() int {
	return len(p.buckets)
}

func (p *Plan) GetBucketInfo(bucketIndex int) BucketInfo {
	return p.buckets[bucketIndex]
}

func (p *Plan) GetInsertBuckets(partitionPath string) []InsertBucket {
	return p.insertBuckets[partitionPath]
}

// PartitionPaths returns every partition path the plan holds buckets
// for, sorted.
func (p *Plan) PartitionPaths() []string {
	seen := make(map[string]bool, len(p.insertBuckets))
	for path := range p.insertBuckets {
		seen[path] = true
	}
	for path, buckets := range p.updateBuckets {
		if len(buckets) > 0 {
			seen[path] = true
		}
	}
	paths := make([]string, 0, len(seen))
	for path := range seen {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// BucketFor routes one record to its bucket index. Updates go to the
// bucket bound to their current file group. Inserts pick a weighted
// bucket by hashing the record key into the cumulative weight table, so
// the choice is pure and stable for the same key within this plan and
// safe for arbitrary concurrent calls.
func (p *Plan) BucketFor(key record.Key, currentLocation *record.Location) (int, error) {
	if currentLocation != nil {
		idx, exists := p.updateBuckets[key.PartitionPath][currentLocation.FileID]
		if !exists {
			return 0, fmt.Errorf("file group %q in partition path %q: %w", currentLocation.FileID, key.PartitionPath, ErrUnknownFileGroup)
		}
		return idx, nil
	}

	inserts := p.insertBuckets[key.PartitionPath]
	if len(inserts) == 0 {
		return 0, fmt.Errorf("partition path %q: %w", key.PartitionPath, ErrNoInsertBuckets)
	}

	r := float64(xxhash.Sum64String(key.RecordKey)) / float64(math.MaxUint64)
	cum := p.cumWeights[key.PartitionPath]
	i := sort.Search(len(cum), func(i int) bool {
		return cum[i] > r
	})
	if i >= len(inserts) {
		i = len(inserts) - 1
	}
	return inserts[i].BucketNumber, nil
}
