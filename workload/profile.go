package workload

import (
	"github.com/floedb/floe/record"
)

type (
	// Stat aggregates the records of a single partition path.
	Stat struct {
		Inserts int64
		Updates int64
		// UpdateLocationCounts is the number of update records per
		// current file group ID
		UpdateLocationCounts map[string]int64
	}

	// Profile holds the per-partition-path workload stats of one
	// incoming batch. Built in a single pass, read-only afterwards.
	Profile struct {
		stats map[string]*Stat

		totalInserts int64
		totalUpdates int64
	}
)

// BuildProfile scans the batch once and counts inserts and updates per
// partition path, plus updates per current file group. Partition paths
// with no records simply never appear.
func BuildProfile(records []record.Record) *Profile {
	p := &Profile{
		stats: make(map[string]*Stat),
	}

	for _, rec := range records {
		stat, exists := p.stats[rec.Key.PartitionPath]
		if !exists {
			stat = &Stat{
				UpdateLocationCounts: make(map[string]int64),
			}
			p.stats[rec.Key.PartitionPath] = stat
		}

		if rec.IsUpdate() {
			stat.Updates++
			stat.UpdateLocationCounts[rec.Location.FileID]++
			p.totalUpdates++
		} else {
			stat.Inserts++
			p.totalInserts++
		}
	}

	return p
}

// PartitionPaths returns every partition path present in the batch, in
// no particular order.
func (p *Profile) PartitionPaths() []string {
	paths := make([]string, 0, len(p.stats))
	for path := range p.stats {
		paths = append(paths, path)
	}
	return paths
}

func (p *Profile) Stat(partitionPath string) (Stat, bool) {
	stat, exists := p.stats[partitionPath]
	if !exists {
		return Stat{}, false
	}
	return *stat, true
}

func (p *Profile) TotalInserts() int64 {
	return p.totalInserts
}

func (p *Profile) TotalUpdates() int64 {
	return p.totalUpdates
}
