package bucket

type BucketType string

var (
	// Update buckets rewrite an existing file group (updates routed to
	// it, and/or inserts absorbed into its spare capacity)
	Update BucketType = "UPDATE"
	// Insert buckets open a brand-new file group
	Insert BucketType = "INSERT"
)

type (
	// BucketInfo describes one planned output bucket.
	BucketInfo struct {
		Type BucketType
		// FileIDPrefix is the existing file group ID for UPDATE buckets,
		// or a freshly generated ID for new INSERT buckets
		FileIDPrefix string
	}

	// InsertBucket is one insert destination within a partition path.
	// Weight is the fraction of the path's insert records routed to it;
	// the weights of a path's insert buckets sum to 1.
	InsertBucket struct {
		BucketNumber int
		Weight       float64
	}

	// FileGroup is the size snapshot of an existing file group as
	// reported by the metastore at plan-build time. It is never
	// re-queried during a batch.
	FileGroup struct {
		ID    string
		Bytes int64
		Rows  int64
	}
)

// SizeEstimator reports the average serialized size of a record in
// bytes, sampled from the incoming batch. ok is false when there are
// too few records to produce an estimate.
type SizeEstimator interface {
	AvgRecordSizeBytes(k int) (size int64, ok bool)
}
