package record

type (
	// Key identifies a record within a table: the record key itself plus
	// the partition path it belongs to. Partition paths are independent
	// planning units, no record ever crosses one.
	Key struct {
		RecordKey     string
		PartitionPath string
	}

	// Location points at the file group currently holding the latest
	// version of a record, and the commit that wrote it. A record
	// carrying a Location is an update, everything else is an insert.
	Location struct {
		CommitID string
		FileID   string
	}

	Record struct {
		Key      Key
		Location *Location
		// Row is the flattened column values of the record
		Row map[string]any
	}
)

func (r Record) IsUpdate() bool {
	return r.Location != nil
}
