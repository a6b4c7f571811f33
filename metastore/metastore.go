package metastore

import (
	"context"

	"github.com/floedb/floe/bucket"
	"github.com/floedb/floe/gologger"
	"github.com/floedb/floe/utils"
)

var (
	logger = gologger.NewLogger()

	ErrFileGroupExists   = utils.PermError("file group already exists")
	ErrFileGroupNotFound = utils.PermError("file group not found")
)

type (
	// MetaStore is the table metadata collaborator: it reports the
	// current file groups of a partition path (queried once per path at
	// plan-build time) and records the file groups a batch wrote.
	MetaStore interface {
		// ListFileGroups returns the live file groups of a partition
		// path with their current sizes
		ListFileGroups(ctx context.Context, namespace, partitionPath string) ([]bucket.FileGroup, error)

		// CreateFileGroup registers a brand-new file group after its
		// file has been written
		CreateFileGroup(ctx context.Context, namespace, partitionPath string, fg bucket.FileGroup, columns []string) error

		// SetFileGroupSize records the post-write size of a rewritten
		// file group
		SetFileGroupSize(ctx context.Context, namespace, partitionPath, fileID string, bytes, rows int64) error

		Shutdown(ctx context.Context) error
	}
)
