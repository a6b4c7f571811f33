package metastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/floedb/floe/bucket"
	"github.com/floedb/floe/utils"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4/pgxpool"
)

type CRDBMetaStore struct {
	pool *pgxpool.Pool
}

func NewCRDBMetaStore(pool *pgxpool.Pool) (*CRDBMetaStore, error) {
	return &CRDBMetaStore{
		pool: pool,
	}, nil
}

func (ms *CRDBMetaStore) ListFileGroups(ctx context.Context, namespace, partitionPath string) ([]bucket.FileGroup, error) {
	var groups []bucket.FileGroup
	err := utils.ReliableExec(ctx, ms.pool, time.Second*10, func(ctx context.Context, conn *pgxpool.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT id, bytes, rows
			FROM file_groups
			WHERE namespace = $1
			AND partition = $2
			AND enabled
		`, namespace, partitionPath)
		if err != nil {
			return fmt.Errorf("error selecting file groups: %w", err)
		}
		defer rows.Close()

		groups = groups[:0]
		for rows.Next() {
			var fg bucket.FileGroup
			if err := rows.Scan(&fg.ID, &fg.Bytes, &fg.Rows); err != nil {
				return fmt.Errorf("error scanning file group row: %w", err)
			}
			groups = append(groups, fg)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (ms *CRDBMetaStore) CreateFileGroup(ctx context.Context, namespace, partitionPath string, fg bucket.FileGroup, columns []string) error {
	var cols pgtype.TextArray
	if err := cols.Set(utils.ArrayOrEmpty(columns)); err != nil {
		return fmt.Errorf("error setting columns array: %w", err)
	}

	return utils.ReliableExec(ctx, ms.pool, time.Second*10, func(ctx context.Context, conn *pgxpool.Conn) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO file_groups (namespace, partition, id, enabled, bytes, rows, columns)
			VALUES ($1, $2, $3, true, $4, $5, $6)
		`, namespace, partitionPath, fg.ID, fg.Bytes, fg.Rows, &cols)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("file group %q in partition path %q: %w", fg.ID, partitionPath, ErrFileGroupExists)
			}
			return fmt.Errorf("error inserting file group: %w", err)
		}
		return nil
	})
}

func (ms *CRDBMetaStore) SetFileGroupSize(ctx context.Context, namespace, partitionPath, fileID string, bytes, rows int64) error {
	return utils.ReliableExec(ctx, ms.pool, time.Second*10, func(ctx context.Context, conn *pgxpool.Conn) error {
		tag, err := conn.Exec(ctx, `
			UPDATE file_groups
			SET bytes = $4, rows = $5, updated_at = now()
			WHERE namespace = $1
			AND partition = $2
			AND id = $3
		`, namespace, partitionPath, fileID, bytes, rows)
		if err != nil {
			return fmt.Errorf("error updating file group size: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("file group %q in partition path %q: %w", fileID, partitionPath, ErrFileGroupNotFound)
		}
		return nil
	})
}

func (ms *CRDBMetaStore) Shutdown(_ context.Context) error {
	ms.pool.Close()
	return nil
}
