package metastore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/floedb/floe/bucket"
	"github.com/floedb/floe/utils"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

type (
	RedisMetaStore struct {
		client *redis.Client
	}

	redisFileGroup struct {
		Bytes   int64
		Rows    int64
		Columns []string
		Enabled bool
	}
)

func NewRedisMetaStore(ctx context.Context) (*RedisMetaStore, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Msg("connecting to redis metastore")
	rms := &RedisMetaStore{
		client: redis.NewClient(&redis.Options{
			Addr:        utils.REDIS_ADDR,
			Password:    utils.REDIS_PASSWORD,
			DB:          0,
			DialTimeout: time.Second * 3,
		}),
	}

	// Ping test first to ensure valid connection
	if utils.GetEnvOrDefault("REDIS_PING_TEST", "0") == "1" {
		logger.Debug().Msg("running redis ping test")
		s := time.Now()
		_, err := rms.client.Ping(ctx).Result()
		if err != nil {
			rms.client.Close()
			return nil, fmt.Errorf("error pinging redis: %w", err)
		}
		logger.Debug().Msgf("redis ping test successful in %s", time.Since(s))
	}

	return rms, nil
}

func (rms *RedisMetaStore) fileGroupKey(namespace, partitionPath string) string {
	return "fg_" + namespace + "/" + partitionPath
}

func (rms *RedisMetaStore) ListFileGroups(ctx context.Context, namespace, partitionPath string) ([]bucket.FileGroup, error) {
	logger := zerolog.Ctx(ctx)

	var cursorPos uint64 = 0
	var returnedCursor uint64 = 1
	groups := make([]bucket.FileGroup, 0)

	// Loop until we have all the results
	for returnedCursor != 0 {
		logger.Debug().Msgf("running redis HSCAN with cursor %d", cursorPos)
		rawGroups, newCursor, err := rms.client.HScan(ctx, rms.fileGroupKey(namespace, partitionPath), cursorPos, "", 0).Result()
		if err != nil {
			return nil, fmt.Errorf("error in redis HSCAN: %w", err)
		}

		// HSCAN returns alternating field/value pairs
		for i := 0; i+1 < len(rawGroups); i += 2 {
			fileID := rawGroups[i]
			var rfg redisFileGroup
			if err := json.Unmarshal([]byte(rawGroups[i+1]), &rfg); err != nil {
				return nil, fmt.Errorf("error unmarshalling file group ID '%s' under partition path '%s': %w", fileID, partitionPath, err)
			}
			if !rfg.Enabled {
				continue
			}
			groups = append(groups, bucket.FileGroup{
				ID:    fileID,
				Bytes: rfg.Bytes,
				Rows:  rfg.Rows,
			})
		}

		returnedCursor = newCursor
		cursorPos = newCursor
	}

	return groups, nil
}

func (rms *RedisMetaStore) CreateFileGroup(ctx context.Context, namespace, partitionPath string, fg bucket.FileGroup, columns []string) error {
	jsonBytes, err := json.Marshal(redisFileGroup{
		Bytes:   fg.Bytes,
		Rows:    fg.Rows,
		Columns: columns,
		Enabled: true,
	})
	if err != nil {
		return fmt.Errorf("error in json.Marshal: %w", err)
	}

	created, err := rms.client.HSetNX(ctx, rms.fileGroupKey(namespace, partitionPath), fg.ID, string(jsonBytes)).Result()
	if err != nil {
		return fmt.Errorf("error in redis HSETNX: %w", err)
	}
	if !created {
		return fmt.Errorf("file group %q in partition path %q: %w", fg.ID, partitionPath, ErrFileGroupExists)
	}

	return nil
}

func (rms *RedisMetaStore) SetFileGroupSize(ctx context.Context, namespace, partitionPath, fileID string, bytes, rows int64) error {
	key := rms.fileGroupKey(namespace, partitionPath)

	raw, err := rms.client.HGet(ctx, key, fileID).Result()
	if err == redis.Nil {
		return fmt.Errorf("file group %q in partition path %q: %w", fileID, partitionPath, ErrFileGroupNotFound)
	} else if err != nil {
		return fmt.Errorf("error in redis HGET: %w", err)
	}

	var rfg redisFileGroup
	if err := json.Unmarshal([]byte(raw), &rfg); err != nil {
		return fmt.Errorf("error unmarshalling file group ID '%s': %w", fileID, err)
	}
	rfg.Bytes = bytes
	rfg.Rows = rows

	jsonBytes, err := json.Marshal(rfg)
	if err != nil {
		return fmt.Errorf("error in json.Marshal: %w", err)
	}
	if _, err := rms.client.HSet(ctx, key, fileID, string(jsonBytes)).Result(); err != nil {
		return fmt.Errorf("error in redis HSET: %w", err)
	}

	return nil
}

func (rms *RedisMetaStore) Shutdown(_ context.Context) error {
	err := rms.client.Close()
	if err != nil {
		return fmt.Errorf("error closing redis client: %w", err)
	}
	return nil
}
