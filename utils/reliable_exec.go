package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UltimateTournament/backoff/v4"
	"github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgx"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

type permanentError interface {
	IsPermanent() bool
}

// ReliableExec acquires a pool connection and runs f with retries until
// ctx dies, f succeeds, or f returns a permanent error.
func ReliableExec(ctx context.Context, pool *pgxpool.Pool, tryTimeout time.Duration, f func(ctx context.Context, conn *pgxpool.Conn) error) error {
	return backoff.Retry(func() error {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("error acquiring pool connection: %w", err)
		}
		defer conn.Release()

		tryCtx, cancel := context.WithTimeout(ctx, tryTimeout)
		defer cancel()

		err = f(tryCtx, conn)
		if err != nil {
			var pErr permanentError
			if errors.As(err, &pErr) && pErr.IsPermanent() {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, backoff.WithContext(backoff.NewExponentialBackOff(), ctx))
}

// ReliableExecInTx is ReliableExec wrapped in a CRDB retryable transaction.
func ReliableExecInTx(ctx context.Context, pool *pgxpool.Pool, tryTimeout time.Duration, f func(ctx context.Context, tx pgx.Tx) error) error {
	return backoff.Retry(func() error {
		tryCtx, cancel := context.WithTimeout(ctx, tryTimeout)
		defer cancel()

		err := crdbpgx.ExecuteTx(tryCtx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
			return f(tryCtx, tx)
		})
		if err != nil {
			var pErr permanentError
			if errors.As(err, &pErr) && pErr.IsPermanent() {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, backoff.WithContext(backoff.NewExponentialBackOff(), ctx))
}
