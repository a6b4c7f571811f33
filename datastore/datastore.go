package datastore

import (
	"context"
	"io"

	"github.com/floedb/floe/gologger"
)

var (
	logger = gologger.NewLogger()
)

type (
	// DataStore is where the serialized column files live. The write
	// path only ever creates whole files, never appends.
	DataStore interface {
		// WriteFile stores the full byte stream under key and returns
		// the number of bytes written
		WriteFile(ctx context.Context, key string, byteStream io.Reader) (int64, error)

		// ReadFile fetches the full contents of a file
		ReadFile(ctx context.Context, key string) ([]byte, error)

		Shutdown(ctx context.Context) error
	}
)
