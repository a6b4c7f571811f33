package datastore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type (
	DiskDataStore struct {
		rootPath string
	}
)

func NewDiskDataStore(rootPath string) (*DiskDataStore, error) {
	dds := &DiskDataStore{
		rootPath: rootPath,
	}

	return dds, nil
}

func (dds *DiskDataStore) WriteFile(_ context.Context, key string, byteStream io.Reader) (int64, error) {
	path := filepath.Join(dds.rootPath, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("error in os.MkdirAll: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("error in os.Create: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, byteStream)
	if err != nil {
		return 0, fmt.Errorf("error in io.Copy: %w", err)
	}
	return n, nil
}

func (dds *DiskDataStore) ReadFile(_ context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(dds.rootPath, key))
	if err != nil {
		return nil, fmt.Errorf("error in os.ReadFile: %w", err)
	}
	return b, nil
}

func (dds *DiskDataStore) Shutdown(_ context.Context) error {
	return nil
}
