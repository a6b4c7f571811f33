package main

import (
	"github.com/floedb/floe/datastore"
	"github.com/floedb/floe/metastore"
	"github.com/floedb/floe/writer"
)

type (
	Floe struct {
		MetaStore metastore.MetaStore
		DataStore datastore.DataStore
		Writer    *writer.Writer
	}
)

func NewFloe(ms metastore.MetaStore, ds datastore.DataStore) (*Floe, error) {
	floe := &Floe{
		MetaStore: ms,
		DataStore: ds,
		Writer:    writer.NewWriter(ms, ds),
	}

	return floe, nil
}
