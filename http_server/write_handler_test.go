package http_server

import (
	"testing"

	"github.com/floedb/floe/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRecordsSkipsNullRows(t *testing.T) {
	// a null element in the rows array decodes to a nil pointer
	reqBody := WriteReqBody{
		Rows: []*map[string]any{
			utils.Ptr(map[string]any{"id": "a", "val": 1.0}),
			nil,
			utils.Ptr(map[string]any{"id": "b", "val": 2.0}),
		},
		KeyColumn: "id",
	}

	records, err := buildRecords(reqBody)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].Key.RecordKey)
	assert.Equal(t, "b", records[1].Key.RecordKey)
}

func TestBuildRecordsLiftsLocationFields(t *testing.T) {
	reqBody := WriteReqBody{
		Rows: []*map[string]any{
			utils.Ptr(map[string]any{"id": "a", "_fileId": "file1", "_commitId": "c1"}),
		},
		KeyColumn: "id",
	}

	records, err := buildRecords(reqBody)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Location)
	assert.Equal(t, "file1", records[0].Location.FileID)
	assert.Equal(t, "c1", records[0].Location.CommitID)
	assert.NotContains(t, records[0].Row, "_fileId")
	assert.NotContains(t, records[0].Row, "_commitId")
}

func TestBuildRecordsMissingKeyColumn(t *testing.T) {
	reqBody := WriteReqBody{
		Rows:      []*map[string]any{utils.Ptr(map[string]any{"other": "x"})},
		KeyColumn: "id",
	}

	_, err := buildRecords(reqBody)
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestBuildRecordsNDJSON(t *testing.T) {
	reqBody := WriteReqBody{
		RowsString: utils.Ptr("{\"id\": \"a\"}\n{\"id\": \"b\"}"),
		KeyColumn:  "id",
	}

	records, err := buildRecords(reqBody)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Nil(t, records[0].Location)
}
