package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRecordFilePreservesAuthorOrder(t *testing.T) {
	path := writeRecords(t, t.TempDir(), `entity: account
records:
  - Revenue: "1250.50"
    Name: Acme
    AccountNumber: A-100
`)

	file, err := LoadRecordFile(path)
	require.NoError(t, err)
	require.Len(t, file.Records, 1)

	var names []string
	for _, p := range file.Records[0].Properties() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"Revenue", "Name", "AccountNumber"}, names)
}

func TestLoadRecordFileNullPropertyIsNil(t *testing.T) {
	path := writeRecords(t, t.TempDir(), `entity: account
records:
  - Name: Acme
    Description:
`)

	file, err := LoadRecordFile(path)
	require.NoError(t, err)

	v, ok := file.Records[0].Get("Description")
	require.True(t, ok)
	assert.Nil(t, v)
}

func TestLoadRecordFileRejectsScalarRecord(t *testing.T) {
	path := writeRecords(t, t.TempDir(), `entity: account
records:
  - just a string
`)

	_, err := LoadRecordFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a mapping")
}

func TestLoadRecordFileRejectsEmptyFile(t *testing.T) {
	path := writeRecords(t, t.TempDir(), `entity: account
records: []
`)

	_, err := LoadRecordFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no records")
}

func TestLoadRecordFileRejectsUnknownKeys(t *testing.T) {
	path := writeRecords(t, t.TempDir(), `entity: account
extra: true
records:
  - Name: Acme
`)

	_, err := LoadRecordFile(path)
	require.Error(t, err)
}
