package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRecordsTextGolden(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--schema", filepath.Join("testdata", "schema"), filepath.Join("testdata", "accounts.yaml")})

	err := cmd.Execute()
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "validate_text", buf.Bytes())
}

func TestValidateRecordsJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--schema", filepath.Join("testdata", "schema"), filepath.Join("testdata", "accounts.yaml")})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   []recordCheck `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 2)
	assert.True(t, resp.Data[0].Valid)
	assert.True(t, resp.Data[1].Valid)
	assert.Equal(t, "Preferred", resp.Data[0].Values["Category"])
}

func TestValidateInvalidRecordFails(t *testing.T) {
	records := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(records, []byte(
		"entity: account\nrecords:\n  - Name: Acme\n    Employees: \"plenty\"\n"), 0o644))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--schema", filepath.Join("testdata", "schema"), records})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "[0] invalid:")
	assert.Contains(t, buf.String(), "Employees")
}

func TestValidateRequiresTargetEntity(t *testing.T) {
	records := filepath.Join(t.TempDir(), "anonymous.yaml")
	require.NoError(t, os.WriteFile(records, []byte(
		"records:\n  - Name: Acme\n"), 0o644))

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--schema", filepath.Join("testdata", "schema"), records})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no target entity")
}

func TestValidateMissingSchemaDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--schema", "/nonexistent/schema/path", filepath.Join("testdata", "accounts.yaml")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load schema")
}
