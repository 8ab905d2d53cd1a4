package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/uow/internal/compiler"
)

var (
	shopModelDir = filepath.Join("..", "..", "testdata", "models", "shop")
	orgModelDir  = filepath.Join("..", "..", "testdata", "models", "org")
)

func executeValidate(t *testing.T, format string, dir string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{dir})
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidModel(t *testing.T) {
	output, err := executeValidate(t, "text", shopModelDir)
	require.NoError(t, err)
	assert.Contains(t, output, "✓ Model valid (4 entities)")
	assert.NotContains(t, output, "⚠")
}

func TestValidateReportsBreakableCycle(t *testing.T) {
	output, err := executeValidate(t, "text", orgModelDir)
	require.NoError(t, err)
	assert.Contains(t, output, "⚠ Reference cycle detected")
	assert.Contains(t, output, "✓ Model valid (2 entities)")
}

func TestValidateValidModelJSON(t *testing.T) {
	output, err := executeValidate(t, "json", orgModelDir)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Entities)
	require.Len(t, resp.Data.Cycles, 1)
	assert.False(t, resp.Data.Cycles[0].Unresolvable)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	output, err := executeValidate(t, "text", "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), compiler.ErrCodeNotFound)
	assert.Contains(t, output, "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	output, err := executeValidate(t, "text", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), compiler.ErrCodeNoFiles)
	assert.Contains(t, output, "no CUE files found")
}

func TestValidateFloatColumn(t *testing.T) {
	_, err := executeValidate(t, "text", filepath.Join("..", "..", "testdata", "invalid", "float"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), compiler.ErrCodeInvalidType)
}

func writeModel(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.cue"), []byte(src), 0o644))
	return dir
}

const unresolvableModel = `package ring

entity: A: {
	key: id: int
	fields: b: {ref: "B"}
}

entity: B: {
	key: id: int
	fields: a: {ref: "A"}
}
`

func TestValidateUnresolvableCycle(t *testing.T) {
	dir := writeModel(t, unresolvableModel)

	output, err := executeValidate(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "✗ Validation failed")
	assert.Contains(t, output, compiler.ErrUnresolvableCycle+": cycle: Reference cycle with no nullable reference")
}

func TestValidateUnresolvableCycleJSON(t *testing.T) {
	dir := writeModel(t, unresolvableModel)

	output, err := executeValidate(t, "json", dir)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, compiler.ErrUnresolvableCycle, resp.Error.Code)
}

func TestValidationErrors(t *testing.T) {
	errs := validationErrors([]error{
		compiler.ValidationError{Field: "Order.customer", Message: "unknown type", Code: "E101"},
		&compiler.LoadError{Code: compiler.ErrCodeGeneric, Message: "bad"},
		os.ErrPermission,
	})
	require.Len(t, errs, 3)
	assert.Equal(t, "E101", errs[0].Code)
	assert.Equal(t, "load", errs[1].Field)
	assert.Equal(t, "bad", errs[1].Message)
	assert.Equal(t, compiler.ErrCodeGeneric, errs[2].Code)
}
