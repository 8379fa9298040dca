package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowtide/lowtide/pkg/errdefs"
)

func validValues() OptionValues {
	return OptionValues{
		MaxGasPrice:       100,
		OptimalGasPrice:   50,
		ExecutionBuffer:   time.Hour,
		MaxExecutionDelay: 6 * time.Hour,
		AutoExecution:     true,
	}
}

func TestNewOptions(t *testing.T) {
	opts, err := NewOptions(SolverConfig{
		MaxGasPrice:       100,
		OptimalGasPrice:   50,
		ExecutionBuffer:   time.Hour,
		MaxExecutionDelay: 6 * time.Hour,
		AutoExecution:     true,
	})
	require.NoError(t, err)

	snap := opts.Snapshot()
	assert.Equal(t, int64(100), snap.MaxGasPrice)
	assert.Equal(t, int64(50), snap.OptimalGasPrice)
	assert.True(t, snap.AutoExecution)
}

func TestNewOptions_Invalid(t *testing.T) {
	_, err := NewOptions(SolverConfig{MaxGasPrice: 0})
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))
}

func TestOptions_Update(t *testing.T) {
	opts, err := NewOptions(SolverConfig{
		MaxGasPrice:       100,
		OptimalGasPrice:   50,
		ExecutionBuffer:   time.Hour,
		MaxExecutionDelay: 6 * time.Hour,
	})
	require.NoError(t, err)

	next := validValues()
	next.MaxGasPrice = 200
	next.OptimalGasPrice = 120
	require.NoError(t, opts.Update(next))

	snap := opts.Snapshot()
	assert.Equal(t, int64(200), snap.MaxGasPrice)
	assert.Equal(t, int64(120), snap.OptimalGasPrice)
}

func TestOptions_Update_InvalidKeepsCurrent(t *testing.T) {
	opts, err := NewOptions(SolverConfig{
		MaxGasPrice:       100,
		OptimalGasPrice:   50,
		ExecutionBuffer:   time.Hour,
		MaxExecutionDelay: 6 * time.Hour,
	})
	require.NoError(t, err)

	bad := validValues()
	bad.OptimalGasPrice = 500
	err = opts.Update(bad)
	require.Error(t, err)
	assert.True(t, errdefs.IsValidation(err))

	assert.Equal(t, int64(50), opts.Snapshot().OptimalGasPrice)
}

func TestOptions_LoadFromFile(t *testing.T) {
	opts, err := NewOptions(SolverConfig{
		MaxGasPrice:       100,
		OptimalGasPrice:   50,
		ExecutionBuffer:   time.Hour,
		MaxExecutionDelay: 6 * time.Hour,
	})
	require.NoError(t, err)

	values := validValues()
	values.MaxGasPrice = 300
	values.OptimalGasPrice = 150
	data, err := json.Marshal(values)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "options.json")
	require.NoError(t, os.WriteFile(path, data, 0644))

	require.NoError(t, opts.LoadFromFile(path))
	assert.Equal(t, int64(300), opts.Snapshot().MaxGasPrice)
}

func TestOptions_LoadFromFile_MissingFile(t *testing.T) {
	opts, err := NewOptions(SolverConfig{
		MaxGasPrice:       100,
		OptimalGasPrice:   50,
		ExecutionBuffer:   time.Hour,
		MaxExecutionDelay: 6 * time.Hour,
	})
	require.NoError(t, err)

	err = opts.LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read options file")
}
