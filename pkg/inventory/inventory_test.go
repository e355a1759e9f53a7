//go:build linux

package inventory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ja7ad/ecotrace/pkg/types"
)

func TestParseNvidiaSMI(t *testing.T) {
	out := "NVIDIA GeForce RTX 3080, 10240, 550.54\n\nTesla T4, 15360, 535.1\n , 1, x\n"
	got := parseNvidiaSMI(out)
	require.Len(t, got, 2)
	assert.Equal(t, GPU{Name: "NVIDIA GeForce RTX 3080", Memory: types.Bytes(10240 << 20), DriverVersion: "550.54"}, got[0])
	assert.Equal(t, "Tesla T4", got[1].Name)

	assert.Empty(t, parseNvidiaSMI(""))
	assert.Equal(t, []GPU{{Name: "Lonely"}}, parseNvidiaSMI("Lonely"))
}

func TestCollector_GPUStub(t *testing.T) {
	stub := filepath.Join(t.TempDir(), "nvidia-smi")
	require.NoError(t, os.WriteFile(stub, []byte("#!/bin/sh\necho 'Tesla T4, 15360, 535.1'\n"), 0o755))

	c := New(nil)
	c.nvidiaSMI = stub
	got := c.gpus(context.Background())
	require.Len(t, got, 1)
	assert.Equal(t, "Tesla T4", got[0].Name)

	c.nvidiaSMI = filepath.Join(t.TempDir(), "missing")
	assert.Empty(t, c.gpus(context.Background()))
}

func TestCollector_Collect(t *testing.T) {
	c := New(nil)
	c.nvidiaSMI = filepath.Join(t.TempDir(), "missing")

	info, _ := c.Collect(context.Background())
	assert.Positive(t, info.CPU.LogicalCores)
	assert.NotNil(t, info.Disks)
	assert.NotNil(t, info.GPUs)
	assert.Positive(t, info.Memory.Total.Uint64())
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 15.56, round2(15.556))
	assert.Equal(t, 0.0, round2(0))
}
