package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	colorgan "github.com/LdDl/colorgan-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	fname := filepath.Join(t.TempDir(), "options.yaml")
	require.NoError(t, os.WriteFile(fname, []byte(content), 0o644))
	return fname
}

func TestResolveOptions(t *testing.T) {
	fname := writeConfig(t, "lr: 0.001\nbatch_size: 4\n")

	fs := flag.NewFlagSet("colorgan", flag.ContinueOnError)
	config := fs.String("config", "", "")
	opts := colorgan.DefaultOptions()
	bindFlags(fs, opts)
	require.NoError(t, fs.Parse([]string{"-config", fname, "-lr", "0.1"}))

	resolved, err := resolveOptions(fs, opts, *config)
	require.NoError(t, err)
	defaults := colorgan.DefaultOptions()
	// Flag wins over file
	assert.Equal(t, 0.1, resolved.LearningRate)
	// File wins over defaults
	assert.Equal(t, 4, resolved.BatchSize)
	assert.Equal(t, defaults.Beta1, resolved.Beta1)
	assert.Equal(t, defaults.Epochs, resolved.Epochs)
	assert.Equal(t, defaults.Dataset, resolved.Dataset)
}

func TestResolveOptionsWithoutConfig(t *testing.T) {
	fs := flag.NewFlagSet("colorgan", flag.ContinueOnError)
	opts := colorgan.DefaultOptions()
	bindFlags(fs, opts)
	require.NoError(t, fs.Parse([]string{"-epochs", "3"}))

	resolved, err := resolveOptions(fs, opts, "")
	require.NoError(t, err)
	assert.Equal(t, 3, resolved.Epochs)
	assert.Equal(t, colorgan.DefaultOptions().BatchSize, resolved.BatchSize)
}

func TestResolveOptionsBadConfig(t *testing.T) {
	fs := flag.NewFlagSet("colorgan", flag.ContinueOnError)
	opts := colorgan.DefaultOptions()
	bindFlags(fs, opts)
	_, err := resolveOptions(fs, opts, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
