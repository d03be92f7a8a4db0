package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heyjunin/HLSdrop/pkg/config"
	"github.com/heyjunin/HLSdrop/pkg/uploader"
)

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "hlsdrop dev")
}

func TestConversionFlagsOverrideConfig(t *testing.T) {
	var flags conversionFlags
	cmd := &cobra.Command{Use: "test"}
	flags.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{
		"--segment-duration", "6",
		"--concurrency", "3",
		"--ffmpeg-param", "-movflags",
		"--ffmpeg-param", "+faststart",
		"--fail-fast=false",
	}))

	c := config.Default()
	c.Transcode.Threads = 2
	require.NoError(t, flags.apply(cmd, c))

	assert.Equal(t, 6, c.Transcode.SegmentDuration)
	assert.Equal(t, 3, c.Upload.Concurrency)
	assert.Equal(t, []string{"-movflags", "+faststart"}, c.Transcode.ExtraParams)
	assert.False(t, c.Engine.FailFast)
	// untouched flags keep the configured value
	assert.Equal(t, 2, c.Transcode.Threads)
	assert.Equal(t, "ffmpeg", c.Engine.CoreBinary)
}

func TestConversionFlagsValidate(t *testing.T) {
	var flags conversionFlags
	cmd := &cobra.Command{Use: "test"}
	flags.register(cmd)
	require.NoError(t, cmd.ParseFlags([]string{"--concurrency", "0"}))

	assert.Error(t, flags.apply(cmd, config.Default()))
}

func TestBuildHost(t *testing.T) {
	c := config.Default()
	host, err := buildHost(context.Background(), c)
	require.NoError(t, err)
	_, ok := host.(*uploader.AnonDrop)
	assert.True(t, ok)

	c.Upload.Host = "ftp"
	_, err = buildHost(context.Background(), c)
	assert.Error(t, err)
}

func TestConvertRequiresInput(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"convert", "--env-file", ""})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input")
}
