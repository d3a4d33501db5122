package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Napageneral/chronicle-imessage/internal/config"
)

func TestVersionSet(t *testing.T) {
	if version == "" {
		t.Error("version should not be empty")
	}
}

func TestParseTimeFlag(t *testing.T) {
	got, err := parseTimeFlag("")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)

	got, err = parseTimeFlag("1700000000")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), got)

	got, err = parseTimeFlag("2023-11-14T22:13:20Z")
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), got)

	_, err = parseTimeFlag("yesterday")
	assert.Error(t, err)
}

func TestBuildOptionsFlagsWinOverConfig(t *testing.T) {
	cfg := &config.File{}
	cfg.Me.PhoneNumber = "+15550002222"
	cfg.Me.Name = "Config Bob"
	cfg.Extract.DBPath = "/from/config/chat.db"
	cfg.Extract.Workers = 4

	flags := &extractFlags{
		dbPath:  "/from/flag/chat.db",
		myPhone: "+15550001111",
		workers: 1,
	}

	opts, err := buildOptions(flags, cfg)
	require.NoError(t, err)
	assert.Equal(t, "/from/flag/chat.db", opts.DBPath)
	assert.Equal(t, "+15550001111", opts.MyPhoneNumber)
	assert.Equal(t, "Config Bob", opts.MyName, "unset flag falls back to config")
	assert.Equal(t, 4, opts.Workers, "default worker flag defers to config")
}

func TestBuildOptionsBadTime(t *testing.T) {
	_, err := buildOptions(&extractFlags{since: "not-a-time"}, &config.File{})
	assert.Error(t, err)
}
