package main

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckclockgo/internal/repository"
	"github.com/xelth-com/eckclockgo/internal/terminal"
	"github.com/xelth-com/eckclockgo/internal/terminal/terminaltest"
)

func TestWithDefaultPort(t *testing.T) {
	addr, err := withDefaultPort("10.0.0.20", 4370)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.20:4370", addr)

	addr, err = withDefaultPort("10.0.0.20:5005", 4370)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.20:5005", addr)

	_, err = withDefaultPort("", 4370)
	assert.Error(t, err)
}

func TestApplyMappings(t *testing.T) {
	store := repository.NewMemoryStore()
	device := uuid.New()
	emp := uuid.New()

	got, err := applyMappings(store, device, []string{"1=" + emp.String()})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{emp}, got)

	_, err = applyMappings(store, device, []string{"1"})
	assert.Error(t, err)
	_, err = applyMappings(store, device, []string{"1=not-a-uuid"})
	assert.Error(t, err)
}

func TestEnrollAndSyncCommands(t *testing.T) {
	srv, err := terminaltest.NewServer("127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close()
	srv.AddPunchLines("1\t2025-01-06 08:00:00\t0\t1\t0\t0")

	root := rootCmd()
	root.SetArgs([]string{"enroll", "--addr", srv.Addr(), "--id", "42", "--name", "Ada", "--card", "0042"})
	require.NoError(t, root.Execute())
	assert.Contains(t, srv.Users(), terminal.User{DeviceUserID: "42", Name: "Ada", CardNumber: "0042"})

	root = rootCmd()
	root.SetArgs([]string{"sync", "--addr", srv.Addr(), "--json", "--map", "1=" + uuid.NewString()})
	require.NoError(t, root.Execute())
	assert.Equal(t, 2, srv.Exits(), "enroll and sync each close their session")
}
