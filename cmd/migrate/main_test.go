package main

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appmigrations "github.com/wolfman30/leadcapture/migrations"
)

type fakeMigrator struct {
	upErr   error
	steps   []int
	forced  []int
	version uint
	verErr  error
	upCalls int
}

func (f *fakeMigrator) Up() error {
	f.upCalls++
	return f.upErr
}

func (f *fakeMigrator) Steps(n int) error {
	f.steps = append(f.steps, n)
	return nil
}

func (f *fakeMigrator) Force(v int) error {
	f.forced = append(f.forced, v)
	return nil
}

func (f *fakeMigrator) Version() (uint, bool, error) {
	return f.version, false, f.verErr
}

func TestRun_DefaultsToUp(t *testing.T) {
	m := &fakeMigrator{upErr: migrate.ErrNoChange}
	require.NoError(t, run(m, nil))
	assert.Equal(t, 1, m.upCalls)
}

func TestRun_Down(t *testing.T) {
	m := &fakeMigrator{}
	require.NoError(t, run(m, []string{"down", "2"}))
	assert.Equal(t, []int{-2}, m.steps)

	assert.Error(t, run(m, []string{"down", "0"}))
	assert.Error(t, run(m, []string{"down"}))
}

func TestRun_Force(t *testing.T) {
	m := &fakeMigrator{}
	require.NoError(t, run(m, []string{"force", "3"}))
	assert.Equal(t, []int{3}, m.forced)
	assert.Error(t, run(m, []string{"force", "x"}))
}

func TestRun_VersionOnFreshDatabase(t *testing.T) {
	assert.NoError(t, run(&fakeMigrator{verErr: migrate.ErrNilVersion}, []string{"version"}))
}

func TestRun_UnknownCommand(t *testing.T) {
	assert.EqualError(t, run(&fakeMigrator{}, []string{"sideways"}), usage)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(appmigrations.FS, ".")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}
