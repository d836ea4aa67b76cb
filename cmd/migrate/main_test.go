package main

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	upErr   error
	steps   []int
	forced  int
	version uint
}

func (f *fakeMigrator) Up() error { return f.upErr }
func (f *fakeMigrator) Steps(n int) error {
	f.steps = append(f.steps, n)
	return nil
}
func (f *fakeMigrator) Force(v int) error {
	f.forced = v
	return nil
}
func (f *fakeMigrator) Version() (uint, bool, error) { return f.version, false, nil }

func TestRunUpIgnoresNoChange(t *testing.T) {
	require.NoError(t, run(&fakeMigrator{upErr: migrate.ErrNoChange}, nil))
	err := run(&fakeMigrator{upErr: errors.New("boom")}, []string{"up"})
	require.Error(t, err)
}

func TestRunDownAndForce(t *testing.T) {
	m := &fakeMigrator{}
	require.NoError(t, run(m, []string{"down", "2"}))
	assert.Equal(t, []int{-2}, m.steps)

	require.NoError(t, run(m, []string{"force", "3"}))
	assert.Equal(t, 3, m.forced)

	assert.Error(t, run(m, []string{"down", "zero"}))
	assert.Error(t, run(m, []string{"force"}))
	assert.Error(t, run(m, []string{"sideways"}))
}
