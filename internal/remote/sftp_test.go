package remote

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/reforgerwatch/reforgerwatch/internal/config"
)

func TestManagerReusesConnection(t *testing.T) {
	dials := 0
	m := &Manager{dial: func(config.RemoteConfig) (FileSource, error) {
		dials++
		return &memSource{}, nil
	}}

	first, err := m.Acquire()
	require.NoError(t, err)
	second, err := m.Acquire()
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, 1, dials)
}

func TestManagerReconnectsAfterError(t *testing.T) {
	dials := 0
	m := &Manager{dial: func(config.RemoteConfig) (FileSource, error) {
		dials++
		return &memSource{}, nil
	}}

	_, err := m.Acquire()
	require.NoError(t, err)

	m.CloseOnError()
	m.CloseOnError() // double teardown is a no-op

	_, err = m.Acquire()
	require.NoError(t, err)
	require.Equal(t, 2, dials)
}

func TestManagerDialFailure(t *testing.T) {
	m := &Manager{dial: func(config.RemoteConfig) (FileSource, error) {
		return nil, errors.New("connection refused")
	}}

	_, err := m.Acquire()
	require.Error(t, err)

	// A failed dial leaves nothing cached
	m.CloseOnError()
}
