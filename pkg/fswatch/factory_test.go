package fswatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactoryRegisterAndCreateByName(t *testing.T) {
	name := "test_factory_monitor_by_name"
	Register(name, PollType, func(config Config) (Monitor, error) {
		return NewPollMonitor(config)
	})

	monitor, err := Create(name, Config{Callback: func([]Event) {}})
	require.NoError(t, err)
	assert.NotNil(t, monitor)
}

func TestFactoryCreateUnknownName(t *testing.T) {
	_, err := Create("does-not-exist", Config{Callback: func([]Event) {}})
	require.ErrorIs(t, err, ErrUnknownMonitor)
}

func TestFactoryCreateByType(t *testing.T) {
	monitor, err := CreateByType(PollType, Config{Callback: func([]Event) {}})
	require.NoError(t, err)
	assert.NotNil(t, monitor)
}

func TestFactoryCreateDefaultFallsBackToPoll(t *testing.T) {
	// Poll is always registered regardless of platform, and is last in
	// priority order, so CreateDefault must always succeed at least via
	// poll even on platforms with no native backend registered.
	monitor, err := CreateDefault(Config{Callback: func([]Event) {}})
	require.NoError(t, err)
	assert.NotNil(t, monitor)
}

func TestRegisteredNamesIncludesPoll(t *testing.T) {
	assert.Contains(t, RegisteredNames(), "poll_monitor")
}
