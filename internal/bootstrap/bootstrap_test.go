package bootstrap

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iac-studio/envforge/pkg/config"
	"github.com/iac-studio/envforge/pkg/logger"
)

func TestMain(m *testing.M) {
	_, _ = logger.Init("error", "json")
	os.Exit(m.Run())
}

func TestInstanceOptions(t *testing.T) {
	assert.Empty(t, InstanceOptions(&config.Config{}))
	assert.Len(t, InstanceOptions(&config.Config{InstanceType: "t3.micro"}), 1)
	assert.Len(t, InstanceOptions(&config.Config{InstanceAMI: "ami-123", InstanceType: "t3.small"}), 2)
}

func TestRetryUntilSuccess(t *testing.T) {
	calls := 0
	err := retry(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("vpc lookup failed")
		}
		return nil
	}, time.Millisecond, 2*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	boom := errors.New("no managed hosted zone")
	calls := 0
	err := retry(ctx, func(context.Context) error {
		calls++
		cancel()
		return boom
	}, time.Hour, time.Hour)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}
