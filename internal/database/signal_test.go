package database

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupSignalHandlerNotCancelled(t *testing.T) {
	ctx, cancel := SetupSignalHandler(nil)
	defer cancel()

	select {
	case <-ctx.Done():
		t.Fatal("context should not be cancelled without a signal")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSetupSignalHandlerCancelFunc(t *testing.T) {
	ctx, cancel := SetupSignalHandler(nil)
	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("cancel should cancel the context")
	}
}

func TestSetupSignalHandlerCallback(t *testing.T) {
	if os.Getenv("CI") == "true" {
		t.Skip("Skipping signal test in CI environment")
	}

	received := make(chan os.Signal, 1)
	ctx, cancel := SetupSignalHandler(func(sig os.Signal) {
		received <- sig
	})
	defer cancel()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGINT))

	select {
	case <-ctx.Done():
		assert.Equal(t, syscall.SIGINT, <-received)
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled after receiving signal")
	}
}
