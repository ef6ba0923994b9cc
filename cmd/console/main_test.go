package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deliverly/admin-console/internal/app"
	_ "github.com/deliverly/admin-console/internal/testing/guard"
)

func TestMainSkipsStartupInTestMode(t *testing.T) {
	require.True(t, app.InTestMode())

	done := make(chan struct{})
	go func() {
		defer close(done)
		main()
	}()
	<-done
}
