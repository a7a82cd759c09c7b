//go:build linux

// File: control/platform_linux_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/hioload-echo/control"
)

func TestLinuxProbesReportOpenFileLimit(t *testing.T) {
	dp := control.NewDebugProbes()
	control.RegisterPlatformProbes(dp)

	state := dp.DumpState()
	nofile, ok := state["platform.nofile"].(int64)
	if assert.True(t, ok) {
		assert.Greater(t, nofile, int64(0))
	}
}
