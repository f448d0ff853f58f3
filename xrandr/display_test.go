package xrandr_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"switchres/display"
	"switchres/modeline"
	"switchres/xrandr"
)

func TestSwitchToListedSystemTiming(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := display.New(xrandr.New(xrandr.NewFakeServer(), "auto", log), log)
	require.NoError(t, mgr.Init())
	require.Len(t, mgr.Modes(), 2)

	listed := mgr.Modes()[1]
	assert.Equal(t, 1280, listed.HActive)
	assert.Equal(t, modeline.TimingSystem, listed.Type.Provenance())
	assert.True(t, display.Fixed(listed))
	assert.ErrorIs(t, mgr.SwitchTo(listed), display.ErrFixedMode)
	assert.ErrorIs(t, mgr.Delete(listed), display.ErrFixedMode)

	ml, err := modeline.Parse("148.5 1280 1368 1412 1560 720 724 729 765 +hsync +vsync")
	require.NoError(t, err)
	require.True(t, ml.SameTiming(listed))

	m := mgr.Add(ml)
	assert.NotSame(t, listed, m)
	assert.True(t, m.Type.Has(modeline.Add))
	require.NoError(t, mgr.SwitchTo(m))
	assert.Same(t, m, mgr.Current())

	// read back, the created mode is recognised as switchable
	require.NoError(t, mgr.Restore())
	require.NoError(t, mgr.Init())
	require.Len(t, mgr.Modes(), 3)

	created := mgr.Modes()[2]
	assert.True(t, created.Type.Has(modeline.TimingSystem|modeline.TimingXrandr))
	assert.False(t, display.Fixed(created))
	assert.Same(t, created, mgr.Add(ml))

	require.NoError(t, mgr.SwitchTo(created))
	require.NoError(t, mgr.Restore())
	require.NoError(t, mgr.Delete(created))
	require.NoError(t, mgr.Flush())
	assert.Len(t, mgr.Modes(), 2)
}
