package dst

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHarnessCalmConvergesWithNoFaultInjection(t *testing.T) {
	h := NewHarness(Calm(1))
	res := h.Run(200)
	require.True(t, res.IsSuccess(), res.Summary())
	require.Zero(t, res.MessagesDropped)
}

func TestHarnessModerateConvergesDespiteDropsAndPartitions(t *testing.T) {
	h := NewHarness(Moderate(42))
	res := h.Run(300)
	require.True(t, res.IsSuccess(), res.Summary())
}

func TestHarnessChaosStillConverges(t *testing.T) {
	h := NewHarness(Chaos(7))
	res := h.Run(300)
	require.True(t, res.IsSuccess(), res.Summary())
}

func TestHarnessIsDeterministicForASeed(t *testing.T) {
	a := NewHarness(Moderate(99)).Run(200)
	b := NewHarness(Moderate(99)).Run(200)
	require.Equal(t, a.TotalOperations, b.TotalOperations)
	require.Equal(t, a.MessagesDropped, b.MessagesDropped)
	require.Equal(t, a.Converged, b.Converged)
}

func TestSweepConfigsReturnsNilWhenEverySeedConverges(t *testing.T) {
	result := SweepConfigs(Config{}, 5, Calm)
	require.Nil(t, result)
}
