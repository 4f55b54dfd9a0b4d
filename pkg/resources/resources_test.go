package resources

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_RejectsDuplicate(t *testing.T) {
	t.Parallel()
	m := NewManager()
	require.NoError(t, m.Initialize("calculator", DefaultLimits()))

	err := m.Initialize("calculator", DefaultLimits())
	assert.Error(t, err)
}

func TestAcquire_SucceedsWithinLimit(t *testing.T) {
	t.Parallel()
	m := NewManager()
	require.NoError(t, m.Initialize("calculator", DefaultLimits()))

	err := m.Acquire("calculator", Usage{MemoryBytes: 10 * 1024 * 1024, FileHandles: 2})
	require.NoError(t, err)

	usage, _, err := m.Snapshot("calculator")
	require.NoError(t, err)
	assert.EqualValues(t, 10*1024*1024, usage.MemoryBytes)
	assert.EqualValues(t, 2, usage.FileHandles)
}

func TestAcquire_FailsOverLimitWithoutPartialUpdate(t *testing.T) {
	t.Parallel()
	m := NewManager()
	limits := DefaultLimits()
	limits.FileHandles.Current = 5
	require.NoError(t, m.Initialize("calculator", limits))

	require.NoError(t, m.Acquire("calculator", Usage{FileHandles: 4}))

	err := m.Acquire("calculator", Usage{MemoryBytes: 1024, FileHandles: 2})
	assert.Error(t, err)

	usage, _, err := m.Snapshot("calculator")
	require.NoError(t, err)
	assert.Zero(t, usage.MemoryBytes, "partial acquire must not apply any dimension on failure")
	assert.EqualValues(t, 4, usage.FileHandles)
}

func TestRelease_SaturatesAtZero(t *testing.T) {
	t.Parallel()
	m := NewManager()
	require.NoError(t, m.Initialize("calculator", DefaultLimits()))
	require.NoError(t, m.Acquire("calculator", Usage{FileHandles: 3}))

	require.NoError(t, m.Release("calculator", Usage{FileHandles: 10}))

	usage, _, err := m.Snapshot("calculator")
	require.NoError(t, err)
	assert.Zero(t, usage.FileHandles)
}

func TestStatus_Thresholds(t *testing.T) {
	t.Parallel()
	m := NewManager()
	limits := DefaultLimits()
	limits.FileHandles.Current = 100
	require.NoError(t, m.Initialize("calculator", limits))

	status, err := m.Status("calculator")
	require.NoError(t, err)
	assert.Equal(t, StatusNormal, status)

	require.NoError(t, m.Acquire("calculator", Usage{FileHandles: 85}))
	status, err = m.Status("calculator")
	require.NoError(t, err)
	assert.Equal(t, StatusWarning, status)

	require.NoError(t, m.Acquire("calculator", Usage{FileHandles: 10}))
	status, err = m.Status("calculator")
	require.NoError(t, err)
	assert.Equal(t, StatusCritical, status)
}

func TestAdjustLimit_ClampsToBaseAndMax(t *testing.T) {
	t.Parallel()
	m := NewManager()
	require.NoError(t, m.Initialize("calculator", DefaultLimits()))

	require.NoError(t, m.AdjustLimit("calculator", DimensionFileHandles, 1_000_000))
	_, limits, err := m.Snapshot("calculator")
	require.NoError(t, err)
	assert.Equal(t, limits.FileHandles.Max, limits.FileHandles.Current)

	require.NoError(t, m.AdjustLimit("calculator", DimensionFileHandles, -5))
	_, limits, err = m.Snapshot("calculator")
	require.NoError(t, err)
	assert.Equal(t, limits.FileHandles.Base, limits.FileHandles.Current)
}

func TestHistory_BoundedRingBuffer(t *testing.T) {
	t.Parallel()
	m := NewManager()
	require.NoError(t, m.Initialize("calculator", DefaultLimits()))

	for i := 0; i < defaultHistoryCapacity+10; i++ {
		require.NoError(t, m.Acquire("calculator", Usage{FileHandles: 1}))
		require.NoError(t, m.Release("calculator", Usage{FileHandles: 1}))
	}

	samples, err := m.History("calculator", 1000)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(samples), defaultHistoryCapacity)
}

func TestToolIDsAscending(t *testing.T) {
	t.Parallel()
	m := NewManager()
	require.NoError(t, m.Initialize("zeta", DefaultLimits()))
	require.NoError(t, m.Initialize("alpha", DefaultLimits()))
	require.NoError(t, m.Initialize("mu", DefaultLimits()))

	assert.Equal(t, []string{"alpha", "mu", "zeta"}, m.ToolIDsAscending())
}

func TestAcquire_UnknownToolReturnsToolNotFound(t *testing.T) {
	t.Parallel()
	m := NewManager()
	err := m.Acquire("missing", Usage{})
	assert.Error(t, err)
}
