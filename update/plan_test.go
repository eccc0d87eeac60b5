package update_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.asdf.sh/asdf/update"
)

func TestPlanSameSizeContentChangeKeepsOffsets(t *testing.T) {
	t.Parallel()

	kept := []update.Kept{
		{BlockIndex: 0, Offset: 100, Size: 50, ContentChanged: false},
		{BlockIndex: 1, Offset: 150, Size: 50, ContentChanged: true},
		{BlockIndex: 2, Offset: 200, Size: 50, ContentChanged: false},
	}

	plan := update.Plan(kept, nil, 100)
	require.False(t, plan.FullRewrite)

	assert.Equal(t, int64(100), plan.Offsets[0])
	assert.Equal(t, int64(150), plan.Offsets[1])
	assert.Equal(t, int64(200), plan.Offsets[2])
	assert.Equal(t, []int{1}, plan.Rewrite)
	assert.Equal(t, int64(250), plan.FinalSize)
	assert.Equal(t, int64(0), plan.ClearGap)
}

func TestPlanPlacesNewBlockInGapBetweenKept(t *testing.T) {
	t.Parallel()

	kept := []update.Kept{
		{BlockIndex: 0, Offset: 10, Size: 20}, // occupies [10, 30)
		{BlockIndex: 2, Offset: 60, Size: 20}, // occupies [60, 80)
	}

	placed := []update.Placed{
		{BlockIndex: 1, Size: 15}, // fits in the [30, 60) gap
	}

	plan := update.Plan(kept, placed, 10)
	require.False(t, plan.FullRewrite)

	assert.Equal(t, int64(30), plan.Offsets[1])
	assert.Equal(t, []int{1}, plan.Rewrite)
	assert.Equal(t, int64(80), plan.FinalSize)
}

func TestPlanFirstFitSkipsGapTooSmall(t *testing.T) {
	t.Parallel()

	kept := []update.Kept{
		{BlockIndex: 0, Offset: 0, Size: 10},  // gap before: none (tree is 0)
		{BlockIndex: 1, Offset: 15, Size: 10}, // gap [10, 15): size 5
		{BlockIndex: 2, Offset: 40, Size: 10}, // gap [25, 40): size 15
	}

	placed := []update.Placed{
		{BlockIndex: 3, Size: 12}, // too big for the 5-byte gap, fits the 15-byte one
	}

	plan := update.Plan(kept, placed, 0)
	require.False(t, plan.FullRewrite)

	assert.Equal(t, int64(25), plan.Offsets[3])
}

func TestPlanAppendsToTailWhenNoGapFits(t *testing.T) {
	t.Parallel()

	kept := []update.Kept{
		{BlockIndex: 0, Offset: 0, Size: 10},
	}

	placed := []update.Placed{
		{BlockIndex: 1, Size: 100},
	}

	plan := update.Plan(kept, placed, 0)
	require.False(t, plan.FullRewrite)

	assert.Equal(t, int64(10), plan.Offsets[1])
	assert.Equal(t, int64(110), plan.FinalSize)
}

func TestPlanFullRewriteWhenTreeOutgrowsLeadingSpace(t *testing.T) {
	t.Parallel()

	kept := []update.Kept{
		{BlockIndex: 0, Offset: 50, Size: 20},
	}

	plan := update.Plan(kept, nil, 80)
	assert.True(t, plan.FullRewrite)
}

func TestPlanComputesClearGapWhenTreeShrinks(t *testing.T) {
	t.Parallel()

	kept := []update.Kept{
		{BlockIndex: 0, Offset: 100, Size: 20},
	}

	plan := update.Plan(kept, nil, 40)
	require.False(t, plan.FullRewrite)
	assert.Equal(t, int64(60), plan.ClearGap)
}

func TestPlanMultiplePlacedFillSameGapSequentially(t *testing.T) {
	t.Parallel()

	kept := []update.Kept{
		{BlockIndex: 0, Offset: 0, Size: 10},
		{BlockIndex: 3, Offset: 40, Size: 10},
	}

	placed := []update.Placed{
		{BlockIndex: 1, Size: 15},
		{BlockIndex: 2, Size: 15},
	}

	plan := update.Plan(kept, placed, 0)
	require.False(t, plan.FullRewrite)

	assert.Equal(t, int64(10), plan.Offsets[1])
	assert.Equal(t, int64(25), plan.Offsets[2])
	assert.Equal(t, int64(50), plan.FinalSize)
}
