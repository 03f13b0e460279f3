package race

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexTime_Decodings(t *testing.T) {
	want := time.Date(2026, 4, 12, 8, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		raw  string
	}{
		{"rfc3339", `"2026-04-12T08:00:00Z"`},
		{"epoch seconds", `1775980800`},
		{"epoch milliseconds", `1775980800000`},
		{"numeric string", `"1775980800"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var ft FlexTime
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &ft))
			assert.True(t, ft.Equal(want), "got %s", ft)
		})
	}
}

func TestFlexTime_FractionalSeconds(t *testing.T) {
	var ft FlexTime
	require.NoError(t, json.Unmarshal([]byte(`1775980800.5`), &ft))
	assert.Equal(t, 500*time.Millisecond, ft.Sub(time.Date(2026, 4, 12, 8, 0, 0, 0, time.UTC)))
}

func TestFlexTime_Rejects(t *testing.T) {
	for _, raw := range []string{`null`, `""`, `"yesterday"`} {
		var ft FlexTime
		assert.Error(t, json.Unmarshal([]byte(raw), &ft), "raw %s", raw)
	}
}

func TestFlexTime_MarshalsRFC3339(t *testing.T) {
	ft := FlexTime{Time: time.Date(2026, 4, 12, 8, 0, 0, 0, time.UTC)}
	raw, err := json.Marshal(ft)
	require.NoError(t, err)
	assert.Equal(t, `"2026-04-12T08:00:00Z"`, string(raw))
}

func TestCourseCheckpoints(t *testing.T) {
	c := &Course{Points: []RoutePoint{
		{Sequence: 0, Type: PointStart, CheckpointID: "START", CheckpointIndex: 0},
		{Sequence: 1, Type: PointInterpolated, CheckpointIndex: NoCheckpoint},
		{Sequence: 2, Type: PointCheckpoint, CheckpointID: "CP1", CheckpointIndex: 1},
		{Sequence: 3, Type: PointInterpolated, CheckpointIndex: NoCheckpoint},
		{Sequence: 4, Type: PointFinish, CheckpointID: "FINISH", CheckpointIndex: 2},
	}}

	cps := c.Checkpoints()
	require.Len(t, cps, 3)
	assert.Equal(t, "START", cps[0].CheckpointID)
	assert.Equal(t, "CP1", cps[1].CheckpointID)
	assert.Equal(t, "FINISH", cps[2].CheckpointID)
}
