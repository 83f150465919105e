package models

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"stereocalib/internal/errkind"
)

func TestFlattenViewsRoundTrip(t *testing.T) {
	views := []View{
		{
			ObjectPoints: []r3.Vector{{X: 0}, {X: 1}},
			ImagePoints:  []r2.Point{{X: 10, Y: 10}, {X: 20, Y: 10}},
		},
		{
			ObjectPoints: []r3.Vector{{Y: 1}, {Y: 2}, {Y: 3}},
			ImagePoints:  []r2.Point{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}},
		},
	}
	buf := Flatten(views)
	assert.Equal(t, []int{2, 3}, buf.PointCounts)
	assert.Equal(t, 2, buf.NumViews())
	assert.Len(t, buf.ImagePoints, 5)

	back, err := buf.Views()
	require.NoError(t, err)
	if diff := cmp.Diff(views, back); diff != "" {
		t.Errorf("views mismatch (-want +got):\n%s", diff)
	}
}

func TestPointBuffersMismatch(t *testing.T) {
	buf := PointBuffers{
		ImagePoints:  []r2.Point{{}, {}},
		ObjectPoints: []r3.Vector{{}, {}},
		PointCounts:  []int{3},
	}
	_, err := buf.Views()
	assert.True(t, errkind.Is(err, errkind.CountMismatch))

	buf.ObjectPoints = buf.ObjectPoints[:1]
	_, err = buf.Views()
	assert.True(t, errkind.Is(err, errkind.CountMismatch))

	buf = PointBuffers{PointCounts: []int{0}}
	_, err = buf.Views()
	assert.True(t, errkind.Is(err, errkind.InvalidInput))
}

func TestViewValidate(t *testing.T) {
	assert.True(t, errkind.Is(View{Name: "a"}.Validate(), errkind.InputEmpty))
	v := View{Name: "b", ObjectPoints: []r3.Vector{{}}, ImagePoints: nil}
	assert.True(t, errkind.Is(v.Validate(), errkind.CountMismatch))
	assert.True(t, v.IsPlanar())
	v.ObjectPoints[0].Z = 1
	assert.False(t, v.IsPlanar())
}

func TestPickedObjectYAML(t *testing.T) {
	in := []PickedObject{
		{ID: 3, FrameNumber: 20, Channel: RightChannel, Timestamp: 1374854436966961200, Points: []r3.Vector{{X: 100, Y: 200}}},
		{ID: 4, FrameNumber: 21, Channel: WorldChannel, IsLine: true, Points: []r3.Vector{{X: 1}, {X: 2}}},
	}
	data, err := yaml.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), "channel: right")

	var out []PickedObject
	require.NoError(t, yaml.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	var bad PickedObject
	err = yaml.Unmarshal([]byte("channel: sideways\n"), &bad)
	assert.Error(t, err)
}

func TestPickedObjectValidate(t *testing.T) {
	assert.True(t, errkind.Is(PickedObject{}.Validate(), errkind.InputEmpty))
	two := PickedObject{Points: []r3.Vector{{}, {}}}
	assert.True(t, errkind.Is(two.Validate(), errkind.InvalidInput))
	two.IsLine = true
	assert.NoError(t, two.Validate())
	assert.True(t, PickedObject{Channel: LeftChannel}.IsScreen())
	assert.False(t, PickedObject{Channel: LensChannel}.IsScreen())
}
