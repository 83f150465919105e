package calibio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stereocalib/internal/errkind"
	"stereocalib/internal/models"
	"stereocalib/pkg/camera"
	"stereocalib/pkg/spatial"
)

func writeText(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadRows(t *testing.T) {
	rows, err := ReadRows(strings.NewReader("# header\n1 2 3\n\n  4.5\t-6e2  \n"))
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2, 3}, {4.5, -600}}, rows)

	_, err = ReadRows(strings.NewReader("1 2 x\n"))
	assert.True(t, errkind.Is(err, errkind.ParseFailure))
}

func TestIntrinsicFile(t *testing.T) {
	dir := t.TempDir()
	d, err := camera.NewDistortion(-0.1, 0.02, 0.001, -0.002, 0.005)
	require.NoError(t, err)
	model := camera.Model{Intrinsics: camera.Intrinsics{Fx: 1000.5, Fy: 998.25, Cx: 640.125, Cy: 480.75}, Distortion: d}

	path := filepath.Join(dir, "cal.left.intrinsic.txt")
	require.NoError(t, WriteIntrinsicFile(path, model))

	got, err := ReadIntrinsicFile(path, 5)
	require.NoError(t, err)
	assert.Equal(t, model, got)

	got, err = ReadIntrinsicFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, model, got)

	_, err = ReadIntrinsicFile(path, 4)
	assert.True(t, errkind.Is(err, errkind.ParseFailure))
}

func TestIntrinsicFileVariants(t *testing.T) {
	dir := t.TempDir()

	bare := writeText(t, dir, "bare.txt", "800 0 320\n0 810 240\n0 0 1\n")
	m, err := ReadIntrinsicFile(bare, 0)
	require.NoError(t, err)
	assert.Equal(t, 800.0, m.Intrinsics.Fx)
	assert.Equal(t, 4, m.Distortion.Count)
	assert.True(t, m.Distortion.IsZero())

	split := writeText(t, dir, "split.txt", "800 0 320\n0 810 240\n0 0 1\n0.1 0.2\n0.3 0.4\n")
	m, err = ReadIntrinsicFile(split, 4)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3, 0.4}, m.Distortion.Coefficients())

	short := writeText(t, dir, "short.txt", "800 0 320\n0 810 240\n")
	_, err = ReadIntrinsicFile(short, 0)
	assert.True(t, errkind.Is(err, errkind.ParseFailure))

	wide := writeText(t, dir, "wide.txt", "800 0 320 1\n0 810 240\n0 0 1\n")
	_, err = ReadIntrinsicFile(wide, 0)
	assert.True(t, errkind.Is(err, errkind.ParseFailure))

	_, err = ReadIntrinsicFile(filepath.Join(dir, "missing.txt"), 0)
	assert.Error(t, err)
}

func TestRightToLeftAndMatrix4Files(t *testing.T) {
	dir := t.TempDir()
	r2l := spatial.NewTransform(r3.Vector{X: 0.01, Y: -0.05, Z: 0.002}, r3.Vector{X: 60.25, Y: -0.5, Z: 1.75})
	path := filepath.Join(dir, "cal.r2l.txt")
	require.NoError(t, WriteRightToLeftFile(path, r2l))
	got, err := ReadRightToLeftFile(path)
	require.NoError(t, err)
	assert.Equal(t, r2l, got)

	he := r2l.Matrix4()
	hePath := filepath.Join(dir, "cal.handeye.txt")
	require.NoError(t, WriteMatrix4File(hePath, he))
	gotHE, err := ReadMatrix4File(hePath)
	require.NoError(t, err)
	assert.Equal(t, he, gotHE)

	bad := writeText(t, dir, "bad.r2l.txt", "1 0 0\n0 1 0\n0 0 1\n")
	_, err = ReadRightToLeftFile(bad)
	assert.True(t, errkind.Is(err, errkind.ParseFailure))
}

func TestExtrinsicsFile(t *testing.T) {
	dir := t.TempDir()
	ts := []spatial.Transform{
		spatial.NewTransform(r3.Vector{X: 0.1, Y: 0.2, Z: 0.3}, r3.Vector{X: 1, Y: 2, Z: 500}),
		spatial.NewTransform(r3.Vector{Y: -0.4}, r3.Vector{X: -10, Z: 450}),
	}
	path := filepath.Join(dir, "views.txt")
	require.NoError(t, WriteExtrinsicsFile(path, ts))

	got, err := ReadExtrinsicsFile(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range ts {
		assert.True(t, ts[i].ApproxEqual(got[i], 1e-12, 1e-12))
	}

	bad := writeText(t, dir, "bad.txt", "0 0 0 1 2\n")
	_, err = ReadExtrinsicsFile(bad)
	assert.True(t, errkind.Is(err, errkind.ParseFailure))

	empty := writeText(t, dir, "empty.txt", "# nothing\n")
	_, err = ReadExtrinsicsFile(empty)
	assert.True(t, errkind.Is(err, errkind.InputEmpty))
}

func TestPointBuffersYAML(t *testing.T) {
	dir := t.TempDir()
	views := []models.View{
		{
			ObjectPoints: []r3.Vector{{X: 0}, {X: 3}},
			ImagePoints:  []r2.Point{{X: 10.5, Y: 20.25}, {X: 30, Y: 40}},
		},
		{
			ObjectPoints: []r3.Vector{{Y: 3}},
			ImagePoints:  []r2.Point{{X: 1, Y: 2}},
		},
	}
	buf := models.Flatten(views)
	path := filepath.Join(dir, "points", "left.yaml")
	require.NoError(t, SavePointBuffers(path, buf))

	got, err := LoadPointBuffers(path)
	require.NoError(t, err)
	if diff := cmp.Diff(buf, got); diff != "" {
		t.Errorf("point buffers mismatch (-want +got):\n%s", diff)
	}

	bad := writeText(t, dir, "bad.yaml", "imagePoints:\n  - {x: 1, y: 2}\nobjectPoints:\n  - {x: 0, y: 0, z: 0}\npointCounts: [2]\n")
	_, err = LoadPointBuffers(bad)
	assert.True(t, errkind.Is(err, errkind.ParseFailure))

	empty := writeText(t, dir, "empty.yaml", "pointCounts: []\n")
	_, err = LoadPointBuffers(empty)
	assert.True(t, errkind.Is(err, errkind.InputEmpty))
}

func TestPickedObjectsYAML(t *testing.T) {
	dir := t.TempDir()
	objs := []models.PickedObject{
		{ID: 1, FrameNumber: 20, Channel: models.LeftChannel, Timestamp: 1374854436966961200, Points: []r3.Vector{{X: 100, Y: 200}}},
		{ID: 1, FrameNumber: 21, Channel: models.RightChannel, Points: []r3.Vector{{X: 90, Y: 201}}},
		{ID: 2, Channel: models.WorldChannel, IsLine: true, Points: []r3.Vector{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}}},
	}
	path := filepath.Join(dir, "picked.yaml")
	require.NoError(t, SavePickedObjects(path, objs))

	got, err := LoadPickedObjects(path)
	require.NoError(t, err)
	if diff := cmp.Diff(objs, got); diff != "" {
		t.Errorf("picked objects mismatch (-want +got):\n%s", diff)
	}

	bad := writeText(t, dir, "bad.yaml", "objects:\n  - id: 3\n    channel: left\n")
	_, err = LoadPickedObjects(bad)
	assert.True(t, errkind.Is(err, errkind.ParseFailure))
}

func testCalibration() *StereoCalibration {
	ld, _ := camera.NewDistortion(-0.1, 0.01, 0, 0)
	rd, _ := camera.NewDistortion(-0.12, 0.02, 0.001, 0)
	return &StereoCalibration{
		Left:        camera.Model{Intrinsics: camera.Intrinsics{Fx: 1000, Fy: 1000, Cx: 640, Cy: 480}, Distortion: ld},
		Right:       camera.Model{Intrinsics: camera.Intrinsics{Fx: 1010, Fy: 1005, Cx: 630, Cy: 490}, Distortion: rd},
		RightToLeft: spatial.NewTransform(r3.Vector{Y: -0.03}, r3.Vector{X: 60}),
		HandEye:     spatial.NewTransform(r3.Vector{Z: 0.5}, r3.Vector{X: 10, Y: 20, Z: 30}).Matrix4(),
	}
}

func TestStereoCalibrationDirectory(t *testing.T) {
	dir := t.TempDir()
	cal := testCalibration()
	require.NoError(t, SaveStereoCalibration(dir, "rig", cal))

	got, err := LoadStereoCalibration(dir, 4)
	require.NoError(t, err)
	assert.Equal(t, cal, got)

	// A second right-to-left file makes the directory ambiguous.
	require.NoError(t, WriteRightToLeftFile(filepath.Join(dir, "old.r2l.txt"), cal.RightToLeft))
	_, err = LoadStereoCalibration(dir, 4)
	assert.True(t, errkind.Is(err, errkind.DiscoveryAmbiguity))
}

func TestStereoCalibrationMissingFile(t *testing.T) {
	dir := t.TempDir()
	cal := testCalibration()
	require.NoError(t, SaveStereoCalibration(dir, "rig", cal))
	require.NoError(t, os.Remove(filepath.Join(dir, "rig.handeye.txt")))

	_, err := LoadStereoCalibration(dir, 4)
	assert.True(t, errkind.Is(err, errkind.DiscoveryAmbiguity))

	got, err := LoadStereoCalibrationFiles(
		filepath.Join(dir, "rig.left.intrinsic.txt"),
		filepath.Join(dir, "rig.right.intrinsic.txt"),
		filepath.Join(dir, "rig.r2l.txt"), "", 4)
	require.NoError(t, err)
	assert.Equal(t, spatial.Identity4(), got.HandEye)
}

func TestSaveViewExtrinsics(t *testing.T) {
	dir := t.TempDir()
	left := []spatial.Transform{spatial.NewTransform(r3.Vector{X: 0.1}, r3.Vector{Z: 400})}
	right := []spatial.Transform{spatial.NewTransform(r3.Vector{X: 0.1}, r3.Vector{X: -60, Z: 400})}
	require.NoError(t, SaveViewExtrinsics(dir, "rig", left, right))

	got, err := ReadExtrinsicsFile(filepath.Join(dir, "rig.right.extrinsics.txt"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, right[0].ApproxEqual(got[0], 1e-12, 1e-12))
}
