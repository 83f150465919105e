// Package calibio reads and writes calibration data: whitespace separated
// plain-text matrices, rotation-vector extrinsics, YAML point buffers and
// picked-object files, and the calibration directory layout.
package calibio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"stereocalib/internal/errkind"
	"stereocalib/pkg/camera"
	"stereocalib/pkg/spatial"
)

// ReadRows parses whitespace separated numbers, one slice per non-empty line.
// Lines starting with '#' are skipped.
func ReadRows(r io.Reader) ([][]float64, error) {
	var rows [][]float64
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		row := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, errkind.Wrapf(err, errkind.ParseFailure, "line %d", lineNo)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading rows")
	}
	return rows, nil
}

func readRowsFile(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	rows, err := ReadRows(f)
	if err != nil {
		return nil, errkind.Wrapf(err, errkind.KindOf(err), "parsing %s", path)
	}
	return rows, nil
}

// writeFile creates path and its directory and hands a buffered writer to fn.
func writeFile(path string, fn func(w *bufio.Writer) error) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err := fn(w); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return w.Flush()
}

func writeRow(w io.Writer, vals ...float64) error {
	strs := make([]string, len(vals))
	for i, v := range vals {
		strs[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	_, err := fmt.Fprintln(w, strings.Join(strs, " "))
	return err
}

// checkRows verifies that the first n rows each hold exactly cols values.
func checkRows(rows [][]float64, n, cols int, what string) error {
	if len(rows) < n {
		return errkind.New(errkind.ParseFailure, "%s needs %d rows, found %d", what, n, len(rows))
	}
	for i := 0; i < n; i++ {
		if len(rows[i]) != cols {
			return errkind.New(errkind.ParseFailure, "%s row %d has %d values, expected %d", what, i, len(rows[i]), cols)
		}
	}
	return nil
}

// ReadIntrinsicFile reads a 3x3 intrinsic matrix optionally followed by the
// distortion coefficients, on one or more lines. distortionCount of 4 or 5
// requires exactly that many coefficients; 0 accepts 4, 5 or none, and none
// yields a zero 4 coefficient model.
func ReadIntrinsicFile(path string, distortionCount int) (camera.Model, error) {
	rows, err := readRowsFile(path)
	if err != nil {
		return camera.Model{}, err
	}
	if err := checkRows(rows, 3, 3, "intrinsic matrix"); err != nil {
		return camera.Model{}, errkind.Wrapf(err, errkind.ParseFailure, "%s", path)
	}
	var k spatial.Matrix3
	for i := 0; i < 3; i++ {
		copy(k[i][:], rows[i])
	}
	in, err := camera.IntrinsicsFromMatrix(k)
	if err != nil {
		return camera.Model{}, errkind.Wrapf(err, errkind.ParseFailure, "%s", path)
	}

	var coeffs []float64
	for _, row := range rows[3:] {
		coeffs = append(coeffs, row...)
	}
	switch {
	case distortionCount == 0 && len(coeffs) == 0:
		return camera.Model{Intrinsics: in, Distortion: camera.ZeroDistortion(4)}, nil
	case distortionCount != 0 && len(coeffs) != distortionCount:
		return camera.Model{}, errkind.New(errkind.ParseFailure, "%s: expected %d distortion coefficients, found %d",
			path, distortionCount, len(coeffs))
	}
	d, err := camera.NewDistortion(coeffs...)
	if err != nil {
		return camera.Model{}, errkind.Wrapf(err, errkind.ParseFailure, "%s", path)
	}
	return camera.Model{Intrinsics: in, Distortion: d}, nil
}

// WriteIntrinsicFile writes the intrinsic matrix rows followed by one row of
// distortion coefficients.
func WriteIntrinsicFile(path string, model camera.Model) error {
	return writeFile(path, func(w *bufio.Writer) error {
		k := model.Intrinsics.Matrix()
		for i := 0; i < 3; i++ {
			if err := writeRow(w, k[i][:]...); err != nil {
				return err
			}
		}
		return writeRow(w, model.Distortion.Coefficients()...)
	})
}

// ReadRightToLeftFile reads three rotation rows followed by a translation row.
func ReadRightToLeftFile(path string) (spatial.Transform, error) {
	rows, err := readRowsFile(path)
	if err != nil {
		return spatial.Transform{}, err
	}
	if err := checkRows(rows, 4, 3, "right-to-left transform"); err != nil {
		return spatial.Transform{}, errkind.Wrapf(err, errkind.ParseFailure, "%s", path)
	}
	var t spatial.Transform
	for i := 0; i < 3; i++ {
		copy(t.Rotation[i][:], rows[i])
	}
	t.Translation = r3.Vector{X: rows[3][0], Y: rows[3][1], Z: rows[3][2]}
	return t, nil
}

// WriteRightToLeftFile writes t in the ReadRightToLeftFile layout.
func WriteRightToLeftFile(path string, t spatial.Transform) error {
	return writeFile(path, func(w *bufio.Writer) error {
		for i := 0; i < 3; i++ {
			if err := writeRow(w, t.Rotation[i][:]...); err != nil {
				return err
			}
		}
		return writeRow(w, t.Translation.X, t.Translation.Y, t.Translation.Z)
	})
}

// ReadMatrix4File reads a 4x4 matrix, four rows of four values.
func ReadMatrix4File(path string) (spatial.Matrix4, error) {
	rows, err := readRowsFile(path)
	if err != nil {
		return spatial.Matrix4{}, err
	}
	if err := checkRows(rows, 4, 4, "4x4 matrix"); err != nil {
		return spatial.Matrix4{}, errkind.Wrapf(err, errkind.ParseFailure, "%s", path)
	}
	var m spatial.Matrix4
	for i := 0; i < 4; i++ {
		copy(m[i][:], rows[i])
	}
	return m, nil
}

// WriteMatrix4File writes m as four rows.
func WriteMatrix4File(path string, m spatial.Matrix4) error {
	return writeFile(path, func(w *bufio.Writer) error {
		for i := 0; i < 4; i++ {
			if err := writeRow(w, m[i][:]...); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadExtrinsicsFile reads one transform per line as a rotation vector
// followed by a translation.
func ReadExtrinsicsFile(path string) ([]spatial.Transform, error) {
	rows, err := readRowsFile(path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errkind.New(errkind.InputEmpty, "%s holds no extrinsics", path)
	}
	out := make([]spatial.Transform, len(rows))
	for i, row := range rows {
		if len(row) != 6 {
			return nil, errkind.New(errkind.ParseFailure, "%s: line %d has %d values, expected 6", path, i, len(row))
		}
		out[i] = spatial.NewTransform(
			r3.Vector{X: row[0], Y: row[1], Z: row[2]},
			r3.Vector{X: row[3], Y: row[4], Z: row[5]})
	}
	return out, nil
}

// WriteExtrinsicsFile writes one rotation vector and translation per line.
func WriteExtrinsicsFile(path string, ts []spatial.Transform) error {
	return writeFile(path, func(w *bufio.Writer) error {
		for _, t := range ts {
			rv := t.RotationVector()
			if err := writeRow(w, rv.X, rv.Y, rv.Z, t.Translation.X, t.Translation.Y, t.Translation.Z); err != nil {
				return err
			}
		}
		return nil
	})
}
