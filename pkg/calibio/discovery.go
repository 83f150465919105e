package calibio

import (
	"path/filepath"

	"stereocalib/internal/errkind"
	"stereocalib/internal/files"
	"stereocalib/pkg/camera"
	"stereocalib/pkg/spatial"
)

// File name patterns of a calibration directory. Each must match exactly one file.
const (
	LeftIntrinsicPattern  = "*.left.intrinsic.txt"
	RightIntrinsicPattern = "*.right.intrinsic.txt"
	RightToLeftPattern    = "*.r2l.txt"
	HandEyePattern        = "*.handeye.txt"
)

// Per-view extrinsics written next to a calibration.
const (
	leftExtrinsicsSuffix  = ".left.extrinsics.txt"
	rightExtrinsicsSuffix = ".right.extrinsics.txt"
)

// StereoCalibration is the content of a calibration directory.
type StereoCalibration struct {
	Left, Right camera.Model
	RightToLeft spatial.Transform

	// HandEye maps the left camera frame into the frame of the tracked body
	// mounted on the rig
	HandEye spatial.Matrix4
}

// LoadStereoCalibration loads the four calibration files of dir. A pattern
// with zero or several matches fails with DiscoveryAmbiguity.
func LoadStereoCalibration(dir string, distortionCount int) (*StereoCalibration, error) {
	paths := make(map[string]string, 4)
	for _, pattern := range []string{LeftIntrinsicPattern, RightIntrinsicPattern, RightToLeftPattern, HandEyePattern} {
		p, err := files.FindOne(dir, pattern)
		if err != nil {
			return nil, err
		}
		paths[pattern] = p
	}
	return LoadStereoCalibrationFiles(
		paths[LeftIntrinsicPattern], paths[RightIntrinsicPattern],
		paths[RightToLeftPattern], paths[HandEyePattern], distortionCount)
}

// LoadStereoCalibrationFiles loads a calibration from explicit paths. An
// empty handEye path leaves the identity.
func LoadStereoCalibrationFiles(left, right, r2l, handEye string, distortionCount int) (*StereoCalibration, error) {
	var (
		cal StereoCalibration
		err error
	)
	if cal.Left, err = ReadIntrinsicFile(left, distortionCount); err != nil {
		return nil, err
	}
	if cal.Right, err = ReadIntrinsicFile(right, distortionCount); err != nil {
		return nil, err
	}
	if cal.Left.Distortion.Count != cal.Right.Distortion.Count {
		return nil, errkind.New(errkind.ParseFailure, "left camera has %d distortion coefficients but right has %d",
			cal.Left.Distortion.Count, cal.Right.Distortion.Count)
	}
	if cal.RightToLeft, err = ReadRightToLeftFile(r2l); err != nil {
		return nil, err
	}
	cal.HandEye = spatial.Identity4()
	if handEye != "" {
		if cal.HandEye, err = ReadMatrix4File(handEye); err != nil {
			return nil, err
		}
	}
	return &cal, nil
}

// SaveStereoCalibration writes the calibration files of prefix into dir, in
// the layout LoadStereoCalibration reads.
func SaveStereoCalibration(dir, prefix string, cal *StereoCalibration) error {
	base := filepath.Join(dir, prefix)
	if err := WriteIntrinsicFile(base+".left.intrinsic.txt", cal.Left); err != nil {
		return err
	}
	if err := WriteIntrinsicFile(base+".right.intrinsic.txt", cal.Right); err != nil {
		return err
	}
	if err := WriteRightToLeftFile(base+".r2l.txt", cal.RightToLeft); err != nil {
		return err
	}
	return WriteMatrix4File(base+".handeye.txt", cal.HandEye)
}

// SaveViewExtrinsics writes the per-view left and right extrinsics of prefix into dir.
func SaveViewExtrinsics(dir, prefix string, left, right []spatial.Transform) error {
	base := filepath.Join(dir, prefix)
	if err := WriteExtrinsicsFile(base+leftExtrinsicsSuffix, left); err != nil {
		return err
	}
	return WriteExtrinsicsFile(base+rightExtrinsicsSuffix, right)
}
