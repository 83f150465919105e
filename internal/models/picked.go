package models

import (
	"strings"

	"github.com/golang/geo/r3"

	"stereocalib/internal/errkind"
)

// Channel names the coordinate frame a picked object was recorded in
type Channel int

const (
	// LeftChannel is a pick in left screen pixels
	LeftChannel Channel = iota
	// RightChannel is a pick in right screen pixels
	RightChannel
	// WorldChannel is a point in tracker world coordinates
	WorldChannel
	// LensChannel is a point in the left lens frame
	LensChannel
)

var channelNames = []string{"left", "right", "world", "lens"}

func (c Channel) String() string {
	if c < 0 || int(c) >= len(channelNames) {
		return "unknown"
	}
	return channelNames[c]
}

// ParseChannel converts a channel name.
func ParseChannel(s string) (Channel, error) {
	for i, name := range channelNames {
		if strings.EqualFold(s, name) {
			return Channel(i), nil
		}
	}
	return LeftChannel, errkind.New(errkind.ParseFailure, "unknown channel %q", s)
}

// MarshalYAML writes the channel by name.
func (c Channel) MarshalYAML() (interface{}, error) {
	return c.String(), nil
}

// UnmarshalYAML reads the channel by name.
func (c *Channel) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseChannel(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// PickedObject is a point or polyline picked on one frame, or a gold standard
// point in world or lens coordinates. Screen picks store pixels in X and Y
// with Z unused.
type PickedObject struct {
	// ID pairs the left and right picks of the same physical feature
	ID int `yaml:"id"`

	// FrameNumber is the video frame the pick was made on
	FrameNumber int `yaml:"frameNumber"`

	// Channel is the coordinate frame of Points
	Channel Channel `yaml:"channel"`

	// Timestamp is the hardware timestamp of the frame in nanoseconds
	Timestamp int64 `yaml:"timestamp"`

	// IsLine marks a polyline rather than a single point
	IsLine bool `yaml:"isLine"`

	// Points holds one point, or the vertices of the polyline
	Points []r3.Vector `yaml:"points"`
}

// Validate checks the pick holds points and a point pick holds exactly one.
func (p PickedObject) Validate() error {
	if len(p.Points) == 0 {
		return errkind.New(errkind.InputEmpty, "picked object %d on frame %d has no points", p.ID, p.FrameNumber)
	}
	if !p.IsLine && len(p.Points) != 1 {
		return errkind.New(errkind.InvalidInput, "picked point %d on frame %d has %d points",
			p.ID, p.FrameNumber, len(p.Points))
	}
	return nil
}

// IsScreen reports whether the pick is in left or right pixel coordinates.
func (p PickedObject) IsScreen() bool {
	return p.Channel == LeftChannel || p.Channel == RightChannel
}
