//go:build !no_cgo

// Package main is the stereocalib command: stereo endoscope calibration,
// frame/pose matching and point reconstruction for tracked recordings.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"stereocalib/internal/logging"
	"stereocalib/pkg/config"
)

const (
	// Flags.
	flagConfig          = "config"
	flagVerbose         = "verbose"
	flagOutput          = "output"
	flagLeft            = "left"
	flagRight           = "right"
	flagFixedIntrinsics = "fixed-intrinsics"
	flagHandEye         = "handeye"
	flagPrefix          = "prefix"
	flagCalibration     = "calibration"
	flagRecording       = "recording"
	flagFrame           = "frame"
	flagTracker         = "tracker"
	flagInterpolate     = "interpolate"
	flagPicked          = "picked"
	flagGold            = "gold"
	flagPoints          = "points"
	flagVideo           = "video"
	flagID              = "id"
	flagStart           = "start"
	flagStop            = "stop"
	flagStep            = "step"

	defaultConfigFile = "stereocalib.yaml"
)

// state is shared by every command once Before has run.
type state struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
}

func pipelineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     flagCalibration,
			Usage:    "stereo calibration `DIR`",
			Required: true,
		},
		&cli.StringFlag{
			Name:     flagRecording,
			Usage:    "recording `DIR` holding the frame map, video and tracking directories",
			Required: true,
		},
	}
}

func main() {
	st := &state{}

	app := &cli.App{
		Name:  "stereocalib",
		Usage: "calibrate tracked stereo endoscopes and reconstruct picked points",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   defaultConfigFile,
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    flagVerbose,
				Aliases: []string{"v"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String(flagConfig))
			if err != nil {
				return err
			}
			st.cfg = cfg
			st.logger = logging.NewLogger("stereocalib", c.Bool(flagVerbose) || cfg.Output.Verbose)
			return nil
		},
		After: func(c *cli.Context) error {
			if st.logger != nil {
				//nolint:errcheck
				st.logger.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "init-config",
				Usage: "write a configuration file with default values",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagOutput,
						Value: defaultConfigFile,
						Usage: "configuration `FILE` to write",
					},
				},
				Action: st.initConfigAction,
			},
			{
				Name:  "calibrate",
				Usage: "calibrate one camera, or a stereo pair when right images are given",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagLeft,
						Usage:    "`DIR` of left (or mono) chessboard images",
						Required: true,
					},
					&cli.StringFlag{
						Name:  flagRight,
						Usage: "`DIR` of right chessboard images, matched to the left by sort order",
					},
					&cli.StringFlag{
						Name:  flagFixedIntrinsics,
						Usage: "calibration `DIR` whose intrinsics are kept during stereo calibration",
					},
					&cli.StringFlag{
						Name:  flagHandEye,
						Usage: "hand-eye matrix `FILE` stored with a stereo calibration",
					},
					&cli.StringFlag{
						Name:     flagOutput,
						Usage:    "calibration output `DIR`",
						Required: true,
					},
					&cli.StringFlag{
						Name:  flagPrefix,
						Value: "calib",
						Usage: "file name prefix of the written calibration",
					},
				},
				Action: st.calibrateAction,
			},
			{
				Name:  "match",
				Usage: "print the tracker and camera matrices matched to a video frame",
				Flags: append([]cli.Flag{
					&cli.IntFlag{
						Name:     flagFrame,
						Usage:    "video frame number",
						Required: true,
					},
					&cli.IntFlag{
						Name:  flagTracker,
						Value: -1,
						Usage: "tracker to print, the configured camera tracker when negative",
					},
					&cli.BoolFlag{
						Name:  flagInterpolate,
						Usage: "interpolate the tracker pose to the frame timestamp",
					},
				}, pipelineFlags()...),
				Action: st.matchAction,
			},
			{
				Name:  "triangulate",
				Usage: "triangulate picked stereo features into world points",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     flagPicked,
						Usage:    "picked objects `FILE`",
						Required: true,
					},
					&cli.StringFlag{
						Name:     flagOutput,
						Usage:    "world points `FILE`",
						Required: true,
					},
					&cli.StringFlag{
						Name:  flagGold,
						Usage: "gold standard world points `FILE` to validate against",
					},
				}, pipelineFlags()...),
				Action: st.triangulateAction,
			},
			{
				Name:  "project",
				Usage: "project world points onto the recorded video",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     flagPoints,
						Usage:    "world points `FILE`",
						Required: true,
					},
					&cli.StringFlag{
						Name:  flagVideo,
						Usage: "video `FILE`, the recording's video when empty",
					},
					&cli.StringFlag{
						Name:     flagOutput,
						Usage:    "overlay image `DIR`",
						Required: true,
					},
				}, pipelineFlags()...),
				Action: st.projectAction,
			},
			{
				Name:  "lag-sweep",
				Usage: "find the video lag that holds a picked fixed feature still",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     flagPicked,
						Usage:    "picked objects `FILE` holding the feature on many frames",
						Required: true,
					},
					&cli.IntFlag{
						Name:     flagID,
						Usage:    "ID of the fixed feature",
						Required: true,
					},
					&cli.Float64Flag{
						Name:  flagStart,
						Value: 0,
						Usage: "first trial lag in ms",
					},
					&cli.Float64Flag{
						Name:  flagStop,
						Value: 100,
						Usage: "last trial lag in ms",
					},
					&cli.Float64Flag{
						Name:  flagStep,
						Value: 5,
						Usage: "lag step in ms",
					},
				}, pipelineFlags()...),
				Action: st.lagSweepAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("stereocalib: %v", err)
	}
}
