package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/DaniruKun/steady-tracker/config"
	"github.com/DaniruKun/steady-tracker/imgproc"
	"github.com/DaniruKun/steady-tracker/utils"
)

var segmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Outline regions of fixed colors",
	Long: `Outlines regions whose HSV color falls in the configured ranges on every frame.
Ranges are read from a limits.json file when present, otherwise four green
bands are used. No identities are kept.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath, _ := cmd.Flags().GetString("file")
		if filePath == "" {
			return errors.New("a video file is required (-f)")
		}

		log := utils.NewLogger(os.Stderr, debugFlag(cmd))

		envFile, _ := cmd.Flags().GetString("env")
		cfg, session, err := config.Load(envFile, imgproc.DefaultConfig())
		if err != nil {
			return err
		}
		cfg.ShowGUI, _ = cmd.Flags().GetBool("gui")
		overrideSession(cmd, &session)

		limits, _ := cmd.Flags().GetString("limits")
		ranges, err := config.LoadColorRanges(limits)
		if err != nil {
			return err
		}
		for _, r := range ranges {
			log.Info().
				Str("H", fmt.Sprintf("%g-%g", r.H.Min, r.H.Max)).
				Str("S", fmt.Sprintf("%g-%g", r.S.Min, r.S.Max)).
				Str("V", fmt.Sprintf("%g-%g", r.V.Min, r.V.Max)).
				Msg("Color range")
		}

		video, err := gocv.VideoCaptureFile(filePath)
		if err != nil {
			return fmt.Errorf("error opening video file %s: %w", filePath, err)
		}
		defer video.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		save, _ := cmd.Flags().GetString("save")
		out, err := openOutputs(ctx, log, outputOptions{
			source:  filePath,
			showGUI: cfg.ShowGUI,
			save:    save,
			suffix:  "segmented",
			session: session,
		})
		if err != nil {
			return err
		}

		summary, runErr := imgproc.RunSegmentation(ctx, video, ranges, cfg, log, out.sinks...)
		if err := out.finish(summary); err != nil {
			log.Error().Err(err).Msg("Failed to finalize outputs")
		}
		return runErr
	},
}

func init() {
	segmentCmd.Flags().String("limits", "limits.json", "JSON file with HSV limits")
	rootCmd.AddCommand(segmentCmd)
}
