/*
Copyright © 2022 Daniils Petrovs <thedanpetrov@gmail.com>

*/
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/DaniruKun/steady-tracker/config"
	"github.com/DaniruKun/steady-tracker/imgproc"
	"github.com/DaniruKun/steady-tracker/tracker"
	"github.com/DaniruKun/steady-tracker/utils"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "steady-tracker",
	Short: "Steady Tracker",
	Long: `Detects and tracks moving objects in video from a static but jittery camera.
Camera shake is compensated frame to frame, changed regions are extracted and
each region gets a persistent identity once it has been seen on consecutive frames.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath, _ := cmd.Flags().GetString("file")
		if filePath == "" {
			return errors.New("a video file is required (-f)")
		}

		log := utils.NewLogger(os.Stderr, debugFlag(cmd))

		base := imgproc.DefaultConfig()
		if paintOnly, _ := cmd.Flags().GetBool("paint-only"); paintOnly {
			base = imgproc.PaintOnlyConfig()
		}

		envFile, _ := cmd.Flags().GetString("env")
		cfg, session, err := config.Load(envFile, base)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("association") {
			association, _ := cmd.Flags().GetString("association")
			cfg.Tracking.Association = tracker.Association(association)
		}
		cfg.ShowGUI, _ = cmd.Flags().GetBool("gui")
		cfg.Debug = debugFlag(cmd)
		overrideSession(cmd, &session)

		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		save, _ := cmd.Flags().GetString("save")
		out, err := openOutputs(ctx, log, outputOptions{
			source:  filePath,
			showGUI: cfg.ShowGUI,
			save:    save,
			suffix:  "tracked",
			session: session,
		})
		if err != nil {
			return err
		}

		log.Info().
			Str("file", filePath).
			Bool("tracking", cfg.Tracking.TrackingEnabled).
			Str("association", string(cfg.Tracking.Association)).
			Msg("Running Steady Tracker")

		summary, runErr := imgproc.RunTrackingFromFile(ctx, filePath, cfg, log, out.sinks...)
		if err := out.finish(summary); err != nil {
			log.Error().Err(err).Msg("Failed to finalize outputs")
		}
		return runErr
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func debugFlag(cmd *cobra.Command) bool {
	debug, _ := cmd.Flags().GetBool("debug")
	return debug
}

func overrideSession(cmd *cobra.Command, session *config.Session) {
	if cmd.Flags().Changed("db") {
		session.DBPath, _ = cmd.Flags().GetString("db")
	}
	if cmd.Flags().Changed("report") {
		session.ReportPath, _ = cmd.Flags().GetString("report")
	}
	if cmd.Flags().Changed("serve") {
		session.ServeAddr, _ = cmd.Flags().GetString("serve")
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("file", "f", "", "Video file to run the tracker on")
	rootCmd.PersistentFlags().BoolP("gui", "g", false, "Show GUI with preview")
	rootCmd.PersistentFlags().StringP("save", "s", "", "Save overlay video (default <file>_<mode>.avi)")
	rootCmd.PersistentFlags().Lookup("save").NoOptDefVal = utils.AutoPath
	rootCmd.PersistentFlags().String("env", "", "Read STEADY_* settings from this .env file")
	rootCmd.PersistentFlags().String("db", "", "Record the session event log in this SQLite file")
	rootCmd.PersistentFlags().String("report", "", "Write an HTML session report to this file")
	rootCmd.PersistentFlags().String("serve", "", "Stream overlays to websocket viewers on this address, e.g. :8080")
	rootCmd.PersistentFlags().Bool("debug", false, "Log track lifecycle transitions")

	rootCmd.Flags().Bool("paint-only", false, "Fill confirmed regions instead of following them with optical flow")
	rootCmd.Flags().String("association", string(tracker.AssociateGreedy), "Observation matching: greedy or optimal")
}
