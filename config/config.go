// Package config resolves pipeline parameters from the environment, an
// optional .env file and the color range file of the static path.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/DaniruKun/steady-tracker/imgproc"
	"github.com/DaniruKun/steady-tracker/tracker"
)

// Session holds the outer surfaces of a run that live outside imgproc.Config.
type Session struct {
	DBPath     string
	ReportPath string
	ServeAddr  string
	OutputFPS  float64
}

type lookupFunc func(key string) string

// Load overlays STEADY_* variables onto base. Variables already set in the
// process environment win over those read from envFile, which may be empty.
func Load(envFile string, base imgproc.Config) (imgproc.Config, Session, error) {
	fileEnv := map[string]string{}
	if envFile != "" {
		var err error
		fileEnv, err = godotenv.Read(envFile)
		if err != nil {
			return base, Session{}, fmt.Errorf("read env file %s: %w", envFile, err)
		}
	}

	lookup := func(key string) string {
		if value := os.Getenv(key); value != "" {
			return value
		}
		return fileEnv[key]
	}

	cfg, session := apply(lookup, base)
	if err := cfg.Validate(); err != nil {
		return base, Session{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, session, nil
}

func apply(lookup lookupFunc, cfg imgproc.Config) (imgproc.Config, Session) {
	cfg.Width = getEnvAsInt(lookup, "STEADY_WIDTH", cfg.Width)
	cfg.Height = getEnvAsInt(lookup, "STEADY_HEIGHT", cfg.Height)
	cfg.MedianBlurSize = getEnvAsInt(lookup, "STEADY_MEDIAN_BLUR", cfg.MedianBlurSize)
	cfg.MaxCorners = getEnvAsInt(lookup, "STEADY_MAX_CORNERS", cfg.MaxCorners)
	cfg.CornerQuality = getEnvAsFloat(lookup, "STEADY_CORNER_QUALITY", cfg.CornerQuality)
	cfg.CornerMinDistance = getEnvAsFloat(lookup, "STEADY_CORNER_MIN_DISTANCE", cfg.CornerMinDistance)
	cfg.InlierThreshold = getEnvAsFloat(lookup, "STEADY_INLIER_THRESHOLD", cfg.InlierThreshold)
	cfg.ColorDifference = getEnvAsBool(lookup, "STEADY_COLOR_DIFFERENCE", cfg.ColorDifference)
	cfg.DiffThreshold = float32(getEnvAsFloat(lookup, "STEADY_DIFF_THRESHOLD", float64(cfg.DiffThreshold)))
	cfg.OpenKernel = getEnvAsInt(lookup, "STEADY_OPEN_KERNEL", cfg.OpenKernel)
	cfg.CloseKernel = getEnvAsInt(lookup, "STEADY_CLOSE_KERNEL", cfg.CloseKernel)
	cfg.BorderThickness = getEnvAsInt(lookup, "STEADY_BORDER", cfg.BorderThickness)
	cfg.MinRegionArea = getEnvAsFloat(lookup, "STEADY_MIN_AREA", cfg.MinRegionArea)
	cfg.StaticMinRegionArea = getEnvAsFloat(lookup, "STEADY_STATIC_MIN_AREA", cfg.StaticMinRegionArea)

	cfg.Tracking.MatchDistance = getEnvAsFloat(lookup, "STEADY_MATCH_DISTANCE", cfg.Tracking.MatchDistance)
	cfg.Tracking.ConfirmFrames = getEnvAsInt(lookup, "STEADY_CONFIRM_FRAMES", cfg.Tracking.ConfirmFrames)
	cfg.Tracking.Association = tracker.Association(getEnv(lookup, "STEADY_ASSOCIATION", string(cfg.Tracking.Association)))

	session := Session{
		DBPath:     getEnv(lookup, "STEADY_DB", ""),
		ReportPath: getEnv(lookup, "STEADY_REPORT", ""),
		ServeAddr:  getEnv(lookup, "STEADY_SERVE", ""),
		OutputFPS:  getEnvAsFloat(lookup, "STEADY_OUTPUT_FPS", 30),
	}
	return cfg, session
}

func getEnv(lookup lookupFunc, key, defaultValue string) string {
	if value := lookup(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(lookup lookupFunc, key string, defaultValue int) int {
	if value := lookup(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(lookup lookupFunc, key string, defaultValue float64) float64 {
	if value := lookup(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(lookup lookupFunc, key string, defaultValue bool) bool {
	if value := lookup(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
