package cmd

import (
	"github.com/jmylchreest/brickify/internal/bufpool"
	"github.com/jmylchreest/brickify/internal/config"
	"github.com/jmylchreest/brickify/internal/effect"
	"github.com/jmylchreest/brickify/internal/transcode"
)

func boundsFromConfig(cfg config.EffectConfig) (effect.Bounds, error) {
	b := effect.Bounds{Min: cfg.MinBlockSize, Max: cfg.MaxBlockSize, Step: cfg.Step}
	return b, b.Validate()
}

func transcoderOptions(cfg *config.Config, bounds effect.Bounds) transcode.Options {
	return transcode.Options{
		TempDir:          cfg.Transcode.TempDir,
		Width:            cfg.Transcode.Width,
		Height:           cfg.Transcode.Height,
		PoolSize:         cfg.Pool.Size,
		PoolPolicy:       bufpool.Policy(cfg.Pool.Policy),
		PoolMaxBytes:     cfg.Pool.MaxBytes.Bytes(),
		FragmentDuration: cfg.Transcode.FragmentDuration,
		JPEGQuality:      cfg.Transcode.JPEGQuality,
		Bounds:           bounds,
	}
}

// recorderOptions leaves Width and Height zero so recordings follow the
// capture geometry.
func recorderOptions(cfg *config.Config) transcode.RecorderOptions {
	return transcode.RecorderOptions{
		OutputDir:        cfg.Recording.OutputDir,
		QueueSize:        cfg.Recording.QueueSize,
		PoolSize:         cfg.Pool.Size,
		FragmentDuration: cfg.Recording.FragmentDuration,
		JPEGQuality:      cfg.Recording.JPEGQuality,
	}
}
