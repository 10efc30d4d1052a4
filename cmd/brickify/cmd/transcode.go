package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jmylchreest/brickify/internal/observability"
	"github.com/jmylchreest/brickify/internal/transcode"
	"github.com/spf13/cobra"
)

var transcodeCmd = &cobra.Command{
	Use:   "transcode <input>",
	Short: "Render an fMP4 file with the brick effect",
	Long: `Render every video frame of a fragmented MP4 file with the brick effect
and copy its audio samples unchanged.

The input must carry one video and one audio track. The result is written
under transcode.temp_dir and its path is printed; --output moves it.`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscode,
}

func init() {
	rootCmd.AddCommand(transcodeCmd)

	transcodeCmd.Flags().Int("block-size", 0, "Block size in pixels (default effect.block_size)")
	transcodeCmd.Flags().StringP("output", "o", "", "Move the result to this path")
	transcodeCmd.Flags().String("temp-dir", "", "Directory for the rendered file")

	mustBindPFlag("transcode.temp_dir", transcodeCmd.Flags().Lookup("temp-dir"))
}

func runTranscode(cmd *cobra.Command, args []string) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	bounds, err := boundsFromConfig(cfg.Effect)
	if err != nil {
		return fmt.Errorf("effect bounds: %w", err)
	}

	blockSize, _ := cmd.Flags().GetInt("block-size")
	if blockSize == 0 {
		blockSize = cfg.Effect.BlockSize
	}
	output, _ := cmd.Flags().GetString("output")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.WithComponent(slog.Default(), "transcode")
	defer observability.TimedOperationWithError(ctx, logger, "transcode", &err)()

	opts := transcoderOptions(cfg, bounds)
	opts.Logger = logger
	res := transcode.New(opts).Transcode(ctx, args[0], blockSize)
	if !res.OK() {
		return res.Err
	}

	location := res.Location
	if output != "" {
		if err := moveFile(location, output); err != nil {
			return fmt.Errorf("moving result: %w", err)
		}
		location = output
	}
	fmt.Fprintln(cmd.OutOrStdout(), location)
	return nil
}

// moveFile renames src to dst, copying when they are on different
// filesystems.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		return errors.Join(err, out.Close(), os.Remove(dst))
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
