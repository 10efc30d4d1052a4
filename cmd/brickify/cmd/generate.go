package cmd

import (
	"fmt"
	"time"

	"github.com/jmylchreest/brickify/internal/codec"
	"github.com/jmylchreest/brickify/internal/testsrc"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate <output>",
	Short: "Write a synthetic fMP4 test file",
	Long: `Write a fragmented MP4 file with an MJPEG test pattern and a PCM tone
or opaque AAC access units. Useful as transcode input or as a file capture
source.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	defaults := testsrc.DefaultOptions()
	generateCmd.Flags().Int("frames", defaults.Frames, "Number of video frames (0 omits the video track)")
	generateCmd.Flags().Int("audio-samples", defaults.AudioSamples, "Number of audio samples (0 omits the audio track)")
	generateCmd.Flags().String("audio-codec", string(defaults.AudioCodec), "Audio codec (pcm, aac)")
	generateCmd.Flags().Int("width", defaults.Width, "Frame width")
	generateCmd.Flags().Int("height", defaults.Height, "Frame height")
	generateCmd.Flags().Int("frame-rate", defaults.FrameRate, "Frames per second")
	generateCmd.Flags().Duration("fragment-duration", time.Second, "Target fragment duration")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	opts := testsrc.DefaultOptions()
	opts.Frames, _ = flags.GetInt("frames")
	opts.AudioSamples, _ = flags.GetInt("audio-samples")
	opts.Width, _ = flags.GetInt("width")
	opts.Height, _ = flags.GetInt("height")
	opts.FrameRate, _ = flags.GetInt("frame-rate")
	opts.FragmentDuration, _ = flags.GetDuration("fragment-duration")

	name, _ := flags.GetString("audio-codec")
	audio, ok := codec.ParseAudio(name)
	if !ok {
		return fmt.Errorf("unknown audio codec %q", name)
	}
	opts.AudioCodec = audio

	info, err := testsrc.Generate(args[0], opts)
	if err != nil {
		return fmt.Errorf("generating %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d frames, %d audio samples\n", info.Path, info.Frames, info.AudioSamples)
	return nil
}
