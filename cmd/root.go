package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "practicetempo",
	Short: "Tempo- and pitch-adjustable practice music player",
	Long: `practicetempo - a real-time audio playback engine for practicing dance
or an instrument against recorded music, with on-the-fly tempo change and
gapless playlist sequencing.

Features:
  - Blocking SPSC ring buffer feeding a PortAudio callback-mode output
  - MP3, FLAC, WAV and OGG/Vorbis decoding
  - Live tempo change via soxr resampling (pitch tracks tempo)
  - Linear fade-out on track change, skip and stop
  - Per-track duration limits and skip-start offsets
  - Sample rate transformation and format conversion

Commands:
  - play: Play a file or a directory of files as a practice session
  - transform: Convert audio files to different sample rates and WAV format`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
