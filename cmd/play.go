package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/drgolem/practicetempo/internal/player"
	"github.com/drgolem/practicetempo/internal/playlist"
	"github.com/drgolem/practicetempo/pkg/types"

	"github.com/drgolem/go-portaudio/portaudio"
	"github.com/spf13/cobra"
)

// supportedExtensions mirrors pkg/decoders/factory.go's dispatch table, used
// here to build a playlist out of every playable file in a directory.
var supportedExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".fla":  true,
	".ogg":  true,
	".wav":  true,
}

var (
	playDeviceIdx  int
	playFrames     int
	playTempo      float64
	playDurationLt float64
	playSkipStart  float64
	playVerbose    bool
)

// playCmd represents the play command
var playCmd = &cobra.Command{
	Use:   "play <audio_file_or_directory>",
	Short: "Play a file, or a directory of files as a practice session",
	Long: `Play a single audio file, or every supported audio file in a directory
in sorted order, through the tempo- and fade-aware playback engine.

Examples:
  # Play a single file
  practicetempo play music.mp3

  # Play every track in a directory back to back
  practicetempo play ./practice-set/

  # Play at 1.2x tempo, on a specific output device
  practicetempo play --tempo 1.2 --device 0 music.flac

  # Stop each track after 90 seconds regardless of its length
  practicetempo play --duration-limit 90 ./practice-set/

Supported Formats:
  MP3 (.mp3), FLAC (.flac/.fla), OGG/Vorbis (.ogg), WAV (.wav)`,
	Args: cobra.ExactArgs(1),
	Run:  runPlay,
}

func init() {
	rootCmd.AddCommand(playCmd)

	playCmd.Flags().IntVarP(&playDeviceIdx, "device", "d", 1, "Audio output device index")
	playCmd.Flags().IntVarP(&playFrames, "frames", "f", 512, "Audio frames per buffer")
	playCmd.Flags().Float64VarP(&playTempo, "tempo", "t", 1.0, "Initial tempo coefficient (1.0 = original speed)")
	playCmd.Flags().Float64Var(&playDurationLt, "duration-limit", -1, "Seconds to play each track before pausing/advancing (<0 = unlimited)")
	playCmd.Flags().Float64Var(&playSkipStart, "skip-start", 0, "Seconds to skip at the start of each track")
	playCmd.Flags().BoolVarP(&playVerbose, "verbose", "v", false, "Verbose output (debug logging)")
}

func runPlay(cmd *cobra.Command, args []string) {
	logLevel := slog.LevelInfo
	if playVerbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	path := args[0]
	files, err := resolveTracks(path)
	if err != nil {
		slog.Error("failed to resolve input path", "path", path, "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		slog.Error("no supported audio files found", "path", path)
		os.Exit(1)
	}

	slog.Info("initializing PortAudio")
	if err := portaudio.Initialize(); err != nil {
		slog.Error("failed to initialize PortAudio", "error", err)
		slog.Error("hint: make sure PortAudio is installed on your system")
		os.Exit(1)
	}
	defer portaudio.Terminate()
	slog.Info("PortAudio initialized", "version", portaudio.GetVersion())

	list := playlist.NewList()
	for _, f := range files {
		item := playlist.NewSongItem(f)
		item.SetTempoCoeff(playTempo)
		item.SetDurationLimit(playDurationLt)
		item.SetSkipStart(playSkipStart)
		list.Add(item)
	}

	devCfg := player.DeviceConfig(playFrames, playDeviceIdx, 250*time.Millisecond)
	// Last candidate in device.FallbackFormats. PortAudio offers no cheap
	// preferred-format query here, so a common stereo 16-bit rate stands in
	// for the device's native format.
	preferred := types.AudioFormat{SampleRate: 44100, Channels: 2, BitsPerSample: 16}

	p := player.New(list, preferred, devCfg)
	defer p.Shutdown()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	statusDone := make(chan struct{})
	go monitorPlaybackStatus(p, statusDone)

	slog.Info("starting playback", "tracks", len(files))
	p.Start()

	done := make(chan struct{})
	go func() {
		waitForFinalStop(p)
		close(done)
	}()

	select {
	case <-done:
		slog.Info("playback completed")
	case sig := <-sigChan:
		slog.Info("signal received, stopping playback", "signal", sig)
		p.FadeOut()
		waitForFinalStop(p)
	}

	close(statusDone)
	slog.Info("exiting")
}

// waitForFinalStop polls until the Player settles in Stopped, i.e. the
// playlist has been exhausted or an explicit fade-to-stop completed.
// internal/player exposes state via State(), not a blocking join, since the
// output thread has to stay free to process new commands (Next/Prev/Jump)
// at any time; a blocking join would defeat that by definition.
func waitForFinalStop(p *player.Player) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if p.State() == player.Stopped {
			return
		}
	}
}

func monitorPlaybackStatus(p *player.Player, done chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			args := []any{
				"state", p.State(),
				"position_seconds", fmt.Sprintf("%.1f", p.CurrentPositionSeconds()),
			}
			if remaining := p.RemainingTimeSeconds(); remaining >= 0 {
				args = append(args, "remaining_seconds", fmt.Sprintf("%.1f", remaining))
			}
			slog.Info("playback status", args...)
		case ev := <-p.Events:
			logEvent(ev)
		case <-done:
			return
		}
	}
}

func logEvent(ev player.Event) {
	var item string
	if ev.Item != nil {
		item = ev.Item.DisplayName()
	}
	switch ev.Kind {
	case player.EventTempoCoeffChanged:
		slog.Info(string(ev.Kind), "item", item, "tempo", ev.Tempo)
	default:
		slog.Info(string(ev.Kind), "item", item)
	}
}

// resolveTracks returns a single-element slice for a file argument, or every
// supported file in a directory argument in sorted (display) order.
func resolveTracks(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if supportedExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
