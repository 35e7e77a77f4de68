package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/reelmix/reelmix/internal/batch"
	"github.com/reelmix/reelmix/internal/config"
	"github.com/reelmix/reelmix/internal/ffmpeg"
	"github.com/reelmix/reelmix/internal/logging"
	"github.com/reelmix/reelmix/internal/media"
	"github.com/reelmix/reelmix/internal/scanner"
)

var (
	cfgFile string
	verbose bool

	extractMode string
	outputDir   string
	bgmPath     string
	count       int
	rescan      bool
	seed        int64
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "reelmix",
	Short: "reelmix - batch video mixer",
	Long:  "Assembles short clips and narration tracks into finished videos, scene by scene, driven by FFmpeg.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(composeCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(probeCmd)
}

var composeCmd = &cobra.Command{
	Use:   "compose [material folders...]",
	Short: "Compose output videos from material folders",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		folders, err := materialFolders(args)
		if err != nil {
			return err
		}

		bar := progressbar.NewOptions(100,
			progressbar.OptionSetDescription("starting"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		onProgress := func(message string, percent float64) {
			bar.Describe(message)
			if percent >= 0 {
				bar.Set(int(percent))
			}
		}

		orch, err := batch.New(cfg, onProgress)
		if err != nil {
			return err
		}
		defer orch.ReleaseResources()

		// Ctrl-C requests a cooperative stop; completed outputs are kept.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			<-sigCh
			orch.RequestStop()
		}()

		summary, err := orch.Run(cmd.Context(), batch.Request{
			Folders:   folders,
			BGMPath:   bgmPath,
			OutputDir: outputDir,
			Count:     count,
			Rescan:    rescan,
			Seed:      seed,
		})
		if err != nil {
			return err
		}
		bar.Finish()

		for _, out := range summary.Outputs {
			if out.State == batch.StateDone {
				fmt.Printf("  %d: %s (%d scenes)\n", out.Index, out.Path, out.Scenes)
			} else {
				fmt.Printf("  %d: failed: %v\n", out.Index, out.Err)
			}
		}
		fmt.Printf("%d/%d succeeded in %s\n",
			summary.Completed, summary.Requested, summary.Elapsed.Round(time.Second))
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan [material folders...]",
	Short: "Scan material folders and list discovered scenes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		if err := cfg.Validate(); err != nil {
			return err
		}

		folders, err := materialFolders(args)
		if err != nil {
			return err
		}

		// Scanning works without ffmpeg; narration durations then come
		// from the header fast path only.
		exec, err := ffmpeg.New(log.Logger, cfg.FFmpegPath, cfg.FFprobePath, cfg.Threads)
		if err != nil {
			log.Warn().Err(err).Msg("ffmpeg unavailable, durations may be incomplete")
			exec = nil
		}

		scn := scanner.New(exec, cfg)
		scn.Rescan = rescan
		scenes, err := scn.Scan(cmd.Context(), folders)
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(scenes))
		for key := range scenes {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			sc := scenes[key]
			fmt.Printf("%s: %d videos, %d narrations (%s)\n",
				sc.Key, len(sc.Videos), len(sc.Audios), sc.ExtractMode)
		}
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe [media file]",
	Short: "Print media metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		exec, err := ffmpeg.New(log.Logger, cfg.FFmpegPath, cfg.FFprobePath, cfg.Threads)
		if err != nil {
			return err
		}

		info, err := exec.Probe(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("duration: %.2fs\n", info.Duration)
		fmt.Printf("video: %dx%d @ %.2f fps (%s)\n", info.Width, info.Height, info.FPS, info.VideoCodec)
		if info.HasAudio {
			fmt.Printf("audio: %s\n", info.AudioCodec)
		}
		return nil
	},
}

// materialFolders maps positional folder arguments to the configured
// extract mode.
func materialFolders(args []string) ([]media.MaterialFolder, error) {
	mode := media.ExtractMode(extractMode)
	if mode != media.SingleVideo && mode != media.MultiVideo {
		return nil, fmt.Errorf("invalid extract mode %q", extractMode)
	}

	folders := make([]media.MaterialFolder, 0, len(args))
	for _, path := range args {
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("material folder %s is not a directory", path)
		}
		folders = append(folders, media.MaterialFolder{
			Path:        path,
			DisplayName: path,
			ExtractMode: mode,
		})
	}
	return folders, nil
}

func init() {
	composeCmd.Flags().StringVar(&extractMode, "mode", string(media.SingleVideo), "extract mode: single_video or multi_video")
	composeCmd.Flags().StringVarP(&outputDir, "output", "o", "./output", "output directory")
	composeCmd.Flags().StringVar(&bgmPath, "bgm", "", "background music file")
	composeCmd.Flags().IntVarP(&count, "count", "n", 1, "number of output videos")
	composeCmd.Flags().BoolVar(&rescan, "rescan", false, "bypass the folder metadata cache")
	composeCmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 = clock)")

	scanCmd.Flags().StringVar(&extractMode, "mode", string(media.SingleVideo), "extract mode: single_video or multi_video")
	scanCmd.Flags().BoolVar(&rescan, "rescan", false, "bypass the folder metadata cache")
}
