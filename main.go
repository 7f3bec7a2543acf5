package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/chenata22/SoundMixML/audio"
	"github.com/chenata22/SoundMixML/config"
	"github.com/chenata22/SoundMixML/denoise"
	"github.com/chenata22/SoundMixML/engine"
	"github.com/chenata22/SoundMixML/logging"
	"github.com/chenata22/SoundMixML/observe"
	"github.com/chenata22/SoundMixML/sound"
	"github.com/chenata22/SoundMixML/transport"
)

var rootCmd = &cobra.Command{
	Use:   "soundmix <background-audio>",
	Short: "Mix background music into live microphone audio steered by a remote classifier",
	Long: `soundmix captures the default microphone, denoises and gates it, streams
voiced audio to a classifier over TCP and plays either voice over quiet music
or music alone, depending on the classifier's latest decision.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().String("env-file", "", "load environment from this file instead of .env")
	rootCmd.Flags().String("server", "", "classifier address host:port (overrides SOUNDMIX_SERVER_ADDR)")
	rootCmd.Flags().String("backend", "", "audio backend: portaudio or malgo (overrides SOUNDMIX_AUDIO_BACKEND)")
	rootCmd.Flags().String("log-level", "", "log level: debug, info, warn, error (overrides SOUNDMIX_LOG_LEVEL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("server"); v != "" {
		cfg.ServerAddr = v
	}
	if v, _ := cmd.Flags().GetString("backend"); v != "" {
		cfg.AudioBackend = strings.ToLower(v)
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	track, err := sound.Load(args[0])
	if err != nil {
		return fmt.Errorf("failed to load background audio: %w", err)
	}
	log.Info().
		Str("path", args[0]).
		Int("samples", track.Len()).
		Int("sample_rate", track.SampleRate).
		Msg("background audio loaded")
	if track.SampleRate != 0 && track.SampleRate != cfg.SampleRate {
		log.Warn().
			Int("file_rate", track.SampleRate).
			Int("pipeline_rate", cfg.SampleRate).
			Msg("background audio sample rate differs from the pipeline; it will play at the wrong speed")
	}

	client, err := transport.Dial(ctx, cfg.ServerAddr, transport.Options{
		DialTimeout: cfg.DialTimeout,
		IOTimeout:   cfg.IOTimeout,
		PassToken:   cfg.PassToken,
		Logger:      logging.Component(log, "transport"),
	})
	if err != nil {
		return err
	}

	suppressor, err := denoise.New(logging.Component(log, "denoise"))
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to create noise suppressor: %w", err)
	}

	var metrics *observe.Metrics
	if cfg.MetricsAddr != "" {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
		if err != nil {
			suppressor.Close()
			client.Close()
			return fmt.Errorf("failed to init metrics: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			shutdown(shutdownCtx)
		}()

		metrics, err = observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			suppressor.Close()
			client.Close()
			return fmt.Errorf("failed to create metrics: %w", err)
		}

		go func() {
			if err := observe.Serve(ctx, cfg.MetricsAddr, logging.Component(log, "metrics")); err != nil {
				log.Error().Err(err).Msg("metrics endpoint stopped")
			}
		}()
	}

	device, err := audio.New(cfg.AudioBackend, audio.Config{
		SampleRate:      float64(cfg.SampleRate),
		FramesPerBuffer: cfg.FrameSize,
		InputChannels:   1,
		OutputChannels:  1,
	})
	if err != nil {
		suppressor.Close()
		client.Close()
		return err
	}

	eng := engine.NewEngine(engine.Config{
		FrameSize:       cfg.FrameSize,
		ChunkSize:       cfg.ChunkSize,
		FrameDuration:   cfg.FrameDuration(),
		EnergyThreshold: cfg.EnergyThreshold,
		SilenceTimeout:  cfg.SilenceTimeout,
		PollInterval:    cfg.PollInterval,
		RelayLimit:      cfg.RelayLimit,
		MusicGain:       cfg.MusicGain,
		PassToken:       cfg.PassToken,
	}, suppressor, track, client, metrics, logging.Component(log, "engine"))

	log.Info().
		Str("server", cfg.ServerAddr).
		Str("backend", cfg.AudioBackend).
		Bool("denoise", denoise.Available).
		Msg("running, press Ctrl-C to stop")

	if err := eng.Run(ctx, device); err != nil {
		return err
	}

	st := eng.Stats()
	log.Info().
		Uint64("frames", st.FramesProcessed).
		Uint64("forwarded", st.FramesForwarded).
		Uint64("chunks_sent", st.ChunksSent).
		Uint64("send_failures", st.SendFailures).
		Uint64("chunks_dropped", st.ChunksDropped).
		Msg("stopped")
	return nil
}
