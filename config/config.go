package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names accepted in AudioBackend.
const (
	BackendPortAudio = "portaudio"
	BackendMalgo     = "malgo"
)

// Config holds every runtime parameter of the pipeline. Defaults match the
// fixed constants of the capture client: 48 kHz, 10 ms frames, 100 ms chunks.
type Config struct {
	ServerAddr  string
	DialTimeout time.Duration
	IOTimeout   time.Duration // 0 disables per-exchange deadlines

	SampleRate      int
	FrameSize       int     // samples per device callback
	ChunkSize       int     // samples per network chunk
	EnergyThreshold float64 // mean squared energy below which a frame is silent
	SilenceTimeout  time.Duration
	PollInterval    time.Duration
	RelayLimit      int // max queued samples, 0 = unbounded

	MusicGain float64
	PassToken string

	AudioBackend string
	LogLevel     string
	MetricsAddr  string // empty disables the /metrics endpoint
}

// Default returns the configuration used when no environment overrides exist.
func Default() Config {
	return Config{
		ServerAddr:      "127.0.0.1:5050",
		DialTimeout:     5 * time.Second,
		IOTimeout:       2 * time.Second,
		SampleRate:      48000,
		FrameSize:       480,
		ChunkSize:       4800,
		EnergyThreshold: 0.002,
		SilenceTimeout:  time.Second,
		PollInterval:    10 * time.Millisecond,
		RelayLimit:      0,
		MusicGain:       0.5,
		PassToken:       "pass",
		AudioBackend:    BackendPortAudio,
		LogLevel:        "info",
	}
}

// LoadConfig reads an optional .env file (envFile, or ".env" when empty) and
// then applies SOUNDMIX_* environment variables on top of Default.
// A missing .env file is not an error.
func LoadConfig(envFile string) (*Config, error) {
	explicit := envFile != ""
	if !explicit {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %q: %w", envFile, err)
		}
	}

	cfg := Load()
	return &cfg, nil
}

// Load builds a Config from the process environment only.
func Load() Config {
	d := Default()
	return Config{
		ServerAddr:      envStr("SOUNDMIX_SERVER_ADDR", d.ServerAddr),
		DialTimeout:     envDuration("SOUNDMIX_DIAL_TIMEOUT", d.DialTimeout),
		IOTimeout:       envDuration("SOUNDMIX_IO_TIMEOUT", d.IOTimeout),
		SampleRate:      envInt("SOUNDMIX_SAMPLE_RATE", d.SampleRate),
		FrameSize:       envInt("SOUNDMIX_FRAME_SIZE", d.FrameSize),
		ChunkSize:       envInt("SOUNDMIX_CHUNK_SIZE", d.ChunkSize),
		EnergyThreshold: envFloat("SOUNDMIX_ENERGY_THRESHOLD", d.EnergyThreshold),
		SilenceTimeout:  envDuration("SOUNDMIX_SILENCE_TIMEOUT", d.SilenceTimeout),
		PollInterval:    envDuration("SOUNDMIX_POLL_INTERVAL", d.PollInterval),
		RelayLimit:      envInt("SOUNDMIX_RELAY_LIMIT", d.RelayLimit),
		MusicGain:       envFloat("SOUNDMIX_MUSIC_GAIN", d.MusicGain),
		PassToken:       envStr("SOUNDMIX_PASS_TOKEN", d.PassToken),
		AudioBackend:    strings.ToLower(envStr("SOUNDMIX_AUDIO_BACKEND", d.AudioBackend)),
		LogLevel:        envStr("SOUNDMIX_LOG_LEVEL", d.LogLevel),
		MetricsAddr:     envStr("SOUNDMIX_METRICS_ADDR", d.MetricsAddr),
	}
}

// FrameDuration is the wall-clock length of one device frame.
func (c *Config) FrameDuration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.FrameSize) * time.Second / time.Duration(c.SampleRate)
}

// Validate reports every incoherent value at once.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerAddr == "" {
		errs = append(errs, errors.New("server address is empty"))
	}
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate %d must be positive", c.SampleRate))
	}
	if c.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("frame size %d must be positive", c.FrameSize))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size %d must be positive", c.ChunkSize))
	}
	if c.EnergyThreshold < 0 {
		errs = append(errs, fmt.Errorf("energy threshold %g must not be negative", c.EnergyThreshold))
	}
	if c.SilenceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("silence timeout %s must be positive", c.SilenceTimeout))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll interval %s must be positive", c.PollInterval))
	}
	if c.RelayLimit < 0 {
		errs = append(errs, fmt.Errorf("relay limit %d must not be negative", c.RelayLimit))
	}
	if c.RelayLimit > 0 && c.RelayLimit < c.ChunkSize {
		errs = append(errs, fmt.Errorf("relay limit %d is smaller than one chunk (%d)", c.RelayLimit, c.ChunkSize))
	}
	if c.PassToken == "" {
		errs = append(errs, errors.New("pass token is empty"))
	}
	switch c.AudioBackend {
	case BackendPortAudio, BackendMalgo:
	default:
		errs = append(errs, fmt.Errorf("audio backend %q is invalid; valid values: %s, %s", c.AudioBackend, BackendPortAudio, BackendMalgo))
	}

	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// envDuration accepts Go durations ("1s", "10ms") or bare seconds ("1.5").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second))
	}
	return fallback
}
