//go:build !rnnoise

package denoise

import "github.com/rs/zerolog"

// Available reports whether a real suppressor is compiled in.
const Available = false

// New returns the pass-through suppressor.
func New(log zerolog.Logger) (Suppressor, error) {
	log.Warn().Msg("noise suppression disabled; build with -tags rnnoise to enable it")
	return Passthrough{}, nil
}
