package render

import "github.com/soundriff/clipsmith/internal/models"

// Strategy is the composition mode for a render.
type Strategy string

const (
	// StrategySequential emits one correctly-sized sub-clip per scene, then
	// losslessly concatenates them and muxes audio once. Robust across
	// encoder builds; the default.
	StrategySequential Strategy = "sequential"

	// StrategyCrossfade builds a single filtergraph that cross-dissolves
	// adjacent still-image streams. Defined only over stills.
	StrategyCrossfade Strategy = "crossfade"
)

// SelectStrategy picks the composition mode. Any video scene forces
// sequential regardless of the crossfade request: cross-dissolve graphs over
// heterogeneous-length video inputs are fragile across encoder builds.
// Crossfade applies only when explicitly requested over an all-stills board.
func SelectStrategy(scenes []Scene, opts models.RenderOptions) Strategy {
	for _, s := range scenes {
		if s.Video {
			return StrategySequential
		}
	}
	if opts.Crossfade {
		return StrategyCrossfade
	}
	return StrategySequential
}

// CrossfadeOffsets computes the xfade start offsets for N scenes with the
// given durations. The transition from scene i to i+1 starts one crossfade
// duration before scene i's stream would end, so adjacent scenes overlap by
// exactly c seconds:
//
//	off_0 = d_0 - c
//	off_i = off_{i-1} + d_i - c
func CrossfadeOffsets(durations []float64, c float64) []float64 {
	if len(durations) < 2 {
		return nil
	}
	offsets := make([]float64, len(durations)-1)
	offsets[0] = durations[0] - c
	for i := 1; i < len(offsets); i++ {
		offsets[i] = offsets[i-1] + durations[i] - c
	}
	return offsets
}

// TotalDuration is the expected output length before the audio -shortest
// trim: a plain sum for sequential composition, minus one overlap per
// transition for crossfade.
func TotalDuration(scenes []Scene, strategy Strategy, c float64) float64 {
	var total float64
	for _, s := range scenes {
		total += s.DurationSec
	}
	if strategy == StrategyCrossfade && len(scenes) > 1 {
		total -= c * float64(len(scenes)-1)
	}
	return total
}
