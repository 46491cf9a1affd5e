package gpu

import (
	_ "embed"
	"fmt"

	"github.com/gogpu/naga"
)

// Shader sources are embedded from the shaders directory.
// Each file is one stage of the convolution pipeline.

//go:embed shaders/normalize.wgsl
var shaderNormalize string

//go:embed shaders/convolve3x3.wgsl
var shaderConvolve3x3 string

//go:embed shaders/pack.wgsl
var shaderPack string

//go:embed shaders/expand.wgsl
var shaderExpand string

// Stage identifies one compute stage of the convolution pipeline.
type Stage int

const (
	// StageNormalize unpacks 8-bit grayscale (4 pixels per u32) into
	// f32 values in [0, 1].
	StageNormalize Stage = iota

	// StageConvolve3x3 applies a 3x3 kernel with clamp-to-edge
	// addressing. The same pipeline serves both box-smoothing passes
	// and the Laplacian pass; only the bound kernel buffer differs.
	StageConvolve3x3

	// StagePack clamps the f32 result to [0, 1] and repacks it to
	// 8-bit, 4 pixels per u32, for readback.
	StagePack

	// StageExpand writes the clamped result as RGBA f32 into a buffer
	// shared with the display subsystem. Used instead of StagePack on
	// the zero-copy path.
	StageExpand

	// StageCount is the total number of pipeline stages.
	StageCount
)

// String returns the human-readable name of the compute stage.
func (s Stage) String() string {
	switch s {
	case StageNormalize:
		return "normalize"
	case StageConvolve3x3:
		return "convolve3x3"
	case StagePack:
		return "pack"
	case StageExpand:
		return "expand"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// stageSources maps each stage to its embedded WGSL source.
func stageSources() [StageCount]string {
	return [StageCount]string{
		StageNormalize:   shaderNormalize,
		StageConvolve3x3: shaderConvolve3x3,
		StagePack:        shaderPack,
		StageExpand:      shaderExpand,
	}
}

// validateShader runs the WGSL source through naga. The HAL consumes
// WGSL directly, but pre-validating here turns driver-side build
// failures into a CompileError carrying the full compiler log.
func validateShader(stage Stage, src string) error {
	if _, err := naga.Compile(src); err != nil {
		return &CompileError{Stage: stage.String(), Log: err.Error()}
	}
	return nil
}
