// Package gpu implements the compute side of the filter: device and
// queue ownership (Context), the multi-stage convolution pipeline
// (ConvolutionPipeline), and the zero-copy display hand-off
// (SharedImage).
//
// All GPU work goes through the gogpu/wgpu HAL. Shaders are written in
// WGSL, embedded at build time, and validated with naga before pipeline
// creation so that compile diagnostics surface as CompileError instead
// of opaque driver failures.
package gpu
