// Package conv is the CPU reference implementation of the convolution
// pipeline: grayscale normalization, 3x3 convolution with clamp-to-edge
// addressing, and clamped repacking to 8-bit.
//
// The GPU shaders in internal/gpu implement the same math; this package
// is the ground truth they are tested against and runs without a device.
package conv

// Kernel is a 3x3 convolution kernel in row-major order.
type Kernel [9]float32

// BoxKernel returns the 3x3 box-smoothing kernel (all taps 1/8).
// Applied twice it approximates a Gaussian blur.
func BoxKernel() Kernel {
	return Kernel{
		0.125, 0.125, 0.125,
		0.125, 0.125, 0.125,
		0.125, 0.125, 0.125,
	}
}

// LaplacianKernel returns the 8-connected Laplacian edge-detection
// kernel. The taps sum to zero, so uniform regions map to zero.
func LaplacianKernel() Kernel {
	return Kernel{
		1, 1, 1,
		1, -8, 1,
		1, 1, 1,
	}
}

// Normalize converts 8-bit grayscale pixels to float32 values in [0, 1].
func Normalize(gray []byte) []float32 {
	out := make([]float32, len(gray))
	for i, v := range gray {
		out[i] = float32(v) / 255.0
	}
	return out
}

// Convolve3x3 applies k to src and writes the result to dst. Both slices
// are w*h float32 images; dst must not alias src. Out-of-bounds taps are
// clamped to the nearest edge pixel, so borders are deterministic and
// uniform images stay uniform.
func Convolve3x3(dst, src []float32, w, h int, k Kernel) {
	clampIdx := func(v, max int) int {
		if v < 0 {
			return 0
		}
		if v >= max {
			return max - 1
		}
		return v
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float32
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					sx := clampIdx(x+kx, w)
					sy := clampIdx(y+ky, h)
					sum += src[sy*w+sx] * k[(ky+1)*3+(kx+1)]
				}
			}
			dst[y*w+x] = sum
		}
	}
}

// Pack converts float32 pixels back to 8-bit grayscale. Values are
// clamped to [0, 1] before scaling, so negative edge responses saturate
// to black and overshoot saturates to white.
func Pack(src []float32) []byte {
	out := make([]byte, len(src))
	for i, v := range src {
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		out[i] = byte(v*255.0 + 0.5)
	}
	return out
}

// Filter runs the full reference pipeline on one grayscale frame:
// normalize, optionally two box-smoothing passes, Laplacian edge
// detection, repack to 8-bit.
func Filter(gray []byte, w, h int, smoothing bool) []byte {
	a := Normalize(gray)
	b := make([]float32, len(a))

	if smoothing {
		box := BoxKernel()
		Convolve3x3(b, a, w, h, box)
		Convolve3x3(a, b, w, h, box)
	}

	Convolve3x3(b, a, w, h, LaplacianKernel())
	return Pack(b)
}

// ExpandRGBA converts a float32 grayscale result to RGBA float32 pixels
// ([v, v, v, 1] per pixel, v clamped to [0, 1]). This mirrors the
// shared-image output stage, which writes display-ready RGBA directly.
func ExpandRGBA(src []float32) []float32 {
	out := make([]float32, len(src)*4)
	for i, v := range src {
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		out[i*4+0] = v
		out[i*4+1] = v
		out[i*4+2] = v
		out[i*4+3] = 1
	}
	return out
}
