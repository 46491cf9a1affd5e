package kinectfilter

// Grayscale converts packed RGB24 pixel data to 8-bit grayscale using
// BT.601 luma weights. The integer arithmetic matches the common
// fixed-point form: y = (77r + 150g + 29b) >> 8.
//
// len(rgb) must be a multiple of 3; the result has len(rgb)/3 bytes.
func Grayscale(rgb []byte) []byte {
	n := len(rgb) / 3
	gray := make([]byte, n)
	for i := 0; i < n; i++ {
		r := uint32(rgb[i*3])
		g := uint32(rgb[i*3+1])
		b := uint32(rgb[i*3+2])
		gray[i] = byte((77*r + 150*g + 29*b) >> 8)
	}
	return gray
}
