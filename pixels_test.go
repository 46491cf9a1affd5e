package kinectfilter

import "testing"

func TestGrayscale(t *testing.T) {
	tests := []struct {
		name string
		rgb  []byte
		want []byte
	}{
		{"black", []byte{0, 0, 0}, []byte{0}},
		{"white", []byte{255, 255, 255}, []byte{255}},
		{"red", []byte{255, 0, 0}, []byte{76}},
		{"green", []byte{0, 255, 0}, []byte{149}},
		{"blue", []byte{0, 0, 255}, []byte{28}},
		{"two pixels", []byte{255, 255, 255, 0, 0, 0}, []byte{255, 0}},
		{"empty", nil, []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Grayscale(tt.rgb)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("pixel %d = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGrayscaleUniform(t *testing.T) {
	// The weights sum to 256, so equal channels map to exactly that value.
	for _, v := range []byte{1, 50, 128, 200, 254} {
		got := Grayscale([]byte{v, v, v})[0]
		if got != v {
			t.Errorf("gray(%d,%d,%d) = %d, want %d", v, v, v, got, v)
		}
	}
}
