package utils

import (
	"math"
	"testing"
)

func TestNormalizeL2(t *testing.T) {
	x := []float32{3, 4}
	NormalizeL2(x)
	var norm float64
	for _, v := range x {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1.0) > 1e-6 {
		t.Errorf("norm = %f, want 1.0", norm)
	}
}

func TestNormalizeL2_ZeroVectorUnchanged(t *testing.T) {
	x := []float32{0, 0, 0}
	NormalizeL2(x)
	for i, v := range x {
		if v != 0 {
			t.Errorf("x[%d] = %f, want 0", i, v)
		}
	}
}
