package math

import (
	"math/big"
	"testing"
)

func TestBigInt(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T)
	}{
		{"TestClone", testClone},
		{"TestMulDiv", testMulDiv},
		{"TestBps", testBps},
		{"TestDeviationBps", testDeviationBps},
	}

	for _, tt := range tests {
		t.Run(tt.name, tt.fn)
	}
}

func testClone(t *testing.T) {
	x := big.NewInt(100)
	y := Clone(x)
	x.Add(x, big.NewInt(50))
	if y.Int64() != 100 {
		t.Errorf("Clone() not independent, got %v; want 100", y.Int64())
	}
	if Clone(nil).Sign() != 0 {
		t.Errorf("Clone(nil) should be zero")
	}
}

func testMulDiv(t *testing.T) {
	tests := []struct {
		x, y, d, want int64
	}{
		{10, 10, 3, 33},
		{1000, 997, 1000, 997},
		{5, 5, 0, 0},
	}

	for _, tt := range tests {
		got := MulDiv(big.NewInt(tt.x), big.NewInt(tt.y), big.NewInt(tt.d))
		if got.Int64() != tt.want {
			t.Errorf("MulDiv(%d, %d, %d) = %v; want %d", tt.x, tt.y, tt.d, got, tt.want)
		}
	}
}

func testBps(t *testing.T) {
	if got := BpsOf(big.NewInt(1000000), 9); got.Int64() != 900 {
		t.Errorf("BpsOf(1e6, 9) = %v; want 900", got)
	}
	if got := LessBps(big.NewInt(1000), 200); got.Int64() != 980 {
		t.Errorf("LessBps(1000, 200) = %v; want 980", got)
	}
	if got := LessBps(big.NewInt(1000), 10000); got.Sign() != 0 {
		t.Errorf("LessBps(1000, 10000) = %v; want 0", got)
	}
}

func testDeviationBps(t *testing.T) {
	tests := []struct {
		a, b int64
		want uint64
	}{
		{101, 100, 100},
		{99, 100, 100},
		{100, 100, 0},
		{0, 0, 0},
		{5, 0, BasisPoints},
	}

	for _, tt := range tests {
		if got := DeviationBps(big.NewInt(tt.a), big.NewInt(tt.b)); got != tt.want {
			t.Errorf("DeviationBps(%d, %d) = %d; want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
