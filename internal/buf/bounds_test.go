package buf

import (
	"math"
	"testing"
)

func TestAddOverflowSafe(t *testing.T) {
	if sum, ok := AddOverflowSafe(10, 5); !ok || sum != 15 {
		t.Fatalf("AddOverflowSafe(10,5)=%d,%v want 15,true", sum, ok)
	}
	if _, ok := AddOverflowSafe(math.MaxInt, 1); ok {
		t.Fatalf("expected overflow for MaxInt+1")
	}
	if _, ok := AddOverflowSafe(math.MinInt, -1); ok {
		t.Fatalf("expected overflow for MinInt-1")
	}
}

func TestCheckRecord(t *testing.T) {
	end, err := CheckRecord(512, 104, 48, 40)
	if err != nil || end != 152 {
		t.Fatalf("CheckRecord=%d,%v want 152,nil", end, err)
	}
	if _, err := CheckRecord(512, 480, 48, 40); err == nil {
		t.Fatalf("expected bounds error for record past block end")
	}
	if _, err := CheckRecord(512, 104, 8, 40); err == nil {
		t.Fatalf("expected error for record shorter than header")
	}
	if _, err := CheckRecord(512, -1, 48, 40); err == nil {
		t.Fatalf("expected error for negative offset")
	}
}

func TestSliceAndHas(t *testing.T) {
	b := []byte{0, 1, 2, 3, 4}
	s, ok := Slice(b, 1, 3)
	if !ok || len(s) != 3 || s[0] != 1 {
		t.Fatalf("Slice(1,3)=%v,%v", s, ok)
	}
	if Has(b, 3, 3) {
		t.Fatalf("Has(3,3) should be false for len 5")
	}
	if _, ok := Slice(b, -1, 1); ok {
		t.Fatalf("negative offset must fail")
	}
}
