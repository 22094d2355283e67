package coords

import (
	"errors"
	"math"
	"testing"
)

func TestMultiplyOrder(t *testing.T) {
	// Scale then translate: (1,1) -> (2,2) -> (12,2).
	m := Scale(2, 2).Multiply(Translate(10, 0))
	if p := m.Transform(Point{1, 1}); p != (Point{12, 2}) {
		t.Fatalf("got %+v", p)
	}
}

func TestInverse(t *testing.T) {
	m := Matrix{2, 0, 0, 4, 5, 6}
	inv, err := m.Inverse()
	if err != nil {
		t.Fatal(err)
	}
	p := inv.Transform(m.Transform(Point{3, 7}))
	if math.Abs(p.X-3) > 1e-9 || math.Abs(p.Y-7) > 1e-9 {
		t.Fatalf("round trip %+v", p)
	}
	if _, err := (Matrix{}).Inverse(); !errors.Is(err, ErrSingular) {
		t.Fatalf("expected ErrSingular, got %v", err)
	}
}

func TestRectTransformAndUnion(t *testing.T) {
	r := NewRect(1, 1, 0, 0).Transform(Matrix{0, 1, -1, 0, 0, 0})
	if r != (Rect{-1, 0, 0, 1}) {
		t.Fatalf("rotated rect %+v", r)
	}
	u := Rect{}.Union(Rect{0, 0, 1, 1}).Union(Rect{2, 3, 4, 5})
	if u != (Rect{0, 0, 4, 5}) {
		t.Fatalf("union %+v", u)
	}
	if c := u.Center(); c != (Point{2, 2.5}) {
		t.Fatalf("center %+v", c)
	}
	if Scale(3, 4).ScaleY() != 4 {
		t.Fatalf("scale y")
	}
}
