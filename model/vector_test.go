package model

import (
	"math"
	"testing"
)

func TestVec2Rotate(t *testing.T) {
	cases := []struct {
		in    Vec2
		angle float64
		want  Vec2
	}{
		{Vec2{X: 1}, math.Pi / 2, Vec2{Y: 1}},
		{Vec2{X: 3, Y: 4}, math.Pi, Vec2{X: -3, Y: -4}},
		{Vec2{X: 2, Y: 0}, -math.Pi / 2, Vec2{Y: -2}},
		{Vec2{X: 5, Y: -1}, 0, Vec2{X: 5, Y: -1}},
	}
	for _, tc := range cases {
		got := tc.in.Rotate(tc.angle)
		if got.DistanceTo(tc.want) > 1e-9 {
			t.Fatalf("%+v.Rotate(%v) = %+v, want %+v", tc.in, tc.angle, got, tc.want)
		}
		if math.Abs(got.Norm()-tc.in.Norm()) > 1e-9 {
			t.Fatalf("rotation changed length: %v -> %v", tc.in.Norm(), got.Norm())
		}
	}
}

func TestVec2UnitAndPerp(t *testing.T) {
	if u := (Vec2{}).Unit(); u != (Vec2{}) {
		t.Fatalf("zero Unit = %+v", u)
	}
	u := Vec2{X: 3, Y: 4}.Unit()
	if math.Abs(u.Norm()-1) > 1e-12 {
		t.Fatalf("Unit norm = %v", u.Norm())
	}
	if d := u.Dot(u.Perp()); math.Abs(d) > 1e-12 {
		t.Fatalf("Perp not orthogonal: dot = %v", d)
	}
	if (Vec2{X: math.NaN()}).IsFinite() || !(Vec2{X: 1, Y: 2}).IsFinite() {
		t.Fatalf("IsFinite misreports")
	}
}
