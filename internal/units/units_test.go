package units

import "testing"

func TestRoundTrip(t *testing.T) {
	for _, ppu := range []int{1, 2, 6, 12, 24, 48} {
		for whole := 0; whole < 20; whole++ {
			for pieces := 0; pieces < ppu; pieces++ {
				gotWhole, gotPieces := FromPieces(ToPieces(whole, pieces, ppu), ppu)
				if gotWhole != whole || gotPieces != pieces {
					t.Fatalf("ppu=%d (%d,%d) round-tripped to (%d,%d)", ppu, whole, pieces, gotWhole, gotPieces)
				}
			}
		}
	}
}

func TestFromPiecesFloors(t *testing.T) {
	whole, pieces := FromPieces(30, 12)
	if whole != 2 || pieces != 6 {
		t.Fatalf("expected (2,6), got (%d,%d)", whole, pieces)
	}
	whole, pieces = FromPieces(18, 12)
	if whole != 1 || pieces != 6 {
		t.Fatalf("expected (1,6), got (%d,%d)", whole, pieces)
	}
}

func TestPiecesTypeIgnoresConfiguredFactor(t *testing.T) {
	if got := PiecesPerUnit(Pieces, 12); got != 1 {
		t.Fatalf("expected factor 1 for Pieces, got %d", got)
	}
	if got := PiecesPerUnit(Cartoon, 12); got != 12 {
		t.Fatalf("expected factor 12 for Cartoon, got %d", got)
	}
	if got := PiecesPerUnit(Dozen, 0); got != 1 {
		t.Fatalf("expected factor clamp to 1, got %d", got)
	}
}

func TestNormalize(t *testing.T) {
	whole, pieces := Normalize(1, 15, 12)
	if whole != 2 || pieces != 3 {
		t.Fatalf("expected (2,3), got (%d,%d)", whole, pieces)
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		raw  string
		want Type
	}{
		{"Cartoon", Cartoon},
		{"Dozon", Dozen},
		{"dozen", Dozen},
		{"Poly", Poly},
		{"pieces", Pieces},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("parse %q: expected %s, got %s", tt.raw, tt.want, got)
		}
	}
	if _, err := ParseType("barrel"); err == nil {
		t.Fatalf("expected unknown type to fail")
	}
}

func TestFormat(t *testing.T) {
	if got := Format(Cartoon, Qty{Whole: 10}); got != "10C 0pc" {
		t.Fatalf("unexpected format %q", got)
	}
	if got := Format(Pieces, Qty{Whole: 4, Pieces: 1}); got != "5pc" {
		t.Fatalf("unexpected format %q", got)
	}
}
