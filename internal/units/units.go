// Package units converts between the "whole unit + leftover piece" notation
// used on the shop floor and a single normalized piece count.
package units

import (
	"fmt"
	"strings"
)

type Type string

const (
	Cartoon Type = "Cartoon"
	Dozen   Type = "Dozen"
	Poly    Type = "Poly"
	Pieces  Type = "Pieces"
)

// Qty is a quantity written as whole units plus loose pieces.
type Qty struct {
	Whole  int `json:"whole"`
	Pieces int `json:"pieces"`
}

func (q Qty) Negative() bool {
	return q.Whole < 0 || q.Pieces < 0
}

// ParseType accepts the spellings the older clients send ("Dozon", "pieces").
func ParseType(raw string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cartoon", "carton":
		return Cartoon, nil
	case "dozen", "dozon":
		return Dozen, nil
	case "poly":
		return Poly, nil
	case "pieces", "piece", "pcs":
		return Pieces, nil
	default:
		return "", fmt.Errorf("unknown quantity type %q", raw)
	}
}

// Abbrev is the one-letter marker used in history text, e.g. "5C 3pc".
func (t Type) Abbrev() string {
	if t == "" {
		return ""
	}
	return strings.ToUpper(string(t)[:1])
}

// PiecesPerUnit returns the effective conversion factor. Pieces products have
// no sub-unit, so whole units and pieces coincide.
func PiecesPerUnit(t Type, ppu int) int {
	if t == Pieces || ppu < 1 {
		return 1
	}
	return ppu
}

func ToPieces(whole int, pieces int, ppu int) int {
	return whole*ppu + pieces
}

// FromPieces splits a non-negative piece count with floor division.
func FromPieces(total int, ppu int) (int, int) {
	if ppu < 1 {
		ppu = 1
	}
	return total / ppu, total % ppu
}

func (q Qty) Total(ppu int) int {
	return ToPieces(q.Whole, q.Pieces, ppu)
}

func FromTotal(total int, ppu int) Qty {
	whole, pieces := FromPieces(total, ppu)
	return Qty{Whole: whole, Pieces: pieces}
}

// Normalize folds overflowing pieces into whole units: 1 dozen + 15 pieces
// becomes 2 dozen + 3 pieces.
func Normalize(whole int, pieces int, ppu int) (int, int) {
	if ppu < 1 {
		return whole, pieces
	}
	return whole + pieces/ppu, pieces % ppu
}

// Format renders a quantity for history text, e.g. "10C 3pc".
func Format(t Type, q Qty) string {
	if t == Pieces {
		return fmt.Sprintf("%dpc", q.Whole+q.Pieces)
	}
	return fmt.Sprintf("%d%s %dpc", q.Whole, t.Abbrev(), q.Pieces)
}
