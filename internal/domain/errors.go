package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrExceedsStock      = errors.New("requested quantity exceeds stock")
	ErrExceedsRequest    = errors.New("returned quantity exceeds request")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrSaleLocked        = errors.New("sale is locked")
	ErrExceedsTaken      = errors.New("returned quantity exceeds taken quantity")
	ErrOverPayment       = errors.New("payment exceeds remaining balance")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidStatus     = errors.New("invalid sale status")
	ErrConflict          = errors.New("conflict")
)

// Shortage describes one product that could not cover a commit.
type Shortage struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Requested   int    `json:"requested_pieces"`
	Available   int    `json:"available_pieces"`
}

// ShortageError lists every product short at lock time. It matches
// ErrInsufficientStock under errors.Is.
type ShortageError struct {
	Items []Shortage
}

func (e *ShortageError) Error() string {
	names := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		names = append(names, fmt.Sprintf("%s (need %d, have %d)", item.ProductName, item.Requested, item.Available))
	}
	return fmt.Sprintf("%s: %s", ErrInsufficientStock.Error(), strings.Join(names, ", "))
}

func (e *ShortageError) Is(target error) bool {
	return target == ErrInsufficientStock
}

var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidQuantity, "invalid_quantity"},
	{ErrExceedsStock, "exceeds_stock"},
	{ErrExceedsRequest, "exceeds_request"},
	{ErrInsufficientStock, "insufficient_stock"},
	{ErrSaleLocked, "sale_locked"},
	{ErrExceedsTaken, "exceeds_taken"},
	{ErrOverPayment, "over_payment"},
	{ErrNotFound, "not_found"},
	{ErrForbidden, "forbidden"},
	{ErrInvalidStatus, "invalid_status"},
	{ErrConflict, "conflict"},
}

// Kind returns the stable error kind reported to clients, or "" for errors
// outside the taxonomy.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return ""
}
