package signal

import (
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/signalhub/internal/apperr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// prices render as JSON numbers, matching what clients post
	decimal.MarshalJSONWithoutQuotes = true
}

var (
	ErrNotFound          = fmt.Errorf("signal %w", apperr.ErrNotFound)
	ErrStale             = fmt.Errorf("%w: signal was modified concurrently, retry", apperr.ErrConflict)
	ErrInvalidTransition = fmt.Errorf("%w: status transition not allowed", apperr.ErrValidation)
	ErrReviewLocked      = fmt.Errorf("%w: reviewed signals can no longer be edited", apperr.ErrConflict)
)

type Signal struct {
	ID          string          `json:"id"`
	CoinName    string          `json:"coin_name"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	TargetPrice decimal.Decimal `json:"target_price"`
	StopLoss    decimal.Decimal `json:"stop_loss"`
	Note        *string         `json:"note"`
	ChartImage  *string         `json:"chart_image"`
	Status      Status          `json:"status"`
	CreatedBy   *string         `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`

	// Version backs optimistic concurrency in the stores.
	Version int `json:"-"`
}

// Fields is the author-controlled part of a signal, shared by create and full edit.
type Fields struct {
	CoinName    string
	EntryPrice  decimal.Decimal
	TargetPrice decimal.Decimal
	StopLoss    decimal.Decimal
	Note        *string
}

// Prices are pointers so a missing field fails "required" instead of
// silently decoding to zero. decimal accepts both 42500.5 and "42500.5".
type CreateSignalRequest struct {
	CoinName    string           `json:"coin_name" binding:"required,max=50"`
	EntryPrice  *decimal.Decimal `json:"entry_price" binding:"required"`
	TargetPrice *decimal.Decimal `json:"target_price" binding:"required"`
	StopLoss    *decimal.Decimal `json:"stop_loss" binding:"required"`
	Note        *string          `json:"note" binding:"omitempty,max=2000"`
	ChartImage  *string          `json:"chart_image" binding:"omitempty,max=255"`
}

// a full update payload; chart_image and status are not editable through it.
type UpdateSignalRequest struct {
	CoinName    string           `json:"coin_name" binding:"required,max=50"`
	EntryPrice  *decimal.Decimal `json:"entry_price" binding:"required"`
	TargetPrice *decimal.Decimal `json:"target_price" binding:"required"`
	StopLoss    *decimal.Decimal `json:"stop_loss" binding:"required"`
	Note        *string          `json:"note" binding:"omitempty,max=2000"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// with pointers if optional, it will be nil
type ListFilter struct {
	Status    *Status
	CreatedBy *string
	// OldestFirst flips the default newest-first ordering.
	OldestFirst bool
}

func (r CreateSignalRequest) Fields() (Fields, error) {
	return buildFields(r.CoinName, r.EntryPrice, r.TargetPrice, r.StopLoss, r.Note)
}

func (r UpdateSignalRequest) Fields() (Fields, error) {
	return buildFields(r.CoinName, r.EntryPrice, r.TargetPrice, r.StopLoss, r.Note)
}

func buildFields(coin string, entry, target, stop *decimal.Decimal, note *string) (Fields, error) {
	f := Fields{CoinName: strings.TrimSpace(coin), Note: note}

	prices := []struct {
		name string
		in   *decimal.Decimal
		out  *decimal.Decimal
	}{
		{"entry_price", entry, &f.EntryPrice},
		{"target_price", target, &f.TargetPrice},
		{"stop_loss", stop, &f.StopLoss},
	}
	for _, p := range prices {
		if p.in == nil {
			return Fields{}, fmt.Errorf("%w: %s is required", apperr.ErrValidation, p.name)
		}
		*p.out = *p.in
	}

	return f, f.Validate()
}

func (f Fields) Validate() error {
	if f.CoinName == "" {
		return fmt.Errorf("%w: coin_name is required", apperr.ErrValidation)
	}
	if len(f.CoinName) > 50 {
		return fmt.Errorf("%w: coin_name must be at most 50 characters", apperr.ErrValidation)
	}
	if !f.EntryPrice.IsPositive() {
		return fmt.Errorf("%w: entry_price must be greater than zero", apperr.ErrValidation)
	}
	if !f.TargetPrice.IsPositive() {
		return fmt.Errorf("%w: target_price must be greater than zero", apperr.ErrValidation)
	}
	if !f.StopLoss.IsPositive() {
		return fmt.Errorf("%w: stop_loss must be greater than zero", apperr.ErrValidation)
	}
	return nil
}

// New builds a fresh signal authored by createdBy with the given initial status.
func New(f Fields, chartImage *string, createdBy string, status Status) Signal {
	author := createdBy
	return Signal{
		ID:          uuid.NewString(),
		CoinName:    f.CoinName,
		EntryPrice:  f.EntryPrice,
		TargetPrice: f.TargetPrice,
		StopLoss:    f.StopLoss,
		Note:        f.Note,
		ChartImage:  chartImage,
		Status:      status,
		CreatedBy:   &author,
		CreatedAt:   time.Now().UTC(),
		Version:     1,
	}
}

// Apply overwrites the editable fields and leaves status, author and chart untouched.
func (s Signal) Apply(f Fields) Signal {
	s.CoinName = f.CoinName
	s.EntryPrice = f.EntryPrice
	s.TargetPrice = f.TargetPrice
	s.StopLoss = f.StopLoss
	s.Note = f.Note
	return s
}
