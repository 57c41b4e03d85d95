package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// MinVoucherValue はバウチャー割引率の下限（%）。
	MinVoucherValue = decimal.Zero
	// MaxVoucherValue はバウチャー割引率の上限（%）。
	MaxVoucherValue = decimal.NewFromInt(100)
)

// Voucher は店舗に紐づく割引コードを表す。
// Valueは0〜100の割引率、Quantityは利用可能枚数（1以上）。
type Voucher struct {
	ID              string
	Title           string
	Description     string
	Code            string
	Rules           string
	Value           decimal.Decimal
	Quantity        int
	IsPaid          bool
	EstablishmentID string
	Establishment   *Establishment // APIが結合して返した場合のみ設定される
	CreatedAt       time.Time
}

// NewVoucherDraft は新規作成フォームの初期値を返す。
func NewVoucherDraft() Voucher {
	return Voucher{Value: decimal.Zero, Quantity: 1}
}

// MissingVoucherFields は送信時に必須となる項目のうち未入力のものを返す。
func MissingVoucherFields(v Voucher) []string {
	var missing []string
	if strings.TrimSpace(v.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(v.Code) == "" {
		missing = append(missing, "code")
	}
	if strings.TrimSpace(v.EstablishmentID) == "" {
		missing = append(missing, "establishmentId")
	}
	return missing
}

// ValueInRange は割引率が0〜100の範囲内かを返す。
func (v Voucher) ValueInRange() bool {
	return v.Value.GreaterThanOrEqual(MinVoucherValue) && v.Value.LessThanOrEqual(MaxVoucherValue)
}
