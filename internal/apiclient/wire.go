package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/vouchdesk/internal/model"
)

// flexID は文字列・数値どちらで返されても受け付けるID。
type flexID string

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("IDの形式が不正です: %s", string(b))
	}
	*f = flexID(n.String())
	return nil
}

type userJSON struct {
	ID    flexID `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (u userJSON) toModel() *model.User {
	return &model.User{ID: string(u.ID), Email: u.Email, Name: u.Name}
}

type establishmentJSON struct {
	ID        flexID    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	LogoURL   string    `json:"logo_url"`
	CreatedAt time.Time `json:"createdAt"`
}

func (e establishmentJSON) toModel() model.Establishment {
	return model.Establishment{
		ID:        string(e.ID),
		Name:      e.Name,
		Category:  e.Category,
		Logo:      model.Logo{URL: e.LogoURL},
		CreatedAt: e.CreatedAt,
	}
}

type voucherJSON struct {
	ID              flexID             `json:"id"`
	Title           string             `json:"title"`
	Description     string             `json:"description"`
	Code            string             `json:"code"`
	Rules           string             `json:"rules"`
	Value           decimal.Decimal    `json:"value"`
	Quantity        int                `json:"quantity"`
	IsPaid          bool               `json:"isPaid"`
	EstablishmentID flexID             `json:"establishmentId"`
	Establishment   *establishmentJSON `json:"establishment"`
	CreatedAt       time.Time          `json:"createdAt"`
}

func (v voucherJSON) toModel() model.Voucher {
	out := model.Voucher{
		ID:              string(v.ID),
		Title:           v.Title,
		Description:     v.Description,
		Code:            v.Code,
		Rules:           v.Rules,
		Value:           v.Value,
		Quantity:        v.Quantity,
		IsPaid:          v.IsPaid,
		EstablishmentID: string(v.EstablishmentID),
		CreatedAt:       v.CreatedAt,
	}
	if v.Establishment != nil {
		est := v.Establishment.toModel()
		out.Establishment = &est
		if out.EstablishmentID == "" {
			out.EstablishmentID = est.ID
		}
	}
	return out
}

// voucherPayload はバウチャー作成・更新時の送信ボディ。
// 割引率は上流APIが数値として扱うためfloat64で送る。
type voucherPayload struct {
	Title           string  `json:"title"`
	Description     string  `json:"description"`
	Code            string  `json:"code"`
	Rules           string  `json:"rules"`
	Value           float64 `json:"value"`
	Quantity        int     `json:"quantity"`
	IsPaid          bool    `json:"isPaid"`
	EstablishmentID string  `json:"establishmentId"`
}

func newVoucherPayload(v model.Voucher) voucherPayload {
	return voucherPayload{
		Title:           v.Title,
		Description:     v.Description,
		Code:            v.Code,
		Rules:           v.Rules,
		Value:           v.Value.InexactFloat64(),
		Quantity:        v.Quantity,
		IsPaid:          v.IsPaid,
		EstablishmentID: v.EstablishmentID,
	}
}

// categoryName は文字列、または {"category": "..."} の形式で返されるカテゴリ名。
type categoryName string

// UnmarshalJSON はjson.Unmarshalerを実装する。
func (c *categoryName) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var obj struct {
			Category string `json:"category"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		*c = categoryName(obj.Category)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*c = categoryName(s)
	return nil
}

// listResponse は一覧APIの {rows, count} 部分。
type listResponse[T any] struct {
	Rows  []T `json:"rows"`
	Count int `json:"count"`
}

func toPage[J any, M any](lr listResponse[J], conv func(J) M) model.Page[M] {
	rows := make([]M, 0, len(lr.Rows))
	for _, r := range lr.Rows {
		rows = append(rows, conv(r))
	}
	return model.Page[M]{Rows: rows, TotalCount: lr.Count}
}

func normalizeCategories(in []categoryName) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		if s := strings.TrimSpace(string(c)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
