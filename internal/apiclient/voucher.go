package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/vouchdesk/internal/model"
)

// ListVouchers はバウチャー一覧の1ページ分を取得する。
// q.Filterが指定されている場合は店舗IDで絞り込む。
func (c *Client) ListVouchers(ctx context.Context, q model.ListQuery) (model.Page[model.Voucher], error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(q.Limit))
	query.Set("page", strconv.Itoa(q.Page))
	if !model.IsFilterAll(q.Filter) {
		query.Set("establishmentId", q.Filter)
	}

	raw, err := c.do(ctx, request{
		endpoint: "voucher.list",
		method:   http.MethodGet,
		path:     "voucher",
		query:    query,
	})
	if err != nil {
		return model.Page[model.Voucher]{}, err
	}

	var resp struct {
		Vouchers listResponse[voucherJSON] `json:"vouchers"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return model.Page[model.Voucher]{}, fmt.Errorf("voucher.list: レスポンスJSONのパースに失敗しました: %w", err)
	}
	return toPage(resp.Vouchers, voucherJSON.toModel), nil
}

// CreateVoucher はバウチャーを作成し、サーバーが返した行を返す。
func (c *Client) CreateVoucher(ctx context.Context, v model.Voucher) (model.Voucher, error) {
	body, err := jsonBody(newVoucherPayload(v))
	if err != nil {
		return model.Voucher{}, err
	}

	raw, err := c.do(ctx, request{
		endpoint:    "voucher.create",
		method:      http.MethodPost,
		path:        "voucher",
		body:        body,
		contentType: "application/json",
	})
	if err != nil {
		return model.Voucher{}, err
	}

	var created voucherJSON
	if err := decodeEntity(raw, "voucher", &created); err != nil {
		return model.Voucher{}, fmt.Errorf("voucher.create: %w", err)
	}
	return created.toModel(), nil
}

// UpdateVoucher はバウチャーを更新し、サーバーが返した行を返す。
// 応答は {updatedVoucher} でも素のオブジェクトでも受け付ける。
func (c *Client) UpdateVoucher(ctx context.Context, v model.Voucher) (model.Voucher, error) {
	if v.ID == "" {
		return model.Voucher{}, fmt.Errorf("voucher.update: IDが指定されていません")
	}
	body, err := jsonBody(newVoucherPayload(v))
	if err != nil {
		return model.Voucher{}, err
	}

	raw, err := c.do(ctx, request{
		endpoint:    "voucher.update",
		method:      http.MethodPatch,
		path:        "voucher/" + url.PathEscape(v.ID),
		body:        body,
		contentType: "application/json",
	})
	if err != nil {
		return model.Voucher{}, err
	}

	var updated voucherJSON
	if err := decodeEntity(raw, "updatedVoucher", &updated); err != nil {
		return model.Voucher{}, fmt.Errorf("voucher.update: %w", err)
	}
	return updated.toModel(), nil
}
