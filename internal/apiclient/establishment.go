package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"

	"github.com/hitoshi/vouchdesk/internal/model"
)

// ListEstablishments は店舗一覧の1ページ分を取得する。
// q.Filterがカテゴリ名の場合のみcategoryパラメータを付与する（"all"・空は絞り込みなし）。
func (c *Client) ListEstablishments(ctx context.Context, q model.ListQuery) (model.Page[model.Establishment], error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(q.Limit))
	query.Set("page", strconv.Itoa(q.Page))
	if !model.IsFilterAll(q.Filter) {
		query.Set("category", q.Filter)
	}

	raw, err := c.do(ctx, request{
		endpoint: "establishment.list",
		method:   http.MethodGet,
		path:     "establishment",
		query:    query,
	})
	if err != nil {
		return model.Page[model.Establishment]{}, err
	}

	var resp struct {
		Establishments listResponse[establishmentJSON] `json:"establishments"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return model.Page[model.Establishment]{}, fmt.Errorf("establishment.list: レスポンスJSONのパースに失敗しました: %w", err)
	}
	return toPage(resp.Establishments, establishmentJSON.toModel), nil
}

// ListCategories は登録済みの店舗カテゴリ一覧を取得する。
func (c *Client) ListCategories(ctx context.Context) ([]string, error) {
	raw, err := c.do(ctx, request{
		endpoint: "establishment.categories",
		method:   http.MethodGet,
		path:     "establishment/category",
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		GroupCategories []categoryName `json:"groupCategories"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("establishment.categories: レスポンスJSONのパースに失敗しました: %w", err)
	}
	return normalizeCategories(resp.GroupCategories), nil
}

// CreateEstablishment は店舗をmultipart/form-dataで作成し、サーバーが返した行を返す。
func (c *Client) CreateEstablishment(ctx context.Context, e model.Establishment) (model.Establishment, error) {
	body, contentType, err := establishmentForm(e)
	if err != nil {
		return model.Establishment{}, err
	}

	raw, err := c.do(ctx, request{
		endpoint:    "establishment.create",
		method:      http.MethodPost,
		path:        "establishment",
		body:        body,
		contentType: contentType,
	})
	if err != nil {
		return model.Establishment{}, err
	}

	var created establishmentJSON
	if err := decodeEntity(raw, "establishment", &created); err != nil {
		return model.Establishment{}, fmt.Errorf("establishment.create: %w", err)
	}
	return created.toModel(), nil
}

// UpdateEstablishment は店舗を更新し、サーバーが返した行を返す。
// 応答は {updatedEstablishment} でも素のオブジェクトでも受け付ける。
// サーバーが一部の項目しか返さない場合、返されなかった項目はゼロ値になる。
func (c *Client) UpdateEstablishment(ctx context.Context, e model.Establishment) (model.Establishment, error) {
	if e.ID == "" {
		return model.Establishment{}, fmt.Errorf("establishment.update: IDが指定されていません")
	}
	body, contentType, err := establishmentForm(e)
	if err != nil {
		return model.Establishment{}, err
	}

	raw, err := c.do(ctx, request{
		endpoint:    "establishment.update",
		method:      http.MethodPatch,
		path:        "establishment/" + url.PathEscape(e.ID),
		body:        body,
		contentType: contentType,
	})
	if err != nil {
		return model.Establishment{}, err
	}

	var updated establishmentJSON
	if err := decodeEntity(raw, "updatedEstablishment", &updated); err != nil {
		return model.Establishment{}, fmt.Errorf("establishment.update: %w", err)
	}
	return updated.toModel(), nil
}

// establishmentForm は店舗のmultipartボディを組み立てる。
// ロゴはアップロード待ちのファイルがあればファイルパートとして、
// 既存URLのみの場合はテキストとして送る。未設定なら省略する。
func establishmentForm(e model.Establishment) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("name", e.Name); err != nil {
		return nil, "", fmt.Errorf("multipartの作成に失敗しました: %w", err)
	}
	if err := w.WriteField("category", e.Category); err != nil {
		return nil, "", fmt.Errorf("multipartの作成に失敗しました: %w", err)
	}

	switch {
	case e.Logo.File != nil:
		f := e.Logo.File
		filename := f.Filename
		if filename == "" {
			filename = "logo"
		}
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="logo"; filename=%q`, filename))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("multipartの作成に失敗しました: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("ロゴ画像の書き込みに失敗しました: %w", err)
		}
	case e.Logo.URL != "":
		if err := w.WriteField("logo", e.Logo.URL); err != nil {
			return nil, "", fmt.Errorf("multipartの作成に失敗しました: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("multipartの作成に失敗しました: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
