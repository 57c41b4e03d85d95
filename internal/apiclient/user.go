package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hitoshi/vouchdesk/internal/model"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	User  *userJSON `json:"user"`
	Error string    `json:"error"`
}

// Login はメールアドレスとパスワードで上流APIにログインする。
// 成功時に上流のセッションCookieがJarに保存される。
// 応答にユーザー情報が含まれない場合はnilのユーザーを返す（呼び出し元がVerifyTokenで補完する）。
func (c *Client) Login(ctx context.Context, email, password string) (*model.User, error) {
	body, err := jsonBody(loginRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}

	raw, err := c.do(ctx, request{
		endpoint:    "user.login",
		method:      http.MethodPost,
		path:        "user/login",
		body:        body,
		contentType: "application/json",
	})
	if err != nil {
		return nil, err
	}

	var resp userResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("user.login: レスポンスJSONのパースに失敗しました: %w", err)
		}
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRejected, resp.Error)
	}
	if resp.User == nil || resp.User.ID == "" {
		return nil, nil
	}
	return resp.User.toModel(), nil
}

// Logout は上流APIのセッションを破棄する。
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, request{
		endpoint: "user.logout",
		method:   http.MethodPost,
		path:     "user/logout",
	})
	return err
}

// VerifyToken は保持しているセッションCookieが有効かを確認し、ログイン中のユーザーを返す。
func (c *Client) VerifyToken(ctx context.Context) (*model.User, error) {
	raw, err := c.do(ctx, request{
		endpoint: "user.verify",
		method:   http.MethodGet,
		path:     "user/verify-token",
	})
	if err != nil {
		return nil, err
	}

	var resp userResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("user.verify: レスポンスJSONのパースに失敗しました: %w", err)
	}
	if resp.User == nil || resp.User.ID == "" {
		return nil, fmt.Errorf("user.verify: %w", ErrUnauthorized)
	}
	return resp.User.toModel(), nil
}
