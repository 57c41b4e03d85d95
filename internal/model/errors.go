// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string   // エラーコード
	Message  string   // エラーメッセージ
	Category string   // カテゴリ: auth, validation, upstream, system
	Action   string   // ユーザー向け対処方法
	Fields   []string // バリデーションエラーの対象項目
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeRequiredFields        = "REQUIRED_FIELDS"
	ErrCodeInvalidValue          = "INVALID_VALUE"
	ErrCodeInvalidQuantity       = "INVALID_QUANTITY"
	ErrCodeUnknownEstablishment  = "UNKNOWN_ESTABLISHMENT"
	ErrCodeLoginFailed           = "LOGIN_FAILED"
	ErrCodeUnauthorized          = "UNAUTHORIZED"
	ErrCodeUpstreamFailed        = "UPSTREAM_FAILED"
	ErrCodeEstablishmentNotFound = "ESTABLISHMENT_NOT_FOUND"
	ErrCodeVoucherNotFound       = "VOUCHER_NOT_FOUND"
	ErrCodeLogoFetchFailed       = "LOGO_FETCH_FAILED"
	ErrCodeInvalidLogo           = "INVALID_LOGO"
)

// NewRequiredFieldsError は必須項目未入力エラーを生成する。
func NewRequiredFieldsError(fields ...string) *APIError {
	return &APIError{
		Code:     ErrCodeRequiredFields,
		Message:  fmt.Sprintf("必須項目が入力されていません: %s", strings.Join(fields, ", ")),
		Category: "validation",
		Action:   "すべての必須項目を入力してください。",
		Fields:   fields,
	}
}

// NewInvalidValueError は割引率が範囲外の場合のエラーを生成する。
func NewInvalidValueError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidValue,
		Message:  fmt.Sprintf("無効な割引率です: %s", value),
		Category: "validation",
		Action:   "割引率は0から100の範囲で指定してください。",
		Fields:   []string{"value"},
	}
}

// NewInvalidQuantityError は利用可能枚数が不正な場合のエラーを生成する。
func NewInvalidQuantityError(quantity int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidQuantity,
		Message:  fmt.Sprintf("無効な枚数です: %d", quantity),
		Category: "validation",
		Action:   "枚数は1以上の整数で指定してください。",
		Fields:   []string{"quantity"},
	}
}

// NewUnknownEstablishmentError はバウチャーの店舗IDが既知の店舗に一致しない場合のエラーを生成する。
func NewUnknownEstablishmentError(establishmentID string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownEstablishment,
		Message:  fmt.Sprintf("指定された店舗が見つかりません: %s", establishmentID),
		Category: "validation",
		Action:   "一覧から店舗を選択してください。",
		Fields:   []string{"establishmentId"},
	}
}

// NewLoginFailedError はログイン失敗エラーを生成する。
func NewLoginFailedError(reason string) *APIError {
	msg := "ログインに失敗しました。"
	if reason != "" {
		msg = fmt.Sprintf("ログインに失敗しました: %s", reason)
	}
	return &APIError{
		Code:     ErrCodeLoginFailed,
		Message:  msg,
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewUpstreamFailedError は上流APIの呼び出し失敗エラーを生成する。
func NewUpstreamFailedError(operation string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  fmt.Sprintf("サーバーとの通信に失敗しました: %s", operation),
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewEstablishmentNotFoundError は店舗が読み込み済みの一覧に見つからない場合のエラーを生成する。
func NewEstablishmentNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeEstablishmentNotFound,
		Message:  fmt.Sprintf("指定された店舗が見つかりません: %s", id),
		Category: "validation",
		Action:   "一覧を再読み込みしてください。",
	}
}

// NewVoucherNotFoundError はバウチャーが読み込み済みの一覧に見つからない場合のエラーを生成する。
func NewVoucherNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeVoucherNotFound,
		Message:  fmt.Sprintf("指定されたバウチャーが見つかりません: %s", id),
		Category: "validation",
		Action:   "一覧を再読み込みしてください。",
	}
}

// NewLogoFetchFailedError はロゴURLからの画像取得失敗エラーを生成する。
func NewLogoFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeLogoFetchFailed,
		Message:  fmt.Sprintf("ロゴ画像の取得に失敗しました: %s", reason),
		Category: "validation",
		Action:   "公開されている画像のURLを指定するか、ファイルをアップロードしてください。",
		Fields:   []string{"logo"},
	}
}

// NewInvalidLogoError はアップロードされたロゴが画像でない場合のエラーを生成する。
func NewInvalidLogoError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLogo,
		Message:  fmt.Sprintf("ロゴ画像が不正です: %s", reason),
		Category: "validation",
		Action:   "2MB以下の画像ファイルを選択してください。",
		Fields:   []string{"logo"},
	}
}

// IsValidation はエラーがバリデーションエラーかを判定する。
func IsValidation(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category == "validation"
	}
	return false
}
