package cli

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config はvouchctlの設定。環境変数、または--configで指定したYAMLファイルから読み込む。
// ファイルを指定した場合も環境変数が優先される。
type Config struct {
	APIBaseURL  string        `yaml:"api_base_url" env:"VOUCHCTL_API_BASE_URL" env-required:"true" env-description:"上流APIのベースURL"`
	Email       string        `yaml:"email" env:"VOUCHCTL_EMAIL" env-required:"true" env-description:"ログインに使うメールアドレス"`
	Password    string        `yaml:"password" env:"VOUCHCTL_PASSWORD" env-required:"true" env-description:"ログインに使うパスワード"`
	Timeout     time.Duration `yaml:"timeout" env:"VOUCHCTL_TIMEOUT" env-default:"10s" env-description:"1リクエストあたりのタイムアウト"`
	PageSize    int           `yaml:"page_size" env:"VOUCHCTL_PAGE_SIZE" env-default:"9" env-description:"一覧の1ページあたりの件数"`
	LogoMaxSize int64         `yaml:"logo_max_size" env:"VOUCHCTL_LOGO_MAX_SIZE" env-default:"2097152" env-description:"ロゴ画像の最大サイズ（バイト）"`
}

// LoadConfig は設定を読み込む。pathが空なら環境変数だけを使う。
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vouchctl config: %w", err)
	}
	return &cfg, nil
}

// ConfigUsage は設定に使う環境変数の説明を返す。
func ConfigUsage() string {
	var cfg Config
	desc, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return desc
}
