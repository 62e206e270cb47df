package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server ServerConfig `yaml:"server" toml:"server"`
	Files  FilesConfig  `yaml:"files" toml:"files"`
	Admin  AdminConfig  `yaml:"admin" toml:"admin"`
}

// ServerConfig は静的ファイルサーバーの待ち受け設定
type ServerConfig struct {
	Host string `yaml:"host" toml:"host" validate:"required"`        // リッスンするホスト
	Port int    `yaml:"port" toml:"port" validate:"min=1,max=65535"` // リッスンするポート番号

	// タイムアウト設定（0 は無効）
	ReadTimeout  Duration `yaml:"read_timeout" toml:"read_timeout"`   // リクエスト行の読み込みタイムアウト
	WriteTimeout Duration `yaml:"write_timeout" toml:"write_timeout"` // レスポンス書き込みタイムアウト

	// リクエスト行として読み込む最大バイト数
	MaxRequestLine int `yaml:"max_request_line" toml:"max_request_line" validate:"min=16,max=65536"`
	// 同時接続数の上限（0 は無制限）
	MaxConnections int `yaml:"max_connections" toml:"max_connections" validate:"min=0"`
}

// FilesConfig はドキュメントルートの設定
type FilesConfig struct {
	Root         string            `yaml:"root" toml:"root" validate:"required"`             // ドキュメントルート
	IndexFile    string            `yaml:"index_file" toml:"index_file" validate:"required"` // "/" に対応するファイル
	DefaultType  string            `yaml:"default_type" toml:"default_type" validate:"required"`
	SniffContent bool              `yaml:"sniff_content" toml:"sniff_content"` // 拡張子で判定できない場合に中身から推測する
	MimeTypes    map[string]string `yaml:"mime_types" toml:"mime_types"`       // 拡張子 -> MIMEタイプの上書き
}

// AdminConfig は管理用HTTPエンドポイントの設定
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Host    string `yaml:"host" toml:"host" validate:"required_if=Enabled true"`
	Port    int    `yaml:"port" toml:"port" validate:"min=0,max=65535"`
}

// Duration は "10s" のような文字列で設定できる time.Duration
type Duration struct {
	time.Duration
}

// UnmarshalText は time.ParseDuration 形式の文字列を解釈する
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("無効な時間指定 %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText は Duration を文字列に変換する
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ErrUnsupportedFormat は設定ファイルの拡張子が未対応の場合に返される
var ErrUnsupportedFormat = errors.New("未対応の設定ファイル形式です")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           8080,
			ReadTimeout:    Duration{10 * time.Second},
			WriteTimeout:   Duration{10 * time.Second},
			MaxRequestLine: 1024,
			MaxConnections: 0,
		},
		Files: FilesConfig{
			Root:        "public",
			IndexFile:   "index.html",
			DefaultType: "text/plain",
		},
		Admin: AdminConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8081,
		},
	}
}

// Load は設定を読み込む
// デフォルト値に環境変数の上書きを適用する
func Load() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// LoadFile は YAML または TOML の設定ファイルを読み込む
// ファイルに書かれていない項目はデフォルト値のまま残る
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("YAMLの解析に失敗 (%s): %w", path, err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("TOMLの解析に失敗 (%s): %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.Server.ReadTimeout.Duration < 0 || c.Server.WriteTimeout.Duration < 0 {
		return fmt.Errorf("タイムアウトに負の値は指定できません")
	}

	// 管理エンドポイントの検証
	if c.Admin.Enabled {
		if c.Admin.Port == 0 {
			return fmt.Errorf("管理エンドポイントのポート番号が指定されていません")
		}
		if c.AdminAddress() == c.ServerAddress() {
			return fmt.Errorf("管理エンドポイントとサーバーのアドレスが重複しています: %s", c.ServerAddress())
		}
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// AdminAddress は管理エンドポイントのリッスンアドレスを返す
func (c *Config) AdminAddress() string {
	return fmt.Sprintf("%s:%d", c.Admin.Host, c.Admin.Port)
}

// applyEnv は環境変数による上書きを適用する
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Files.Root = getEnvOrDefault("DOCUMENT_ROOT", c.Files.Root)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
