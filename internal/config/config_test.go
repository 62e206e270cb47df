package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv はテスト中だけ設定関連の環境変数を空にする
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"SERVER_HOST", "PORT", "DOCUMENT_ROOT"} {
		t.Setenv(key, "")
	}
}

// TestConfigLoad は設定の読み込みをテストする
func TestConfigLoad(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg == nil {
		t.Fatal("設定がnilです")
	}

	// 既定の待ち受けアドレスとドキュメントルート
	if got := cfg.ServerAddress(); got != "127.0.0.1:8080" {
		t.Errorf("既定のアドレスが一致しません: got %s, want 127.0.0.1:8080", got)
	}
	if cfg.Files.Root != "public" {
		t.Errorf("既定のドキュメントルートが一致しません: got %s, want public", cfg.Files.Root)
	}
	if cfg.Files.IndexFile != "index.html" {
		t.Errorf("既定のインデックスファイルが一致しません: got %s", cfg.Files.IndexFile)
	}
	if cfg.Files.DefaultType != "text/plain" {
		t.Errorf("既定のMIMEタイプが一致しません: got %s", cfg.Files.DefaultType)
	}
	if cfg.Server.MaxRequestLine != 1024 {
		t.Errorf("リクエスト行の上限が一致しません: got %d, want 1024", cfg.Server.MaxRequestLine)
	}
	if cfg.Server.MaxConnections != 0 {
		t.Errorf("同時接続数は既定で無制限のはずです: got %d", cfg.Server.MaxConnections)
	}
	if cfg.Server.ReadTimeout.Duration <= 0 {
		t.Error("読み込みタイムアウトが設定されていません")
	}
	if cfg.Admin.Enabled {
		t.Error("管理エンドポイントは既定で無効のはずです")
	}
}

// TestConfigValidation は設定の検証をテストする
func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(c *Config)
		expectErr bool
	}{
		{
			name:      "正常な設定",
			mutate:    func(c *Config) {},
			expectErr: false,
		},
		{
			name:      "無効なポート番号",
			mutate:    func(c *Config) { c.Server.Port = 99999 },
			expectErr: true,
		},
		{
			name:      "ホストなし",
			mutate:    func(c *Config) { c.Server.Host = "" },
			expectErr: true,
		},
		{
			name:      "ドキュメントルートなし",
			mutate:    func(c *Config) { c.Files.Root = "" },
			expectErr: true,
		},
		{
			name:      "インデックスファイルなし",
			mutate:    func(c *Config) { c.Files.IndexFile = "" },
			expectErr: true,
		},
		{
			name:      "リクエスト行の上限が小さすぎる",
			mutate:    func(c *Config) { c.Server.MaxRequestLine = 8 },
			expectErr: true,
		},
		{
			name:      "負の同時接続数",
			mutate:    func(c *Config) { c.Server.MaxConnections = -1 },
			expectErr: true,
		},
		{
			name:      "負のタイムアウト",
			mutate:    func(c *Config) { c.Server.ReadTimeout = Duration{-time.Second} },
			expectErr: true,
		},
		{
			name: "管理エンドポイントのアドレス重複",
			mutate: func(c *Config) {
				c.Admin.Enabled = true
				c.Admin.Port = c.Server.Port
			},
			expectErr: true,
		},
		{
			name: "管理エンドポイントのホストなし",
			mutate: func(c *Config) {
				c.Admin.Enabled = true
				c.Admin.Host = ""
			},
			expectErr: true,
		},
		{
			name: "管理エンドポイント有効",
			mutate: func(c *Config) {
				c.Admin.Enabled = true
				c.Admin.Port = 9091
			},
			expectErr: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.expectErr && err == nil {
				t.Error("エラーが期待されましたが、エラーが発生しませんでした")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("予期しないエラーが発生しました: %v", err)
			}
		})
	}
}

// TestServerAddress はサーバーアドレスの生成をテストする
func TestServerAddress(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "192.168.1.100",
			Port: 9090,
		},
		Admin: AdminConfig{
			Host: "0.0.0.0",
			Port: 9091,
		},
	}

	if actual := cfg.ServerAddress(); actual != "192.168.1.100:9090" {
		t.Errorf("サーバーアドレスが一致しません: got %s, want 192.168.1.100:9090", actual)
	}
	if actual := cfg.AdminAddress(); actual != "0.0.0.0:9091" {
		t.Errorf("管理アドレスが一致しません: got %s, want 0.0.0.0:9091", actual)
	}
}

// TestEnvironmentVariables は環境変数の処理をテストする
func TestEnvironmentVariables(t *testing.T) {
	t.Setenv("SERVER_HOST", "test.example.com")
	t.Setenv("PORT", "9999")
	t.Setenv("DOCUMENT_ROOT", "/srv/www")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Host != "test.example.com" {
		t.Errorf("環境変数のホストが反映されていません: got %s, want test.example.com", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("環境変数のポートが反映されていません: got %d, want 9999", cfg.Server.Port)
	}
	if cfg.Files.Root != "/srv/www" {
		t.Errorf("環境変数のドキュメントルートが反映されていません: got %s", cfg.Files.Root)
	}
}

// TestLoadFile は設定ファイルの読み込みをテストする
func TestLoadFile(t *testing.T) {
	clearEnv(t)

	testCases := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "YAML",
			file: "publicd.yaml",
			content: `server:
  host: 0.0.0.0
  port: 8088
  read_timeout: 3s
  max_connections: 64
files:
  root: ./site
  mime_types:
    .md: text/markdown
admin:
  enabled: true
  port: 8089
`,
		},
		{
			name: "TOML",
			file: "publicd.toml",
			content: `[server]
host = "0.0.0.0"
port = 8088
read_timeout = "3s"
max_connections = 64

[files]
root = "./site"

[files.mime_types]
".md" = "text/markdown"

[admin]
enabled = true
port = 8089
`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tc.file)
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatalf("設定ファイルの作成に失敗しました: %v", err)
			}

			cfg, err := LoadFile(path)
			if err != nil {
				t.Fatalf("設定ファイルの読み込みに失敗しました: %v", err)
			}

			if cfg.ServerAddress() != "0.0.0.0:8088" {
				t.Errorf("アドレスが一致しません: got %s", cfg.ServerAddress())
			}
			if cfg.Server.ReadTimeout.Duration != 3*time.Second {
				t.Errorf("読み込みタイムアウトが一致しません: got %v", cfg.Server.ReadTimeout)
			}
			if cfg.Server.MaxConnections != 64 {
				t.Errorf("同時接続数が一致しません: got %d", cfg.Server.MaxConnections)
			}
			if cfg.Files.Root != "./site" {
				t.Errorf("ドキュメントルートが一致しません: got %s", cfg.Files.Root)
			}
			if cfg.Files.MimeTypes[".md"] != "text/markdown" {
				t.Errorf("MIMEタイプの上書きが反映されていません: %v", cfg.Files.MimeTypes)
			}
			// ファイルに書かれていない項目はデフォルトのまま
			if cfg.Files.IndexFile != "index.html" {
				t.Errorf("インデックスファイルが一致しません: got %s", cfg.Files.IndexFile)
			}
			if cfg.Server.WriteTimeout.Duration != 10*time.Second {
				t.Errorf("書き込みタイムアウトが一致しません: got %v", cfg.Server.WriteTimeout)
			}
			if !cfg.Admin.Enabled || cfg.AdminAddress() != "127.0.0.1:8089" {
				t.Errorf("管理エンドポイントの設定が一致しません: %+v", cfg.Admin)
			}
		})
	}
}

// TestLoadFileErrors は設定ファイルの異常系をテストする
func TestLoadFileErrors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("設定ファイルの作成に失敗しました: %v", err)
		}
		return path
	}

	t.Run("未対応の拡張子", func(t *testing.T) {
		_, err := LoadFile(write("publicd.json", "{}"))
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("ErrUnsupportedFormat が期待されました: %v", err)
		}
	})

	t.Run("存在しないファイル", func(t *testing.T) {
		if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
			t.Error("エラーが期待されました")
		}
	})

	t.Run("未知のキー", func(t *testing.T) {
		if _, err := LoadFile(write("unknown.yaml", "server:\n  hots: x\n")); err == nil {
			t.Error("エラーが期待されました")
		}
	})

	t.Run("無効な時間指定", func(t *testing.T) {
		if _, err := LoadFile(write("duration.yaml", "server:\n  read_timeout: soon\n")); err == nil {
			t.Error("エラーが期待されました")
		}
	})

	t.Run("検証エラー", func(t *testing.T) {
		if _, err := LoadFile(write("port.toml", "[server]\nport = 70000\n")); err == nil {
			t.Error("エラーが期待されました")
		}
	})
}

// TestExampleConfig はリポジトリ同梱の設定例が既定値と一致することを確認する
func TestExampleConfig(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFile(filepath.Join("..", "..", "publicd.example.yaml"))
	if err != nil {
		t.Fatalf("設定例の読み込みに失敗しました: %v", err)
	}

	def := Default()
	if cfg.ServerAddress() != def.ServerAddress() {
		t.Errorf("アドレスが一致しません: got %s, want %s", cfg.ServerAddress(), def.ServerAddress())
	}
	if cfg.Files.Root != def.Files.Root {
		t.Errorf("ドキュメントルートが一致しません: got %s, want %s", cfg.Files.Root, def.Files.Root)
	}
	if cfg.Server.ReadTimeout != def.Server.ReadTimeout {
		t.Errorf("読み込みタイムアウトが一致しません: got %v, want %v", cfg.Server.ReadTimeout, def.Server.ReadTimeout)
	}
}
