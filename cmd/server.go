// Package main はpublicdサーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"

	"publicd/internal/config"
	"publicd/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		configPath = flag.String("config", "", "設定ファイル (.yaml / .yml / .toml)")
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 127.0.0.1)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		root       = flag.String("root", "", "ドキュメントルート (デフォルト: public)")
		maxConns   = flag.Int("max-conns", -1, "同時接続数の上限 (0: 無制限)")
		admin      = flag.String("admin", "", "管理用エンドポイントのアドレス (例: 127.0.0.1:8081)")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("publicd")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定を読み込む
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *root != "" {
		cfg.Files.Root = *root
	}
	if *maxConns >= 0 {
		cfg.Server.MaxConnections = *maxConns
	}
	if *admin != "" {
		adminHost, p, err := net.SplitHostPort(*admin)
		if err != nil {
			log.Fatalf("管理用エンドポイントのアドレスが不正です: %v", err)
		}
		adminPort, err := strconv.Atoi(p)
		if err != nil {
			log.Fatalf("管理用エンドポイントのポート番号が不正です: %v", err)
		}
		cfg.Admin.Enabled = true
		cfg.Admin.Host = adminHost
		cfg.Admin.Port = adminPort
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("設定の検証に失敗しました: %v", err)
	}

	srv := server.New(cfg)

	// サーバーを起動
	log.Printf("publicd サーバーを起動します: %s", cfg.ServerAddress())
	if err := srv.Start(context.Background()); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
