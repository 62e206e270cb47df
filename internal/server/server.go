package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	"publicd/internal/config"
	"publicd/internal/resolver"
)

// ErrServerClosed は Shutdown 後に Serve が返すエラー
var ErrServerClosed = errors.New("server closed")

const (
	// shutdownTimeout は処理中の接続の完了を待つ最大時間
	shutdownTimeout = 5 * time.Second

	// Accept 失敗時の待ち時間
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = 1 * time.Second
)

// Server は静的ファイルサーバーを管理する構造体
type Server struct {
	config   *config.Config
	resolver *resolver.Resolver
	stats    Stats

	mu          sync.Mutex
	listener    net.Listener
	adminServer *http.Server
	closed      bool

	conns sync.WaitGroup
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config) *Server {
	return &Server{
		config:   cfg,
		resolver: resolver.New(cfg.Files),
	}
}

// Listen はリスニングソケットを確保する
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.config.ServerAddress())
	if err != nil {
		return fmt.Errorf("ソケットのバインドに失敗 (%s): %w", s.config.ServerAddress(), err)
	}

	// 上限に達している間は Accept が待たされる
	if limit := s.config.Server.MaxConnections; limit > 0 {
		ln = netutil.LimitListener(ln, limit)
	}

	s.listener = ln
	return nil
}

// Addr は確保したリスニングソケットのアドレスを返す
// Listen 前は nil を返す
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stats は接続の統計情報を返す
func (s *Server) Stats() *Stats {
	return &s.stats
}

// Serve は接続を受け付け、接続ごとにゴルーチンを起動する
// Shutdown によってリスナーが閉じられると ErrServerClosed を返す
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	if ln == nil {
		return fmt.Errorf("リスナーが確保されていません")
	}

	var backoff time.Duration
	for {
		rwc, err := ln.Accept()
		if err != nil {
			if s.isClosed() || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}

			// 一時的な失敗として扱い、少し待ってから受け付けを続ける
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff *= 2
			}
			if backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			log.Printf("接続の受け付けに失敗しました: %v; %v 後に再試行します", err, backoff)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			rwc.Close()
			return ErrServerClosed
		}
		s.conns.Add(1)
		s.mu.Unlock()

		s.stats.accepted.Add(1)
		c := newConn(s, rwc)
		go func() {
			defer s.conns.Done()
			c.serve()
		}()
	}
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	fmt.Printf("サーバーを起動しました: http://%s (ドキュメントルート: %s)\n", s.Addr(), s.resolver.Root())

	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 2)

	// 受け付けループを別ゴルーチンで実行
	go func() {
		if err := s.Serve(ctx); err != nil && !errors.Is(err, ErrServerClosed) {
			shutdownCh <- fmt.Errorf("受け付けループが停止しました: %w", err)
		}
	}()

	// 管理用エンドポイント
	if s.config.Admin.Enabled {
		admin := s.newAdminServer()
		s.mu.Lock()
		s.adminServer = admin
		s.mu.Unlock()

		go func() {
			log.Printf("管理用エンドポイントを起動しています: %s", s.config.AdminAddress())
			if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				shutdownCh <- fmt.Errorf("管理用エンドポイントの起動に失敗: %w", err)
			}
		}()
	}

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		log.Println("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.Printf("シグナルを受信しました: %v", sig)
	case err := <-shutdownCh:
		_ = s.Shutdown()
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	log.Println("サーバーをシャットダウンしています...")

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ln := s.listener
	admin := s.adminServer
	s.mu.Unlock()

	var errs []error
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("リスナーのクローズに失敗: %w", err))
		}
	}

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if admin != nil {
		if err := admin.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("管理用エンドポイントのシャットダウンに失敗: %w", err))
		}
	}

	// 処理中の接続を待つ
	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("処理中の接続が残っています: %d", s.stats.active.Load()))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Println("サーバーが正常にシャットダウンされました")
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
