package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"

	"publicd/internal/resolver"
)

const (
	// defaultMaxRequestLine はリクエスト行として読み込む既定の最大バイト数
	defaultMaxRequestLine = 1024

	// 切断前に読み捨てる残りデータの上限
	drainTimeout  = 500 * time.Millisecond
	maxDrainBytes = 64 << 10
)

// request は解析済みのリクエスト行
type request struct {
	Method string
	Path   string
	Proto  string // 省略されている場合は空
}

// conn は受け付けた1つの接続
type conn struct {
	server *Server
	rwc    net.Conn
	id     string
}

func newConn(s *Server, rwc net.Conn) *conn {
	return &conn{
		server: s,
		rwc:    rwc,
		id:     uuid.New().String(),
	}
}

// serve は1つの接続でリクエストを1つ処理して切断する
func (c *conn) serve() {
	stats := &c.server.stats
	stats.active.Add(1)

	defer func() {
		if err := recover(); err != nil {
			stats.failed.Add(1)
			log.Printf("[%s] パニックから回復しました: %v", c.id, err)
		}
		c.close()
		stats.active.Add(-1)
	}()

	if err := c.handle(); err != nil {
		stats.failed.Add(1)
		log.Printf("[%s] 接続の処理に失敗しました (%s): %v", c.id, c.rwc.RemoteAddr(), err)
	}
}

// handle はリクエスト行を読み込み、レスポンスを書き込む
func (c *conn) handle() error {
	cfg := c.server.config.Server

	if d := cfg.ReadTimeout.Duration; d > 0 {
		if err := c.rwc.SetReadDeadline(time.Now().Add(d)); err != nil {
			return fmt.Errorf("読み込み期限の設定に失敗: %w", err)
		}
	}

	raw, err := readRequestLine(c.rwc, cfg.MaxRequestLine)
	if err != nil {
		return fmt.Errorf("リクエストの読み込みに失敗: %w", err)
	}

	req, ok := parseRequestLine(raw)
	if !ok {
		// GET 以外、またはトークン不足は何も返さずに切断する
		c.server.stats.rejected.Add(1)
		return nil
	}

	res := c.server.resolver.Resolve(req.Path)
	switch res.Status {
	case resolver.StatusOK:
	case resolver.StatusIOError:
		log.Printf("[%s] ファイルの読み込みに失敗しました (%s): %v", c.id, req.Path, res.Err)
	case resolver.StatusForbidden:
		log.Printf("[%s] ドキュメントルート外へのアクセスを拒否しました: %q", c.id, req.Path)
	}

	if d := cfg.WriteTimeout.Duration; d > 0 {
		if err := c.rwc.SetWriteDeadline(time.Now().Add(d)); err != nil {
			return fmt.Errorf("書き込み期限の設定に失敗: %w", err)
		}
	}

	if _, err := writeResponse(c.rwc, res); err != nil {
		return fmt.Errorf("レスポンスの書き込みに失敗: %w", err)
	}

	if res.Status == resolver.StatusOK {
		c.server.stats.served.Add(1)
	} else {
		c.server.stats.notFound.Add(1)
	}
	return nil
}

// closeWriter は書き込み側だけを閉じられる接続
type closeWriter interface {
	CloseWrite() error
}

// close は接続を閉じる
// 未読のデータが残ったまま閉じるとRSTでレスポンスが失われるので、先に書き込み側を閉じて残りを読み捨てる
func (c *conn) close() {
	if cw, ok := c.rwc.(closeWriter); ok {
		if err := cw.CloseWrite(); err == nil {
			_ = c.rwc.SetReadDeadline(time.Now().Add(drainTimeout))
			_, _ = io.CopyN(io.Discard, c.rwc, maxDrainBytes)
		}
	}

	if err := c.rwc.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Printf("[%s] 接続のクローズに失敗しました: %v", c.id, err)
	}
}

// readRequestLine は最初の改行までを最大 limit バイト読み込む
//
// 改行の前に切断された場合や上限に達した場合は、そこまでの内容を返す。
// 何も送られずに切断された場合は空のスライスを返す。
func readRequestLine(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = defaultMaxRequestLine
	}

	br := bufio.NewReaderSize(io.LimitReader(r, int64(limit)), limit)
	line, err := br.ReadSlice('\n')
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, bufio.ErrBufferFull):
	default:
		return nil, err
	}
	return line, nil
}

// parseRequestLine はリクエスト行をメソッドとパスに分解する
// 不正なUTF-8は U+FFFD に置き換えてから解析する
func parseRequestLine(raw []byte) (request, bool) {
	text, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		return request{}, false
	}

	line := string(text)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "GET" {
		return request{}, false
	}

	req := request{Method: fields[0], Path: fields[1]}
	if len(fields) > 2 {
		req.Proto = fields[2]
	}
	return req, true
}
