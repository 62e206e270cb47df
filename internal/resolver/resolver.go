// Package resolver はURLパスをドキュメントルート配下のファイルに解決する。
//
// 結果は Status で分類され、呼び出し側はそれをもとにレスポンスとログを決める。
// 読み込んだ内容はキャッシュせず、要求のたびにファイルシステムへアクセスする。
package resolver

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"publicd/internal/config"
)

// Status はファイル解決の結果を表す
type Status int

const (
	StatusOK          Status = iota // ファイルを読み込めた
	StatusNotFound                  // ファイルが存在しない
	StatusIsDirectory               // ディレクトリを指している
	StatusForbidden                 // ドキュメントルートの外を指している
	StatusIOError                   // その他の読み込みエラー
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusIsDirectory:
		return "is_directory"
	case StatusForbidden:
		return "forbidden"
	case StatusIOError:
		return "io_error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ErrOutsideRoot は要求パスがドキュメントルートの外を指す場合に返される
var ErrOutsideRoot = errors.New("path escapes document root")

// Result はファイル解決の結果
type Result struct {
	Status      Status
	Name        string // ドキュメントルートからの相対パス
	ContentType string
	Body        []byte
	Err         error // StatusOK 以外の原因
}

// Resolver はドキュメントルート配下のファイルを解決する
type Resolver struct {
	root         string
	indexFile    string
	defaultType  string
	sniffContent bool
	mimeTypes    map[string]string
}

// New は新しいResolverを作成する
func New(cfg config.FilesConfig) *Resolver {
	mimeTypes := make(map[string]string, len(cfg.MimeTypes))
	for ext, typ := range cfg.MimeTypes {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		mimeTypes[ext] = typ
	}

	defaultType := cfg.DefaultType
	if defaultType == "" {
		defaultType = "text/plain"
	}
	indexFile := cfg.IndexFile
	if indexFile == "" {
		indexFile = "index.html"
	}

	return &Resolver{
		root:         cfg.Root,
		indexFile:    indexFile,
		defaultType:  defaultType,
		sniffContent: cfg.SniffContent,
		mimeTypes:    mimeTypes,
	}
}

// Root はドキュメントルートを返す
func (r *Resolver) Root() string { return r.root }

// Locate は要求パスをドキュメントルートからの相対パスに変換する
//
// "/" はインデックスファイルになる。それ以外は先頭のスラッシュをすべて取り除き、
// 字句的に正規化した結果がルートの外に出る場合は ErrOutsideRoot を返す。
func (r *Resolver) Locate(urlPath string) (string, error) {
	if urlPath == "/" {
		return r.indexFile, nil
	}

	if strings.IndexByte(urlPath, 0) >= 0 {
		return "", ErrOutsideRoot
	}

	rest := strings.TrimLeft(urlPath, "/")
	if rest == "" {
		return ".", nil
	}

	name := filepath.FromSlash(rest)
	if filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", ErrOutsideRoot
	}

	name = filepath.Clean(name)
	if name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return name, nil
}

// Resolve は要求パスのファイルを読み込む
func (r *Resolver) Resolve(urlPath string) Result {
	name, err := r.Locate(urlPath)
	if err != nil {
		return Result{Status: StatusForbidden, Err: err}
	}

	body, err := r.read(name)
	if err != nil {
		return Result{Status: classify(err), Name: name, Err: err}
	}

	return Result{
		Status:      StatusOK,
		Name:        name,
		ContentType: r.ContentType(name, body),
		Body:        body,
	}
}

// read はドキュメントルートを開き、その内側からファイルを読み込む
// os.Root を通すのでシンボリックリンクでもルートの外には出られない
func (r *Resolver) read(name string) ([]byte, error) {
	root, err := os.OpenRoot(r.root)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントルートを開けません: %w", err)
	}
	defer root.Close()

	f, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, errIsDirectory
	}

	var buf bytes.Buffer
	buf.Grow(int(info.Size()))
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var errIsDirectory = errors.New("is a directory")

// classify はエラーを Status に分類する
func classify(err error) Status {
	switch {
	case errors.Is(err, errIsDirectory):
		return StatusIsDirectory
	case errors.Is(err, fs.ErrNotExist):
		return StatusNotFound
	case errors.Is(err, ErrOutsideRoot):
		return StatusForbidden
	case isEscape(err):
		return StatusForbidden
	default:
		return StatusIOError
	}
}

// isEscape は os.Root がルート外へのアクセスを拒否したかどうかを判定する
func isEscape(err error) bool {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return strings.Contains(pathErr.Err.Error(), "escapes")
	}
	return false
}

// ContentType はファイル名と内容からMIMEタイプを推測する
func (r *Resolver) ContentType(name string, body []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext != "" {
		if typ, ok := r.mimeTypes[ext]; ok {
			return typ
		}
		if typ := mime.TypeByExtension(ext); typ != "" {
			return mediaType(typ)
		}
	}

	if r.sniffContent && len(body) > 0 {
		return mediaType(mimetype.Detect(body).String())
	}

	return r.defaultType
}

// mediaType は "text/css; charset=utf-8" から "text/css" を取り出す
func mediaType(typ string) string {
	if mt, _, err := mime.ParseMediaType(typ); err == nil {
		return mt
	}
	if i := strings.IndexByte(typ, ';'); i >= 0 {
		return strings.TrimSpace(typ[:i])
	}
	return typ
}
