package server

import (
	"io"
	"net"
	"strconv"

	"publicd/internal/resolver"
)

const (
	statusLineOK       = "HTTP/1.1 200 OK\r\n"
	statusLineNotFound = "HTTP/1.1 404 NOT FOUND\r\n"

	notFoundBody = "<h1>404 - Not Found uwehehe</h1>"
)

// writeResponse は解決結果をHTTPレスポンスとして書き込む
//
// 200 は Content-Type と Content-Length を付ける。
// それ以外はすべてヘッダーなしの固定の 404 になる。
func writeResponse(w io.Writer, res resolver.Result) (int64, error) {
	if res.Status != resolver.StatusOK {
		bufs := net.Buffers{
			[]byte(statusLineNotFound + "\r\n"),
			[]byte(notFoundBody),
		}
		return bufs.WriteTo(w)
	}

	head := make([]byte, 0, 128)
	head = append(head, statusLineOK...)
	head = append(head, "Content-Type: "...)
	head = append(head, res.ContentType...)
	head = append(head, "\r\nContent-Length: "...)
	head = strconv.AppendInt(head, int64(len(res.Body)), 10)
	head = append(head, "\r\n\r\n"...)

	bufs := net.Buffers{head, res.Body}
	return bufs.WriteTo(w)
}
