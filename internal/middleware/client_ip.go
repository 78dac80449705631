package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP は呼び出し元IP（X-Forwarded-Forの先頭、無ければソケット）
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	return SocketIP(r)
}

// SocketIP は接続元（ヘッダは見ない）。レート制限のキーに使う
func SocketIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
