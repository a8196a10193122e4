package provider

import (
	"fmt"
	"strings"
)

// HTTPStatusError 表示 provider 返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Body       string // 响应体前若干字节，便于排查
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d body=%s", e.StatusCode, body)
}
