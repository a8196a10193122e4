package domain

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	DefaultTitle  = "Untitled"
	DefaultAuthor = "Unknown"

	// MaxTitleLen 是 Title 的最大字符数（按 rune 计），超出时截断为 47 字符 + "..."。
	MaxTitleLen = 50
)

// SizePolicy 是 ContentRecord 的最小分辨率约束（由配置注入，不在流水线里写死）。
type SizePolicy struct {
	MinWidth  int
	MinHeight int
}

// RawContent 是 provider 映射后的“未校验”字段。
// 缺省字段允许为空，由 NewContentRecord 统一补默认值。
type RawContent struct {
	Title       string
	Width       int
	Height      int
	Author      string
	SourceName  string
	PreviewURL  string
	DownloadURL string
}

// ContentRecord 是一次成功获取的结果（不可变，交给投递层后即丢弃）。
//
// 约束：
// - Width >= MinWidth 且 Height >= MinHeight
// - PreviewURL 必须是绝对 http/https URL
// - 违反约束的记录不会被构造出来
type ContentRecord struct {
	Title       string `json:"title"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Author      string `json:"author"`
	SourceName  string `json:"source_name"`
	PreviewURL  string `json:"preview_url"`
	DownloadURL string `json:"download_url,omitempty"`
}

// NewContentRecord 校验 raw 并补齐默认值。
// 失败时返回包装了 ErrRecordInvalid 的错误。
func NewContentRecord(raw RawContent, policy SizePolicy) (ContentRecord, error) {
	if raw.Width <= 0 || raw.Height <= 0 {
		return ContentRecord{}, fmt.Errorf("%w：尺寸无效 %dx%d", ErrRecordInvalid, raw.Width, raw.Height)
	}
	if raw.Width < policy.MinWidth || raw.Height < policy.MinHeight {
		return ContentRecord{}, fmt.Errorf("%w：分辨率不足 %dx%d（最小 %dx%d）", ErrRecordInvalid, raw.Width, raw.Height, policy.MinWidth, policy.MinHeight)
	}

	preview := strings.TrimSpace(raw.PreviewURL)
	if !IsAbsHTTPURL(preview) {
		return ContentRecord{}, fmt.Errorf("%w：preview_url 无效 %q", ErrRecordInvalid, preview)
	}

	source := strings.TrimSpace(raw.SourceName)
	if source == "" {
		return ContentRecord{}, fmt.Errorf("%w：source_name 不能为空", ErrRecordInvalid)
	}

	download := strings.TrimSpace(raw.DownloadURL)
	if download != "" && !IsAbsHTTPURL(download) {
		// download_url 是可选字段：不合法时丢弃，而不是拒绝整条记录。
		download = ""
	}

	author := strings.TrimSpace(raw.Author)
	if author == "" {
		author = DefaultAuthor
	}

	return ContentRecord{
		Title:       TruncateTitle(raw.Title),
		Width:       raw.Width,
		Height:      raw.Height,
		Author:      author,
		SourceName:  source,
		PreviewURL:  preview,
		DownloadURL: download,
	}, nil
}

// TruncateTitle 清理标题空白；空标题回退为 DefaultTitle，超长截断为 47 字符 + "..."。
func TruncateTitle(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(s) <= MaxTitleLen {
		return s
	}
	r := []rune(s)
	return string(r[:MaxTitleLen-3]) + "..."
}

// IsAbsHTTPURL 判断 s 是否为带 host 的 http/https URL。
func IsAbsHTTPURL(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
