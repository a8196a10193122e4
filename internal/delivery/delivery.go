// Package delivery 把获取到的记录投递给最终消费者。
package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/infra/logx"
)

// Sender 投递一条记录；投递语义是“尽力而为、至少一次”，调用方不重试。
type Sender interface {
	Send(ctx context.Context, destinationID string, rec domain.ContentRecord) error
}

// FormatCaption 生成形如
//
//	Title | 1920×1080 | Photo by Author on Source
//	Download: https://...
//
// 的说明文字；没有下载地址时只有第一行。Markdown 特殊字符会被转义。
func FormatCaption(rec domain.ContentRecord) string {
	title := domain.TruncateTitle(rec.Title)
	author := rec.Author
	if author == "" {
		author = domain.DefaultAuthor
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s | %d×%d | Photo by %s on %s",
		escapeMarkdown(title), rec.Width, rec.Height, escapeMarkdown(author), escapeMarkdown(rec.SourceName))
	if rec.DownloadURL != "" {
		b.WriteString("\nDownload: ")
		b.WriteString(escapeMarkdown(rec.DownloadURL))
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`_`, `\_`,
	`*`, `\*`,
	"`", "\\`",
	`[`, `\[`,
)

func escapeMarkdown(s string) string { return markdownEscaper.Replace(s) }

// LogSender 只记录日志（未配置 bot token 时使用）。
type LogSender struct {
	Log logx.Logger
}

func (s LogSender) Send(ctx context.Context, destinationID string, rec domain.ContentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := s.Log
	if log == nil {
		log = logx.NewNop()
	}
	log.Info("投递（仅日志）",
		logx.String("destination", destinationID),
		logx.String("source", rec.SourceName),
		logx.String("preview_url", rec.PreviewURL),
		logx.String("caption", FormatCaption(rec)),
	)
	return nil
}
