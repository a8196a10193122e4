package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/John-Robertt/wallpipe/internal/app/acquire"
)

// formatTrace 把一次获取的尝试链渲染成一行人类可读摘要（只在交互终端输出）。
func formatTrace(cat string, attempts []acquire.Attempt, err error) string {
	status := "OK"
	if err != nil {
		status = "FAIL"
	}
	line := fmt.Sprintf("%s category=%s attempts=%s", status, cat, formatAttemptChain(attempts, 0))
	if note := formatFallbackNote(attempts); err == nil && note != "" {
		line += note
	}
	if err != nil {
		line += ": " + truncate(err.Error(), 160)
	}
	return line
}

// formatAttemptChain 形如 unsplash(fetch:unavailable) -> pexels(validate:accepted)。
// max<=0 表示不限条数。
func formatAttemptChain(attempts []acquire.Attempt, max int) string {
	if len(attempts) == 0 {
		return "-"
	}
	shown := attempts
	if max > 0 && len(shown) > max {
		shown = shown[len(shown)-max:]
	}
	parts := make([]string, 0, len(shown))
	for _, a := range shown {
		parts = append(parts, fmt.Sprintf("%s(%s:%s %s)", a.Provider, a.Stage, a.Outcome, formatShortDuration(a.Duration)))
	}
	s := strings.Join(parts, " -> ")
	if len(shown) < len(attempts) {
		s = "... -> " + s
	}
	return s
}

// formatFallbackNote 在首选 provider 之外的来源成功时给出提示。
func formatFallbackNote(attempts []acquire.Attempt) string {
	if len(attempts) < 2 {
		return ""
	}
	last := attempts[len(attempts)-1]
	if last.Outcome != acquire.OutcomeAccepted || last.Provider == attempts[0].Provider {
		return ""
	}
	return fmt.Sprintf(" (fallback: %s -> %s)", attempts[0].Provider, last.Provider)
}

func formatShortDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Round(time.Second).String()
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
