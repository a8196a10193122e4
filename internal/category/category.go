// Package category 把用户输入的自由文本规范化为安全、有界的查询词。
package category

import (
	"regexp"
	"strings"
)

const (
	// Default 是输入为空或清洗后为空时使用的类别。
	Default = "nature"
	// MaxLen 是规范化结果的最大长度（清洗后只剩 ASCII，字节数即字符数）。
	MaxLen = 50
)

var disallowedRE = regexp.MustCompile(`[^A-Za-z0-9\s]`)

// Normalize 规范化类别输入：
// 1) 删除 [A-Za-z0-9\s] 以外的字符
// 2) 折叠连续空白为单个空格并 trim
// 3) 截断到 MaxLen，并去掉截断后的尾部空白
// 4) 转小写
//
// 任一阶段为空都返回 Default。纯函数，无失败路径。
func Normalize(raw string) string {
	if raw == "" {
		return Default
	}
	s := disallowedRE.ReplaceAllString(raw, "")
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > MaxLen {
		s = strings.TrimRight(s[:MaxLen], " ")
	}
	if s == "" {
		return Default
	}
	return strings.ToLower(s)
}

var known = []string{
	"nature", "city", "animals", "abstract", "technology",
	"food", "people", "objects", "buildings", "travel",
	"flowers", "beach", "mountains", "sunset", "space",
	"cars", "fashion", "sports", "music", "art",
}

// Known 返回推荐的类别列表（仅用于展示；Normalize 接受任意输入）。
func Known() []string {
	return append([]string(nil), known...)
}
