package imgx

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // 注册 JPEG 解码器
	"image/png"
	"io"
	"strings"

	_ "golang.org/x/image/webp" // 注册 WEBP 解码器
)

// Info 是只读取图片头部得到的信息（不解码像素）。
type Info struct {
	Width  int
	Height int
	Format string // image.RegisterFormat 的名字：jpeg/png/webp/...
}

// AllowedFormats 是允许投递的图片格式。
var AllowedFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"webp": true,
}

// Probe 读取 r 的图片头部，返回尺寸与格式。
// 未注册的格式或损坏的数据返回错误。
func Probe(r io.Reader) (Info, error) {
	if r == nil {
		return Info{}, errors.New("reader 为空")
	}
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return Info{}, fmt.Errorf("解析图片头失败：%w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Info{}, errors.New("图片尺寸无效")
	}
	return Info{Width: cfg.Width, Height: cfg.Height, Format: strings.ToLower(format)}, nil
}

// Allowed 判断格式是否在白名单内。
func Allowed(format string) bool {
	return AllowedFormats[strings.ToLower(strings.TrimSpace(format))]
}

// SelfTest 编码并探测一张 1x1 PNG，用于启动时确认图片处理能力可用。
func SelfTest() error {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	info, err := Probe(&buf)
	if err != nil {
		return err
	}
	if info.Width != 1 || info.Height != 1 || info.Format != "png" {
		return fmt.Errorf("自检结果不符合预期：%+v", info)
	}
	return nil
}
