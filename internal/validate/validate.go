// Package validate 下载候选图片并按分辨率、格式、体积策略决定是否接受。
package validate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/infra/fsx"
	"github.com/John-Robertt/wallpipe/internal/infra/imgx"
	"github.com/John-Robertt/wallpipe/internal/infra/logx"
)

// DefaultMaxBytes 是允许下载的最大图片体积（20 MiB）。
const DefaultMaxBytes int64 = 20 << 20

type Options struct {
	// Enabled 是启动时解析一次的能力开关（见 DetectCapability）。
	// false 时 Validate 无条件接受：缺少校验能力应降级，而不是让获取整体失败。
	Enabled bool

	// Client 的 Timeout 即下载超时（默认 60s，由 httpx.NewImageClient 设置）。
	Client   *http.Client
	Policy   domain.SizePolicy
	MaxBytes int64
	// TempDir 为空时使用系统临时目录。
	TempDir string
	Log     logx.Logger
}

// Verdict 是一次校验的详细结论（Validate 只返回 Accepted）。
type Verdict struct {
	Accepted bool
	Reason   string
	Info     imgx.Info
}

type Validator struct {
	opt   Options
	probe func(io.Reader) (imgx.Info, error)
}

func New(opt Options) *Validator {
	if opt.Client == nil {
		opt.Client = http.DefaultClient
	}
	if opt.MaxBytes <= 0 {
		opt.MaxBytes = DefaultMaxBytes
	}
	if opt.Log == nil {
		opt.Log = logx.NewNop()
	}
	return &Validator{opt: opt, probe: imgx.Probe}
}

// DetectCapability 在启动时确认图片解码与临时文件都可用。
// 返回 false 时调用方应以 Enabled=false 构造 Validator，并记录一次日志。
func DetectCapability(tempDir string) (bool, error) {
	if err := imgx.SelfTest(); err != nil {
		return false, fmt.Errorf("图片解码不可用：%w", err)
	}
	if err := fsx.CheckWritable(tempDir); err != nil {
		return false, fmt.Errorf("临时目录不可写：%w", err)
	}
	return true, nil
}

func (v *Validator) Enabled() bool { return v.opt.Enabled }

// Validate 返回 url 指向的图片是否满足策略。任何失败都是“拒绝”，不会向上抛错。
func (v *Validator) Validate(ctx context.Context, url string) bool {
	return v.Inspect(ctx, url).Accepted
}

// Inspect 与 Validate 相同，但返回拒绝原因与探测到的图片信息。
func (v *Validator) Inspect(ctx context.Context, url string) Verdict {
	if !v.opt.Enabled {
		return Verdict{Accepted: true, Reason: "validation disabled"}
	}

	log := v.opt.Log.With(logx.String("url", url))
	verdict, err := v.inspect(ctx, url)
	if err != nil {
		log.Warn("图片校验失败", logx.Err(err))
		return Verdict{Accepted: false, Reason: err.Error()}
	}
	if !verdict.Accepted {
		log.Warn("图片被拒绝", logx.String("reason", verdict.Reason))
		return verdict
	}
	log.Info("图片校验通过",
		logx.Int("width", verdict.Info.Width),
		logx.Int("height", verdict.Info.Height),
		logx.String("format", verdict.Info.Format),
	)
	return verdict
}

func (v *Validator) inspect(ctx context.Context, url string) (Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Verdict{}, err
	}
	resp, err := v.opt.Client.Do(req)
	if err != nil {
		return Verdict{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return reject("下载失败：HTTP %d", resp.StatusCode), nil
	}
	// Content-Length 超限：不读 body、不解码，直接拒绝。
	if resp.ContentLength > v.opt.MaxBytes {
		return reject("图片过大：%d bytes（上限 %d）", resp.ContentLength, v.opt.MaxBytes), nil
	}

	var out Verdict
	err = fsx.WithTempFile(v.opt.TempDir, "wallpipe-img-*", func(f *os.File) error {
		n, err := io.Copy(f, io.LimitReader(resp.Body, v.opt.MaxBytes+1))
		if err != nil {
			return fmt.Errorf("下载中断：%w", err)
		}
		if n > v.opt.MaxBytes {
			out = reject("图片过大：超过 %d bytes", v.opt.MaxBytes)
			return nil
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}

		info, err := v.probe(f)
		if err != nil {
			// 解码失败属于“拒绝”，不是需要向上传播的错误。
			out = reject("无法解码图片：%v", err)
			return nil
		}
		out = v.judge(info)
		return nil
	})
	if err != nil {
		return Verdict{}, err
	}
	return out, nil
}

func (v *Validator) judge(info imgx.Info) Verdict {
	p := v.opt.Policy
	if info.Width < p.MinWidth || info.Height < p.MinHeight {
		r := reject("分辨率不足：%dx%d（最小 %dx%d）", info.Width, info.Height, p.MinWidth, p.MinHeight)
		r.Info = info
		return r
	}
	if !imgx.Allowed(info.Format) {
		r := reject("不支持的图片格式：%s", info.Format)
		r.Info = info
		return r
	}
	return Verdict{Accepted: true, Info: info}
}

func reject(format string, args ...any) Verdict {
	return Verdict{Accepted: false, Reason: fmt.Sprintf(format, args...)}
}
