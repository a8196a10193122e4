package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/wallpipe/internal/app/acquire"
	"github.com/John-Robertt/wallpipe/internal/category"
	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/infra/fsx"
)

// fetchResult 是 fetch 命令在 stdout 上输出的唯一 JSON 对象。
type fetchResult struct {
	Category string                `json:"category"`
	Record   *domain.ContentRecord `json:"record,omitempty"`
	Attempts []acquire.Attempt     `json:"attempts"`
	Error    string                `json:"error,omitempty"`
}

func (c *cli) fetchCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "fetch [category]",
		Short: "立即获取一张图片（不计入额度）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := ""
			if len(args) == 1 {
				raw = args[0]
			}
			return c.fetch(cmd, raw, out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "把结果 JSON 另存到该文件")
	return cmd
}

func (c *cli) fetch(cmd *cobra.Command, raw, out string) error {
	a, err := c.openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	rec, attempts, err := a.Coordinator.AcquireTrace(cmd.Context(), raw)
	res := fetchResult{Category: category.Normalize(raw), Attempts: attempts}
	if err != nil {
		res.Error = err.Error()
	} else {
		res.Record = &rec
	}
	if res.Attempts == nil {
		res.Attempts = []acquire.Attempt{}
	}

	if isTTY(c.stderr) {
		fmt.Fprintln(c.stderr, formatTrace(res.Category, attempts, err))
	}

	if out != "" {
		b, mErr := json.MarshalIndent(res, "", "  ")
		if mErr != nil {
			return mErr
		}
		b = append(b, '\n')
		if wErr := fsx.WriteFileAtomic(filepath.Dir(out), filepath.Base(out), b); wErr != nil {
			return fmt.Errorf("写入 %s 失败：%w", out, wErr)
		}
	}

	if pErr := c.printJSON(res); pErr != nil {
		return pErr
	}
	return err
}
