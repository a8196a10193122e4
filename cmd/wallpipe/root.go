package main

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/wallpipe/internal/app"
	"github.com/John-Robertt/wallpipe/internal/config"
	"github.com/John-Robertt/wallpipe/internal/infra/logx"
)

// cli 持有全局参数与输出流；测试通过 stores 注入跨命令共享的存储。
type cli struct {
	configFile string
	debug      bool

	stdout io.Writer
	stderr io.Writer
	stores app.Stores
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{stdout: stdout, stderr: stderr}
}

func (c *cli) root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "wallpipe",
		Short:         "壁纸获取流水线：多来源获取、校验、额度与定时投递",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(c.stdout)
	cmd.SetErr(c.stderr)

	cmd.PersistentFlags().StringVar(&c.configFile, "config", "", "配置文件路径（默认在当前目录查找 wallpipe.yaml 等）")
	cmd.PersistentFlags().BoolVar(&c.debug, "debug", false, "输出 debug 日志")

	cmd.AddCommand(
		c.serveCmd(),
		c.fetchCmd(),
		c.scheduleCmd(),
		c.quotaCmd(),
	)
	return cmd
}

func (c *cli) loadConfig() (config.EffectiveConfig, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return config.EffectiveConfig{}, err
	}
	cfg, err := config.Load(config.LoadOptions{File: c.configFile, Dir: cwd})
	if err != nil {
		return config.EffectiveConfig{}, err
	}
	if c.debug {
		cfg.LogLevel = "debug"
		cfg.LogDevelopment = true
	}
	return cfg, nil
}

// openApp 加载配置并构造对象图；日志只写 stderr，stdout 留给 JSON 输出。
func (c *cli) openApp(ctx context.Context) (*app.App, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logx.New(logx.Config{
		Level:       cfg.LogLevel,
		Development: cfg.LogDevelopment,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, log, c.stores)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
