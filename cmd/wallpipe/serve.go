package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/wallpipe/internal/api"
	"github.com/John-Robertt/wallpipe/internal/infra/logx"
)

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动定时投递与管理 HTTP 接口",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "监听地址（覆盖配置 listen_addr）")
	return cmd
}

func (c *cli) serve(ctx context.Context, addr string) error {
	a, err := c.openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	defer func() { _ = a.Log.Sync() }()

	if addr == "" {
		addr = a.Config.ListenAddr
	}

	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}
	defer a.Scheduler.Stop()

	if !c.debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Requester: a,
		Scheduler: a.Scheduler,
		Schedules: a.Schedules,
		Quota:     a.Quota,
		Gatherer:  a.Prometheus,
		Log:       a.Log.With(logx.String("component", "http")),
	})
	return api.Serve(ctx, addr, router, a.Log)
}
