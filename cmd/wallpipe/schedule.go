package main

import (
	"github.com/spf13/cobra"

	"github.com/John-Robertt/wallpipe/internal/domain"
)

func (c *cli) scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "管理定时投递计划（需要持久化存储才能跨进程生效）",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <destination> <hourly|daily> [category]",
			Short: "注册计划；同一目的地与间隔的旧计划会被替换",
			Args:  cobra.RangeArgs(2, 3),
			RunE: func(cmd *cobra.Command, args []string) error {
				interval, err := domain.ParseInterval(args[1])
				if err != nil {
					return err
				}
				raw := ""
				if len(args) == 3 {
					raw = args[2]
				}
				a, err := c.openApp(cmd.Context())
				if err != nil {
					return err
				}
				defer func() { _ = a.Close() }()

				e, _, err := a.Schedules.Register(cmd.Context(), args[0], interval, raw)
				if err != nil {
					return err
				}
				return c.printJSON(e)
			},
		},
		&cobra.Command{
			Use:   "remove <destination> <hourly|daily>",
			Short: "停用计划",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				interval, err := domain.ParseInterval(args[1])
				if err != nil {
					return err
				}
				a, err := c.openApp(cmd.Context())
				if err != nil {
					return err
				}
				defer func() { _ = a.Close() }()

				e, err := a.Schedules.Deactivate(cmd.Context(), args[0], interval)
				if err != nil {
					return err
				}
				return c.printJSON(e)
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "列出 active 计划",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := c.openApp(cmd.Context())
				if err != nil {
					return err
				}
				defer func() { _ = a.Close() }()

				entries, err := a.Schedules.ListActive(cmd.Context())
				if err != nil {
					return err
				}
				if entries == nil {
					entries = []domain.ScheduleEntry{}
				}
				return c.printJSON(entries)
			},
		},
	)
	return cmd
}
