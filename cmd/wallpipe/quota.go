package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/quota"
)

type quotaView struct {
	State    domain.QuotaState `json:"state"`
	Decision quota.Decision    `json:"decision"`
	Limit    int               `json:"daily_limit"`
}

func (c *cli) quotaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "查看或调整使用者额度",
	}

	show := &cobra.Command{
		Use:   "show <consumer>",
		Short: "查看当前额度（不消耗）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			d, err := a.Quota.CheckAndAdvance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			st, err := a.Quota.State(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.printJSON(quotaView{State: st, Decision: d, Limit: a.Quota.DailyLimit()})
		},
	}

	var until string
	setTier := &cobra.Command{
		Use:   "set-tier <consumer> <free|unlimited>",
		Short: "设置使用者等级",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := domain.ParseTier(args[1])
			if err != nil {
				return err
			}
			var untilAt *time.Time
			if until != "" {
				t, err := time.Parse(time.RFC3339, until)
				if err != nil {
					return fmt.Errorf("--until 需要 RFC3339 时间：%w", err)
				}
				t = t.UTC()
				untilAt = &t
			}

			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			st, err := a.Quota.SetTier(cmd.Context(), args[0], tier, untilAt)
			if err != nil {
				return err
			}
			return c.printJSON(st)
		},
	}
	setTier.Flags().StringVar(&until, "until", "", "unlimited 的到期时间（RFC3339，空表示不过期）")

	cmd.AddCommand(show, setTier, c.banCmd("ban", "封禁使用者（不再允许任何获取）", true), c.banCmd("unban", "解除封禁", false))
	return cmd
}

func (c *cli) banCmd(use, short string, banned bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <consumer>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			st, err := a.Quota.SetBanned(cmd.Context(), args[0], banned)
			if err != nil {
				return err
			}
			return c.printJSON(st)
		},
	}
}
