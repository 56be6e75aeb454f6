package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/purl/check"
	"github.com/hazyhaar/purl/notify"
)

func (a *app) checkCmd() *cobra.Command {
	var (
		mode   string
		strict bool
		delay  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify pages against the registry and probe target URLs",
		Long: `Local mode asserts that every registered page embeds its URL. Remote
mode GETs every distinct URL one at a time. Failures are printed, logged
and sent to the configured webhook in one message. Failures do not
change the exit status.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			modes, err := check.ParseModes(mode)
			if err != nil {
				return usageError("purl check [--mode local|remote|both] [--strict] [--delay 1s]")
			}
			if !cmd.Flags().Changed("delay") {
				delay = a.cfg.Check.Delay
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}

			c := check.New(a.cfg.SiteDir,
				check.WithDelay(delay),
				check.WithStrict(strict),
				check.WithRemote(check.RemoteConfig{
					Timeout:      a.cfg.Check.Timeout,
					MaxRedirects: a.cfg.Check.MaxRedirects,
					UserAgent:    a.cfg.Check.UserAgent,
					BlockPrivate: a.cfg.Check.BlockPrivate,
				}),
				check.WithNotifier(notify.NewWebhook(a.cfg.Notify.WebhookURL,
					notify.WithTimeout(a.cfg.Notify.Timeout),
					notify.WithLogger(a.logger))),
				check.WithLogger(a.logger))

			reports, err := c.Run(cmd.Context(), store, modes...)
			for _, rep := range reports {
				fmt.Fprintf(a.out, "%s: checked %d, failed %d\n", rep.Mode, rep.Checked, len(rep.Failures))
				for _, f := range rep.Failures {
					if f.File != "" {
						fmt.Fprintf(a.out, "  %s %s: %s\n", f.File, f.URL, f.Reason)
					} else {
						fmt.Fprintf(a.out, "  %s: %s\n", f.URL, f.Reason)
					}
				}
			}
			return err
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "both", "local, remote or both")
	cmd.Flags().BoolVar(&strict, "strict", false, "also parse pages and require both redirect targets to match")
	cmd.Flags().DurationVar(&delay, "delay", check.DefaultDelay, "pause between remote requests")
	return cmd
}
