package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeMetricsCmd(g *globals) *cobra.Command {
	var addr string
	var chatID string
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Expose prometheus metrics while following a chat",
		Long: `Open a chat headlessly, refresh it every tui.poll_interval and serve
/metrics and /healthz until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = g.cfg.Metrics.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, g.cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			if chatID != "" {
				sess, err := rt.openSession(ctx, chatID)
				if err != nil {
					return err
				}
				defer sess.Close()
				go follow(ctx, sess, g.cfg.TUI.PollInterval)
			}

			return rt.metrics.Serve(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: metrics.addr)")
	cmd.Flags().StringVar(&chatID, "chat", "", "chat to follow while serving")
	return cmd
}
