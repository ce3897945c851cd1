package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/tOgg1/gatechat/internal/chattui"
	"github.com/tOgg1/gatechat/internal/logging"
)

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func runTUI(cmd *cobra.Command, g *globals, chatID string) error {
	if !hasTTY() {
		return exitf(2, "the chat view needs an interactive terminal; see `gatechat --help` for scriptable subcommands")
	}
	cfg := g.cfg

	// Logs go to a file so they do not tear the screen.
	logFile, err := logging.OpenFile(cfg.LogPath())
	if err != nil {
		return err
	}
	defer logFile.Close()
	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       "json",
		Output:       logFile,
		EnableCaller: cfg.Logging.EnableCaller,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if chatID == "" {
		chatID = rt.prefs.LastChat()
	}
	if chatID == "" {
		chats, err := rt.client.Chats(ctx)
		if err != nil {
			return err
		}
		if len(chats) == 0 {
			return exitf(1, "no chats available; pass a chat id")
		}
		chatID = chats[0]
	}

	bridge := chattui.NewBridge()
	sess := rt.newSession(bridge.Notify, cfg.TUI.BottomThreshold)
	defer sess.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Enabled {
		group.Go(func() error {
			return rt.metrics.Serve(gctx, cfg.Metrics.Addr)
		})
	}
	group.Go(func() error {
		defer cancel()
		theme := cfg.TUI.Theme
		if p := rt.prefs.Preferences(); p.Theme != "" {
			theme = p.Theme
		}
		return chattui.Run(gctx, sess, bridge, chattui.Config{
			ChatID:         chatID,
			PollInterval:   cfg.TUI.PollInterval,
			Theme:          theme,
			ShowTimestamps: cfg.TUI.ShowTimestamps,
			RelativeTime:   cfg.TUI.RelativeTime,
		})
	})
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
