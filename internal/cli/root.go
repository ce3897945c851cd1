// Package cli wires the gatechat commands.
package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/gatechat/internal/config"
	"github.com/tOgg1/gatechat/internal/gateway/gatewaytest"
	"github.com/tOgg1/gatechat/internal/logging"
)

// globals holds the persistent flags and the configuration they resolve to.
type globals struct {
	configFile string
	logLevel   string
	jsonOutput bool
	demo       bool

	cfg  *config.Config
	fake *gatewaytest.Server
}

// Execute runs the root command.
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:           "gatechat [chat-id]",
		Short:         "Terminal client for a messaging gateway",
		Long:          "gatechat opens a chat from a messaging gateway in a full-screen terminal view.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipsConfig(cmd) {
				return nil
			}
			return g.load(cmd.ErrOrStderr())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if g.fake != nil {
				g.fake.Close()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID := ""
			if len(args) > 0 {
				chatID = args[0]
			}
			return runTUI(cmd, g, chatID)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&g.configFile, "config", "", "config file (default: ~/.config/gatechat/config.yaml)")
	flags.StringVar(&g.logLevel, "log-level", "", "override logging.level")
	flags.BoolVar(&g.jsonOutput, "json", false, "emit JSON instead of tables")
	flags.BoolVar(&g.demo, "demo", false, "run against a built-in fake gateway seeded with sample chats")

	cmd.AddCommand(
		newChatsCmd(g),
		newLogCmd(g),
		newSendCmd(g),
		newStarCmd(g),
		newEditCmd(g),
		newTranslateCmd(g),
		newServeMetricsCmd(g),
		newConfigCmd(g),
	)
	return cmd
}

// skipsConfig reports whether cmd must work without a loadable config.
func skipsConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["config"] == "skip" {
			return true
		}
	}
	return false
}

func (g *globals) load(stderr io.Writer) error {
	loader := config.NewLoader()
	if g.configFile != "" {
		loader.SetConfigFile(g.configFile)
	}
	if g.demo {
		g.fake = newDemoGateway()
		loader.Set("gateway.base_url", g.fake.URL())
		loader.Set("gateway.token", g.fake.Token)
	}
	if strings.TrimSpace(g.logLevel) != "" {
		loader.Set("logging.level", g.logLevel)
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	g.cfg = cfg

	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       stderr,
		EnableCaller: cfg.Logging.EnableCaller,
	})
	if used := loader.ConfigFileUsed(); used != "" {
		log := logging.Component("cli")
		log.Debug().Str("path", used).Msg("config loaded")
	}
	return nil
}

// usageError marks an invalid invocation and prints the usage line.
func usageError(cmd *cobra.Command, format string, args ...any) error {
	return fmt.Errorf("%s\n\nUsage: %s", fmt.Sprintf(format, args...), cmd.UseLine())
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return 1
}

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitf(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}
