package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tOgg1/gatechat/internal/config"
)

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	var (
		path  string
		force bool
	)
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a config file with the default settings",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"config": "skip"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = config.DefaultPath()
			}
			if err := config.WriteFile(path, config.DefaultConfig(), force); err != nil {
				if errors.Is(err, config.ErrConfigExists) {
					return exitf(1, "%v (use --force to overwrite)", err)
				}
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
	initCmd.Flags().StringVar(&path, "path", "", "where to write (default: ~/.config/gatechat/config.yaml)")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	var secrets bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.jsonOutput {
				out := *g.cfg
				if !secrets && out.Gateway.Token != "" {
					out.Gateway.Token = "********"
				}
				return writeJSON(cmd.OutOrStdout(), out)
			}
			payload, err := config.Marshal(g.cfg, secrets)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(payload)
			return err
		},
	}
	showCmd.Flags().BoolVar(&secrets, "secrets", false, "include the gateway token")

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
