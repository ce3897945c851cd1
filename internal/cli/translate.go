package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newTranslateCmd(g *globals) *cobra.Command {
	var (
		target string
		source string
	)
	cmd := &cobra.Command{
		Use:   "translate <text>",
		Short: "Translate a text through the gateway",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(target) == "" {
				return usageError(cmd, "--to is required")
			}
			if source == "" {
				source = g.cfg.Session.SourceLanguage
			}
			ctx, cancel := commandContext(cmd.Context(), g.cfg)
			defer cancel()
			rt, err := newRuntime(ctx, g.cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			text := strings.Join(args, " ")
			translated, err := rt.client.Translate(ctx, text, target, source)
			if err != nil {
				return err
			}
			if g.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"text":       text,
					"translated": translated,
					"target":     target,
					"source":     source,
				})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), translated)
			return err
		},
	}
	cmd.Flags().StringVar(&target, "to", "", "target language code")
	cmd.Flags().StringVar(&source, "from", "", "source language code (default: session.source_language)")
	return cmd
}
