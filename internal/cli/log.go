package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tOgg1/gatechat/internal/session"
)

func newLogCmd(g *globals) *cobra.Command {
	var (
		limit    int
		language string
		all      bool
	)
	cmd := &cobra.Command{
		Use:   "log <chat-id>",
		Short: "Print the recent messages of a chat",
		Long: `Print the newest messages of a chat. The window starts small and grows in
batches, exactly as it does when scrolling up in the chat view.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd.Context(), g.cfg)
			defer cancel()

			rt, err := newRuntime(ctx, g.cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			sess, err := rt.openSession(ctx, args[0])
			if err != nil {
				return err
			}
			defer sess.Close()

			for all || sess.Snapshot().VisibleCount < limit {
				if !sess.Expand() {
					break
				}
			}
			if cmd.Flags().Changed("lang") {
				if err := sess.SetLanguage(ctx, language); err != nil {
					return err
				}
			}

			snap := sess.Snapshot()
			visible := snap.Visible
			if !all && limit > 0 && len(visible) > limit {
				visible = visible[len(visible)-limit:]
			}
			if g.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), visible)
			}
			return writeMessageTable(cmd.OutOrStdout(), visible)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at least this many messages (default: the initial window)")
	cmd.Flags().BoolVar(&all, "all", false, "show the whole log")
	cmd.Flags().StringVar(&language, "lang", "", "translate bodies into this language")
	return cmd
}

func writeMessageTable(out io.Writer, msgs []session.MessageView) error {
	rows := make([][]string, 0, len(msgs))
	for _, m := range msgs {
		from := "them"
		if m.FromMe() {
			from = "me"
		}
		when := ""
		if !m.Timestamp.IsZero() {
			when = humanize.Time(m.Timestamp)
		}
		star := ""
		if m.Starred {
			star = "*"
		}
		body := strings.ReplaceAll(m.DisplayBody, "\n", " ")
		if m.Translated {
			body += " (translated)"
		}
		rows = append(rows, []string{m.ID, when, from, string(m.RenderKind), string(m.Status), star, truncateCell(body, 60)})
	}
	return writeTable(out, []string{"ID", "WHEN", "FROM", "KIND", "STATUS", "STAR", "BODY"}, rows)
}

func writeJSON(out io.Writer, v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(out, string(payload))
	return err
}
