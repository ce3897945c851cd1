package cli

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tOgg1/gatechat/internal/models"
)

func newSendCmd(g *globals) *cobra.Command {
	var (
		replyTo string
		file    string
	)
	cmd := &cobra.Command{
		Use:   "send <chat-id> [text]",
		Short: "Send a text or an attachment",
		Long: `Send text to a chat. Without a text argument the body is read from stdin
when it is piped. --file uploads an attachment instead.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := ""
			if len(args) > 1 {
				text = args[1]
			}
			file = strings.TrimSpace(file)
			if file != "" && strings.TrimSpace(text) != "" {
				return usageError(cmd, "provide either a text argument or --file, not both")
			}
			if file == "" && strings.TrimSpace(text) == "" {
				piped, err := readStdinIfPiped(cmd.InOrStdin())
				if err != nil {
					return exitf(1, "read stdin: %v", err)
				}
				text = piped
			}
			if file == "" && strings.TrimSpace(text) == "" {
				return usageError(cmd, "message body is required")
			}

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

			if replyTo != "" {
				if err := sess.SetReplyTo(replyTo); err != nil {
					return err
				}
			}

			var sent models.Message
			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return exitf(1, "open attachment: %v", err)
				}
				defer f.Close()
				sent, err = sess.SendMedia(ctx, filepath.Base(file), f)
				if err != nil {
					return err
				}
			} else {
				sent, err = sess.Send(ctx, strings.TrimRight(text, "\n"))
				if err != nil {
					return err
				}
			}

			if g.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), sent)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), sent.ID+"\n")
			return err
		},
	}
	cmd.Flags().StringVar(&replyTo, "reply-to", "", "message id to reply to")
	cmd.Flags().StringVarP(&file, "file", "f", "", "attachment to upload")
	return cmd
}

// readStdinIfPiped returns stdin when it is not a terminal.
func readStdinIfPiped(in io.Reader) (string, error) {
	if f, ok := in.(*os.File); ok {
		info, err := f.Stat()
		if err != nil {
			return "", err
		}
		if info.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
