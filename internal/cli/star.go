package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tOgg1/gatechat/internal/models"
	"github.com/tOgg1/gatechat/internal/session"
)

type mutationOutput struct {
	ChatID    string              `json:"chatId"`
	MessageID string              `json:"messageId"`
	Status    models.IntentStatus `json:"status"`
	Error     string              `json:"error,omitempty"`
	Starred   *bool               `json:"starred,omitempty"`
	Body      string              `json:"body,omitempty"`
}

func newStarCmd(g *globals) *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   "star <chat-id> <message-id>",
		Short: "Star or unstar a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, messageID := args[0], args[1]
			ctx, cancel := commandContext(cmd.Context(), g.cfg)
			defer cancel()
			rt, err := newRuntime(ctx, g.cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			sess, err := rt.openSession(ctx, chatID)
			if err != nil {
				return err
			}
			defer sess.Close()

			view, ok := sess.Message(messageID)
			if !ok {
				return exitf(1, "%v: %s", session.ErrUnknownMessage, messageID)
			}
			want := !off
			out := mutationOutput{ChatID: chatID, MessageID: messageID, Status: models.IntentConfirmed}
			if view.Starred != want {
				intent, err := sess.ToggleStar(ctx, messageID)
				if err != nil {
					return err
				}
				status, err := intent.Wait(ctx)
				if err != nil {
					return err
				}
				out.Status = status
				if status != models.IntentConfirmed {
					out.Error = fmt.Sprint(intent.Err())
				}
			}
			final, _ := sess.Message(messageID)
			out.Starred = &final.Starred
			return printMutation(cmd, g, out)
		},
	}
	cmd.Flags().BoolVar(&off, "off", false, "unstar instead")
	return cmd
}

func newEditCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <chat-id> <message-id> <text>",
		Short: "Edit the text of a message you sent",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, messageID := args[0], args[1]
			ctx, cancel := commandContext(cmd.Context(), g.cfg)
			defer cancel()
			rt, err := newRuntime(ctx, g.cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			sess, err := rt.openSession(ctx, chatID)
			if err != nil {
				return err
			}
			defer sess.Close()

			intent, err := sess.Edit(ctx, messageID, args[2])
			if err != nil {
				return err
			}
			status, err := intent.Wait(ctx)
			if err != nil {
				return err
			}
			out := mutationOutput{ChatID: chatID, MessageID: messageID, Status: status}
			if status != models.IntentConfirmed {
				out.Error = fmt.Sprint(intent.Err())
			}
			final, _ := sess.Message(messageID)
			out.Body = final.Body
			return printMutation(cmd, g, out)
		},
	}
}

func printMutation(cmd *cobra.Command, g *globals, out mutationOutput) error {
	if g.jsonOutput {
		if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", out.MessageID, out.Status)
	}
	if out.Status != models.IntentConfirmed {
		return exitf(1, "%s rolled back: %s", out.MessageID, out.Error)
	}
	return nil
}
