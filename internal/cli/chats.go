package cli

import (
	"sort"
	"strconv"

	"github.com/spf13/cobra"
)

type chatSummary struct {
	ChatID       string `json:"chatId"`
	LocalStarred int    `json:"localStarred"`
	LastOpened   bool   `json:"lastOpened"`
	Language     string `json:"language,omitempty"`
	HasDraft     bool   `json:"hasDraft"`
}

func newChatsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List the chats known to the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd.Context(), g.cfg)
			defer cancel()

			rt, err := newRuntime(ctx, g.cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			ids, err := rt.client.Chats(ctx)
			if err != nil {
				// The starred cache still knows every chat starred from here.
				cached, cacheErr := rt.store.Chats(ctx)
				if cacheErr != nil || len(cached) == 0 {
					return err
				}
				rt.logger.Warn().Err(err).Msg("gateway chat list unavailable, using local cache")
				ids = cached
			}
			sort.Strings(ids)

			state := rt.prefs.Snapshot()
			summaries := make([]chatSummary, 0, len(ids))
			for _, id := range ids {
				starred, err := rt.store.Starred(ctx, id)
				if err != nil {
					return err
				}
				draft, ok := state.Drafts[id]
				summaries = append(summaries, chatSummary{
					ChatID:       id,
					LocalStarred: len(starred),
					LastOpened:   state.LastChat == id,
					Language:     state.Languages[id],
					HasDraft:     ok && draft.Body != "",
				})
			}

			if g.jsonOutput {
				return writeJSON(cmd.OutOrStdout(), summaries)
			}
			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				rows = append(rows, []string{
					s.ChatID,
					strconv.Itoa(s.LocalStarred),
					s.Language,
					formatYesNo(s.HasDraft),
					formatYesNo(s.LastOpened),
				})
			}
			return writeTable(cmd.OutOrStdout(), []string{"CHAT", "STARRED", "LANG", "DRAFT", "LAST"}, rows)
		},
	}
}
