package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/i2y/interpreter/provider"
	"github.com/i2y/interpreter/render"
	"github.com/i2y/interpreter/store"
)

func newHistoryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage saved conversations",
		Long:  "Saved conversations can be listed, shown, deleted, and continued with interpreter --resume <id>.",
	}
	cmd.AddCommand(
		newHistoryListCommand(a),
		newHistoryShowCommand(a),
		newHistoryDeleteCommand(a),
	)
	return cmd
}

func (a *app) openStore() (*store.Store, error) {
	return store.Open(a.settings.DBPath)
}

func newHistoryListCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List saved conversations, most recent first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			conversations, err := st.List(cmd.Context(), limit)
			if err != nil {
				return errors.Wrap(err, "failed to list conversations")
			}
			if len(conversations) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved conversations.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUpdated\tModel\tTitle")
			for _, c := range conversations {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					c.ShortID(),
					c.UpdatedAt.Format(time.RFC822),
					c.Model,
					titleOrEmpty(c.Title),
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Limit the number of conversations to show (0 for all)")
	return cmd
}

func titleOrEmpty(title string) string {
	if title == "" {
		return "[empty]"
	}
	return title
}

func newHistoryShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			conv, err := st.FindByPrefix(cmd.Context(), args[0])
			if err != nil {
				return errors.Wrap(err, "failed to find conversation")
			}
			messages, err := st.Messages(cmd.Context(), conv.ID)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), render.Markdown(transcript(messages), a.renderOptions()...))
			return nil
		},
	}
}

// transcript formats a conversation as markdown.
func transcript(messages []provider.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch {
		case m.Role == provider.RoleUser:
			fmt.Fprintf(&b, "**>** %s\n\n", m.Content)
		case m.FunctionCall != nil:
			fmt.Fprintf(&b, "`%s`\n\n```\n%s\n```\n\n", m.FunctionCall.Name, callCode(m.FunctionCall.Arguments))
		case m.Role == provider.RoleFunction:
			out := strings.TrimRight(m.Content, "\n")
			if out == "" {
				out = "(no output)"
			}
			fmt.Fprintf(&b, "```\n%s\n```\n\n", out)
		case m.Content != "":
			fmt.Fprintf(&b, "%s\n\n", m.Content)
		}
	}
	return b.String()
}

// callCode returns the code field of a call's arguments, or the raw text
// when there is none.
func callCode(arguments string) string {
	var args struct {
		Code *string `json:"code"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || args.Code == nil {
		return arguments
	}
	return *args.Code
}

func newHistoryDeleteCommand(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a saved conversation",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			conv, err := st.FindByPrefix(cmd.Context(), args[0])
			if err != nil {
				return errors.Wrap(err, "failed to find conversation")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "About to delete conversation %s:\n", conv.ShortID())
			fmt.Fprintf(out, "Updated: %s\n", conv.UpdatedAt.Format(time.RFC822))
			fmt.Fprintf(out, "Title: %s\n", titleOrEmpty(conv.Title))

			if !force {
				input := newLineInput(cmd.InOrStdin(), out, "")
				response, err := input.readPlain("\nAre you sure you want to delete this conversation? [y/N] ")
				if err != nil {
					return errors.Wrap(err, "failed to read input")
				}
				response = strings.ToLower(strings.TrimSpace(response))
				if response != "y" && response != "yes" {
					fmt.Fprintln(out, "Operation cancelled")
					return nil
				}
			}

			if err := st.Delete(cmd.Context(), conv.ID); err != nil {
				return errors.Wrap(err, "failed to delete conversation")
			}
			fmt.Fprintln(out, "Conversation deleted")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Delete without confirmation")
	return cmd
}
