package main

import (
	"errors"
	"fmt"
	"os"

	"aggregator/aggregator/chat"
	"aggregator/aggregator/client"
	"aggregator/aggregator/utils/color"
	httputils "aggregator/aggregator/utils/http"
	"aggregator/aggregator/utils/jsonutils"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "Print a session's stored conversation",
	Long: `Print the conversation stored on the server for a session.

Without an argument the session kept in the state file is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := ""
		if len(args) == 1 {
			sessionID = args[0]
		} else {
			store, err := chat.OpenFileSessionStore(statePath)
			if err != nil {
				return err
			}
			if sessionID, err = store.Load(cmd.Context()); err != nil {
				return err
			}
		}
		if sessionID == "" {
			return errors.New("no session yet; start one with the chat command")
		}

		stored, err := client.New(serverURL).History(cmd.Context(), sessionID)
		if err != nil {
			return err
		}
		if asJSON {
			fmt.Fprintln(cmd.OutOrStdout(), jsonutils.ToJSON(stored))
			return nil
		}
		msgs := make([]chat.Message, 0, len(stored))
		for _, m := range stored {
			msgs = append(msgs, chat.Message{Role: m.Role, Content: m.Content})
		}
		fmt.Fprintln(cmd.OutOrStdout(), chat.Transcript(msgs, chat.DefaultLabels))
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recent sessions (needs --token)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if authToken == "" {
			return errors.New("--token or AGGREGATOR_TOKEN is required")
		}
		sessions, err := client.New(serverURL).WithToken(authToken).Sessions(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON {
			fmt.Fprintln(out, jsonutils.ToJSON(sessions))
			return nil
		}
		for _, s := range sessions {
			fmt.Fprintf(out, "%s  %s  %3d msgs  %s\n",
				color.ColorPrompt(s.SessionID), s.LastActivity, s.MessageCount, color.ColorModel(s.Model))
			fmt.Fprintf(out, "    %s: %s\n", s.LastMessageRole, s.LastMessage)
		}
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Exchange admin credentials for a token",
	Long: `Log in as an administrator and print the token.

The password is read from AGGREGATOR_PASSWORD.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password := os.Getenv("AGGREGATOR_PASSWORD")
		if password == "" {
			return errors.New("AGGREGATOR_PASSWORD is not set")
		}
		resp, err := client.New(serverURL).Login(cmd.Context(), args[0], password)
		if err != nil {
			var se *httputils.StatusError
			if errors.As(err, &se) && se.Code == 401 {
				return errors.New("invalid email or password")
			}
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Token)
		fmt.Fprintln(cmd.ErrOrStderr(), color.ColorInfo("expires "+resp.ExpiresAt.Local().Format("2006-01-02 15:04")))
		return nil
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the server offers",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := client.New(serverURL).Models(cmd.Context())
		if err != nil {
			return err
		}
		for _, m := range resp.Models {
			if m == resp.Default {
				fmt.Fprintln(cmd.OutOrStdout(), color.ColorModel(m+" (default)"))
				continue
			}
			fmt.Fprintln(cmd.OutOrStdout(), m)
		}
		return nil
	},
}
