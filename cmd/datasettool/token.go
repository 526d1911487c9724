package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/greg-hellings/datasettool/pkg/config"
	"github.com/greg-hellings/datasettool/pkg/state"
)

var flagCredentialKey string

func newTokenCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "token",
		Short: "Manage stored backend tokens",
		Long: strings.TrimSpace(`
Store bearer tokens in the user config directory. A stored token is used
when neither DATASET_TOOL_TOKEN nor backend.token is set; backend.credentialKey
selects which one (default "backend").`),
	}
	c.PersistentFlags().StringVar(&flagCredentialKey, "key", state.BackendCredentialKey, "Credential key")

	c.AddCommand(&cobra.Command{
		Use:   "set [token]",
		Short: "Store a token (read from stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runTokenSet,
	})
	c.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove a stored token",
		Args:  cobra.NoArgs,
		RunE:  runTokenDelete,
	})
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored tokens (redacted)",
		Args:  cobra.NoArgs,
		RunE:  runTokenList,
	})
	return c
}

func runTokenSet(cmd *cobra.Command, args []string) error {
	store, err := state.NewFileCredentialStore("")
	if err != nil {
		return err
	}
	var token string
	if len(args) == 1 {
		token = args[0]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read token: %w", err)
		}
		token = line
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token is empty")
	}
	if err := store.SetToken(flagCredentialKey, token); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored token for %q (%s).\n", flagCredentialKey, state.RedactToken(token))
	return nil
}

func runTokenDelete(cmd *cobra.Command, args []string) error {
	store, err := state.NewFileCredentialStore("")
	if err != nil {
		return err
	}
	if err := store.DeleteToken(flagCredentialKey); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed token for %q.\n", flagCredentialKey)
	return nil
}

func runTokenList(cmd *cobra.Command, args []string) error {
	store, err := state.NewFileCredentialStore("")
	if err != nil {
		return err
	}
	keys, err := store.ListKeys()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(keys) == 0 {
		fmt.Fprintln(w, "No stored tokens.")
		return nil
	}
	for _, k := range keys {
		tok, err := store.GetToken(k)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\n", k, state.RedactToken(tok))
	}
	return nil
}

func newStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Print the persisted session state",
		Long: strings.TrimSpace(`
Print the session state as YAML: last export and selection, recent exports
and the ratio percentages the ratio command falls back to. The path comes
from session.statePath when the configuration file loads.`),
		Args: cobra.NoArgs,
		RunE: runState,
	}
}

func runState(cmd *cobra.Command, args []string) error {
	path := ""
	if cfg, err := config.LoadFromFile(flagConfig); err == nil {
		path = cfg.Session.StatePath
	} else {
		slog.Debug("Using default session state path", "error", err)
	}
	st, err := state.LoadSessionState(path)
	if err != nil {
		return err
	}
	_, err = st.WriteTo(cmd.OutOrStdout())
	return err
}
