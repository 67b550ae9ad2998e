package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/entrhq/browserpilot/pkg/config"
	"github.com/entrhq/browserpilot/pkg/llm"
)

func authCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider API keys in the OS keyring",
		Long: `Manage provider API keys in the OS keyring.

Keys in the keyring are used when neither the environment nor the config
file supplies one.`,
	}

	cmd.AddCommand(authSetCommand())
	cmd.AddCommand(authDeleteCommand())
	cmd.AddCommand(authStatusCommand(flags))

	return cmd
}

func authSetCommand() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store an API key for a provider",
		Long: `Store an API key for a provider. Without --key the key is read from
the first line of stdin.

Example:
  echo "$GEMINI_API_KEY" | browserpilot auth set gemini`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := llm.ParseID(args[0])
			if err != nil {
				return err
			}
			key = strings.TrimSpace(key)
			if key == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read key from stdin: %w", err)
				}
				key = strings.TrimSpace(line)
			}
			if key == "" {
				return errors.New("api key cannot be empty")
			}

			if err := config.NewKeyringStore(config.KeyringService).SetKey(string(id), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved API key for %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "API key (optional, otherwise read from stdin)")

	return cmd
}

func authDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <provider>",
		Short: "Remove the stored API key for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := llm.ParseID(args[0])
			if err != nil {
				return err
			}
			err = config.NewKeyringStore(config.KeyringService).DeleteKey(string(id))
			if errors.Is(err, config.ErrKeyNotFound) {
				fmt.Fprintf(cmd.OutOrStdout(), "No API key stored for %s\n", id)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted API key for %s\n", id)
			return nil
		},
	}
}

func authStatusCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which providers have usable credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}
			resolver := config.NewResolver(cfg, config.NewKeyringStore(config.KeyringService))
			for _, id := range []llm.ID{llm.Gemini, llm.OpenAI, llm.Anthropic} {
				resolved, err := resolver.Resolve(id, "", "")
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s %-10s %s\n", gray("○"), id, gray("no api key"))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %-10s %s\n", green("●"), id, resolved.Model)
			}
			return nil
		},
	}
}
