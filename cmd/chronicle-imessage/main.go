package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Napageneral/chronicle-imessage/imessage"
	"github.com/Napageneral/chronicle-imessage/internal/config"
	"github.com/Napageneral/chronicle-imessage/internal/contacts"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "chronicle-imessage",
		Short: "Extract normalized communication events from a local iMessage database",
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := map[string]interface{}{
				"version": version,
				"go":      "1.23",
			}
			return printJSON(output)
		},
	}

	pathsCmd := &cobra.Command{
		Use:   "paths",
		Short: "Print the paths the connector reads",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := map[string]interface{}{
				"chat_db":          imessage.DefaultDBPath(),
				"address_book_dir": contacts.DefaultSourcesDir(),
				"config_path":      config.DefaultPath(),
			}
			return printJSON(output)
		},
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(pathsCmd)
	rootCmd.AddCommand(newExtractCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
