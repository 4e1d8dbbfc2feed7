package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"jobforge/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or initialize the orchestrand configuration",
	}
	configCmd.Annotations = map[string]string{"skipConfigLoad": "true"}

	configCmd.AddCommand(newConfigPathCommand())
	configCmd.AddCommand(newConfigInitCommand())
	return configCmd
}

func newConfigPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path that would be loaded",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newConfigInitCommand() *cobra.Command {
	var pathFlag string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(pathFlag)
			if path == "" {
				var err error
				path, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}
			if err := config.CreateSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote sample configuration to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&pathFlag, "path", "", "Destination path for the sample configuration")
	return cmd
}
