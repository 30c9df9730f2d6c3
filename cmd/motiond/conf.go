package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"plcmotion/pkg/config"
)

var mkconfForce bool

var mkconfCmd = &cobra.Command{
	Use:   "mkconf [path]",
	Short: "Write a default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.FileName
		if len(args) == 1 {
			path = args[0]
		}
		flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
		if mkconfForce {
			flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		}
		f, err := os.OpenFile(path, flags, 0o644)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		cfg := config.Default()
		if err := config.Write(f, &cfg); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

var confCmd = &cobra.Command{
	Use:     "conf",
	Aliases: []string{"printconf"},
	Short:   "Print the effective configuration",
	Long:    `Loads the configuration file over the defaults, validates it and prints the result.`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return config.Write(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	mkconfCmd.Flags().BoolVarP(&mkconfForce, "force", "f", false, "overwrite an existing file")
}
