// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sol-farm/realms-bot/internal/config"
	"github.com/spf13/cobra"
)

func configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	cmd.AddCommand(configNewCommand())
	cmd.AddCommand(configExportCommand())
	cmd.AddCommand(configFixCommand())
	return cmd
}

func configNewCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Write a config file with default values",
		Run: func(cmd *cobra.Command, args []string) {
			if _, err := os.Stat(path); err == nil {
				slog.Error(fmt.Sprintf("refusing to overwrite existing file %s", path))
				os.Exit(1)
			}
			if err := config.NewDefault().Save(path, false); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			fmt.Printf("wrote default config to %s\n", path)
		},
	}
	cmd.Flags().
		StringVarP(&path, "output", "o", config.DefaultConfigFile, "path of the new config file")
	return cmd
}

func configExportCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "export-as-json",
		Short: "Write the effective config as JSON",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := configFromCmd(cmd)
			if err := cfg.Save(path, true); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			fmt.Printf("wrote config to %s\n", path)
		},
	}
	cmd.Flags().
		StringVarP(&path, "output", "o", "realms-bot.json", "path of the JSON file")
	return cmd
}

func configFixCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fix",
		Short: "Derive missing realm keys and save them to the config file",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := configFromCmd(cmd)
			changed, err := cfg.Fix()
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			if !changed {
				fmt.Println("config is up to date")
				return
			}
			path := configFile
			if path == "" {
				path = config.DefaultConfigFile
			}
			if err := cfg.Save(path, false); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			fmt.Printf(
				"set governance key %s in %s\n",
				cfg.Realm.GovernanceKey,
				path,
			)
		},
	}
	return cmd
}
