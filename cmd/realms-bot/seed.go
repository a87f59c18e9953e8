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

	"github.com/sol-farm/realms-bot/internal/daemon"
	"github.com/spf13/cobra"
)

func seedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Record all current proposals as notified without sending anything",
		Long: "Fetches the current proposals of the governance and stores them as " +
			"already notified. Run this once before the first start to avoid " +
			"announcing proposals that were voted on in the past.",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := configFromCmd(cmd)
			logger := commonRun(cfg)
			if err := cfg.Validate(); err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			bot, err := daemon.New(cfg, logger)
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			result, seedErr := bot.Seed(cmd.Context())
			if err := bot.Stop(); err != nil {
				slog.Error(err.Error())
			}
			if seedErr != nil {
				slog.Error(fmt.Sprintf("failed to seed proposals: %s", seedErr))
				os.Exit(1)
			}
			logger.Info(
				fmt.Sprintf(
					"seeded %d proposals (%d voting, %d skipped)",
					result.Proposals,
					result.Voting,
					result.Skipped,
				),
				"component", programName,
			)
		},
	}
	return cmd
}
