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
	"text/tabwriter"
	"time"

	"github.com/sol-farm/realms-bot/database"
	"github.com/sol-farm/realms-bot/database/history"
	"github.com/spf13/cobra"
)

func proposalsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proposals",
		Short: "List the proposals in the local database",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := configFromCmd(cmd)
			if cfg.DatabasePath == "" {
				slog.Error("no database path configured")
				os.Exit(1)
			}
			db, err := database.New(database.WithDataDir(cfg.DatabasePath))
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			defer db.Close()
			records, err := db.ListProposals()
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tSTATE\tNOTIFIED\tVOTING SINCE\tLAST REMINDER\tNAME")
			for _, rec := range records {
				notified := "-"
				if rec.LastNotifiedState != nil {
					notified = rec.LastNotifiedState.String()
				}
				fmt.Fprintf(
					w,
					"%s\t%s\t%s\t%s\t%s\t%s\n",
					rec.Key,
					rec.State,
					notified,
					formatTime(rec.VotingStartedAt),
					formatTimePtr(rec.LastReminderAt),
					rec.Name,
				)
			}
			w.Flush()
		},
	}
	return cmd
}

func historyCommand() *cobra.Command {
	var limit int
	var proposal string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent notification deliveries",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := configFromCmd(cmd)
			store, err := history.New(history.WithDataDir(cfg.DatabasePath))
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			defer store.Close()
			var entries []history.Entry
			if proposal != "" {
				entries, err = store.ListForProposal(cmd.Context(), proposal, limit)
			} else {
				entries, err = store.List(cmd.Context(), limit)
			}
			if err != nil {
				slog.Error(err.Error())
				os.Exit(1)
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tKIND\tPROPOSAL\tSTATE\tCHANNEL\tDELIVERED\tERROR")
			for _, entry := range entries {
				fmt.Fprintf(
					w,
					"%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
					formatTime(entry.CreatedAt),
					entry.Kind,
					entry.ProposalKey,
					entry.State,
					entry.ChannelId,
					entry.Delivered,
					entry.Error,
				)
			}
			w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of entries")
	cmd.Flags().StringVarP(&proposal, "proposal", "p", "", "only show entries for this proposal")
	return cmd
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatTime(*t)
}
