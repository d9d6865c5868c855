package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/prepai/prepai/pkg/budget"
	"github.com/prepai/prepai/pkg/config"
	"github.com/prepai/prepai/pkg/tracker"
)

func newBudgetCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect per-user token budgets",
	}

	var userID string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show budget usage vs limits for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if !cfg.Budget.Enabled {
				fmt.Println("Budget enforcement is disabled.")
				return nil
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			statuses, err := budget.New(cfg.Budget.Policies, tr).Status(context.Background(), userID)
			if err != nil {
				return err
			}
			if len(statuses) == 0 {
				fmt.Println("No budget policies apply to this user.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "POLICY\tMODEL\tPERIOD\tMAX TOKENS\tUSED\tREMAINING")
			for _, s := range statuses {
				model := s.Policy.Model
				if model == "" {
					model = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
					s.Policy.UserID, model, s.Policy.Period, s.Policy.MaxTokens, s.Used, s.Remaining)
			}
			return w.Flush()
		},
	}
	statusCmd.Flags().StringVar(&userID, "user", "anonymous", "user ID to report on")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "prepai.yaml", "path to config file")
	cmd.AddCommand(statusCmd)
	return cmd
}
