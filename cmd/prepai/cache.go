package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/prepai/prepai/pkg/admin"
)

func newCacheCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the response cache of a running server",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := admin.New(addr)
			defer func() { _ = c.Close() }()

			status, err := c.CacheStats(context.Background())
			if err != nil {
				return err
			}
			if !status.Enabled {
				fmt.Println("Response cache is disabled.")
				return nil
			}
			s := status.Stats
			fmt.Printf("Entries:   %s / %s\nTTL:       %s\nHits:      %s\nMisses:    %s\nEvictions: %s\nExpired:   %s\n",
				humanize.Comma(int64(s.Entries)), humanize.Comma(int64(s.Capacity)), s.TTL,
				humanize.Comma(s.Hits), humanize.Comma(s.Misses), humanize.Comma(s.Evictions), humanize.Comma(s.Expired))
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := admin.New(addr)
			defer func() { _ = c.Close() }()

			n, err := c.ClearCache(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Cleared %s cache %s.\n", humanize.Comma(int64(n)), pluralEntries(n))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&addr, "addr", "http://localhost:8080", "base URL of the running server")
	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}

func pluralEntries(n int) string {
	if n == 1 {
		return "entry"
	}
	return "entries"
}
