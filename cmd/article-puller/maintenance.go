package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"article-puller/puller"

	"github.com/spf13/cobra"
)

var flagOlderThan string

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Forget dedup entries older than a given age",
	Long:  "prune deletes recent_links rows first seen before now minus --older-than. Category tables are untouched; a pruned link is ingested again if a feed still lists it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		age, err := parseAge(flagOlderThan)
		if err != nil {
			return &puller.ConfigError{Field: "older-than", Reason: err.Error()}
		}
		cfg, err := loadFileConfig(cmd)
		if err != nil {
			return err
		}
		store, err := puller.OpenStore(cfg.DB)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.PruneRecentLinks(cmd.Context(), time.Now().Add(-age))
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d links older than %s\n", n, flagOlderThan)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show article counts per category",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadFileConfig(cmd)
		if err != nil {
			return err
		}
		store, err := puller.OpenStore(cfg.DB)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		links, err := store.CountRecentLinks(ctx)
		if err != nil {
			return err
		}
		parts, err := store.Partitions(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Known links: %d\n", links)
		for _, p := range parts {
			n, err := store.CountArticles(ctx, p)
			if err != nil {
				return err
			}
			fmt.Printf("  %-30s %d\n", p, n)
		}
		return nil
	},
}

func init() {
	pruneCmd.Flags().StringVar(&flagOlderThan, "older-than", "", "Age cutoff, e.g. 365d or 720h.")
	_ = pruneCmd.MarkFlagRequired("older-than")
}

// parseAge accepts time.ParseDuration syntax plus a whole-day "Nd" form.
func parseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid age %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("age must be positive, got %q", s)
	}
	return d, nil
}
