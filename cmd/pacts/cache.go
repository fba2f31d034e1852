package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pacts/internal/memory"
)

var flagPurgePattern string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the selector cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop cached selectors, optionally limited to a URL pattern",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := memory.OpenStore(cfg.Cache.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		cache := memory.NewCache(store, cfg.Cache)
		n, err := cache.Purge(cmd.Context(), flagPurgePattern)
		if err != nil {
			return err
		}
		fmt.Printf("purged %d cached selectors\n", n)
		return nil
	},
}

var cacheBumpEpochCmd = &cobra.Command{
	Use:   "bump-epoch",
	Short: "Invalidate every cached selector without deleting heal history",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := memory.OpenStore(cfg.Cache.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		cache := memory.NewCache(store, cfg.Cache)
		epoch, err := cache.BumpEpoch(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("cache epoch is now %d\n", epoch)
		return nil
	},
}

func init() {
	cachePurgeCmd.Flags().StringVar(&flagPurgePattern, "pattern", "", "restrict the purge to one URL pattern")
	cacheCmd.AddCommand(cachePurgeCmd, cacheBumpEpochCmd)
}
