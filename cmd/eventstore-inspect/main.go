package main

import (
	"context"
	"fmt"
	"math/big"
	"os"

	"github.com/goran-ethernal/eventstore"
	"github.com/goran-ethernal/eventstore/internal/intervals"
	"github.com/goran-ethernal/eventstore/internal/migrations"
	"github.com/goran-ethernal/eventstore/pkg/config"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "eventstore-inspect",
	Short:   "Inspect and maintain an event store database",
	Version: version,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the database at the configured path up to the current schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := migrations.RunMigrations(cfg.DB); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		fmt.Println("migrations applied")
		return nil
	},
}

var (
	inspectChainID   uint64
	inspectAddrs     []string
	inspectFrom      int64
	inspectTo        int64
	inspectUpToBlock int64
)

var inspectIntervalsCmd = &cobra.Command{
	Use:   "inspect-intervals",
	Short: "Print the stored indexed intervals for a log filter criteria",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := eventstore.Open(*cfg)
		if err != nil {
			return fmt.Errorf("opening event store: %w", err)
		}
		defer s.Close() //nolint:errcheck

		criteria, err := intervals.NewCriteria(inspectAddrs, nil)
		if err != nil {
			return fmt.Errorf("building criteria: %w", err)
		}
		covered, err := s.CoveredLogFilterRanges(inspectChainID, criteria, big.NewInt(inspectFrom), big.NewInt(inspectTo))
		if err != nil {
			return fmt.Errorf("querying covered ranges: %w", err)
		}
		if len(covered) == 0 {
			fmt.Println("no covered ranges in the requested window")
			return nil
		}
		for _, rng := range covered {
			fmt.Printf("[%s, %s]\n", rng.Start.String(), rng.End.String())
		}
		return nil
	},
}

var inspectFactoryCmd = &cobra.Command{
	Use:   "inspect-factory <factory-id>",
	Short: "Page through the discovered child addresses for a registered factory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := eventstore.Open(*cfg)
		if err != nil {
			return fmt.Errorf("opening event store: %w", err)
		}
		defer s.Close() //nolint:errcheck

		ctx := context.Background()
		pages := s.GetFactoryChildAddresses(inspectChainID, args[0], big.NewInt(inspectUpToBlock))
		total := 0
		for {
			addrs, more, err := pages.Next(ctx)
			if err != nil {
				return fmt.Errorf("paging child addresses: %w", err)
			}
			for _, a := range addrs {
				fmt.Println(a.Hex())
			}
			total += len(addrs)
			if !more {
				break
			}
		}
		fmt.Printf("%d child addresses\n", total)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "eventstore.yaml", "path to configuration file")

	inspectIntervalsCmd.Flags().Uint64Var(&inspectChainID, "chain-id", 1, "chain id")
	inspectIntervalsCmd.Flags().StringArrayVar(&inspectAddrs, "address", nil, "contract address to filter on (repeatable)")
	inspectIntervalsCmd.Flags().Int64Var(&inspectFrom, "from", 0, "start of the requested block range")
	inspectIntervalsCmd.Flags().Int64Var(&inspectTo, "to", 0, "end of the requested block range")

	inspectFactoryCmd.Flags().Uint64Var(&inspectChainID, "chain-id", 1, "chain id")
	inspectFactoryCmd.Flags().Int64Var(&inspectUpToBlock, "up-to-block", 0, "only return child addresses discovered at or before this block")

	rootCmd.AddCommand(migrateCmd, inspectIntervalsCmd, inspectFactoryCmd)
}

func loadConfig() (*config.EventStoreConfig, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
