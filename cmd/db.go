package cmd

import (
	"fmt"
	"strconv"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	cmdUtils "github.com/paymenthub/payment-engine-backend/cmd/utils"
	"github.com/paymenthub/payment-engine-backend/db"
	"github.com/paymenthub/payment-engine-backend/internal/log"
)

type DatabaseCommand struct{}

func (c *DatabaseCommand) Command(globalOptions *cmdUtils.GlobalOptionsType) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:              "db",
		Short:            "Database related commands",
		PersistentPreRun: cmdUtils.DefaultPersistentPreRun,
		Run: func(cmd *cobra.Command, _ []string) {
			err := cmd.Help()
			if err != nil {
				log.Fatalf("Error calling help command: %s", err.Error())
			}
		},
	}

	migrateCmd := &cobra.Command{
		Use:              "migrate",
		Short:            "Apply schema migrations to the payment engine database",
		PersistentPreRun: cmdUtils.DefaultPersistentPreRun,
		Run: func(cmd *cobra.Command, _ []string) {
			err := cmd.Help()
			if err != nil {
				log.Fatalf("Error calling help command: %s", err.Error())
			}
		},
	}
	migrateCmd.AddCommand(c.migrateDirectionCmd(globalOptions, migrate.Up, "up", "Migrates the database up"))
	migrateCmd.AddCommand(c.migrateDirectionCmd(globalOptions, migrate.Down, "down", "Migrates the database down"))
	dbCmd.AddCommand(migrateCmd)

	return dbCmd
}

func (c *DatabaseCommand) migrateDirectionCmd(globalOptions *cmdUtils.GlobalOptionsType, dir migrate.MigrationDirection, use, short string) *cobra.Command {
	return &cobra.Command{
		Use:              fmt.Sprintf("%s [count]", use),
		Short:            fmt.Sprintf("%s [count] migrations. Without a count, all pending migrations are applied.", short),
		Args:             cobra.MaximumNArgs(1),
		PersistentPreRun: cmdUtils.DefaultPersistentPreRun,
		RunE: func(cmd *cobra.Command, args []string) error {
			count := 0
			if len(args) > 0 {
				var err error
				count, err = strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid [count] argument %q: %w", args[0], err)
				}
			}

			numApplied, err := db.Migrate(globalOptions.DatabaseURL, dir, count)
			if err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			log.Ctx(cmd.Context()).Infof("Successfully applied %d migrations.", numApplied)
			return nil
		},
	}
}
