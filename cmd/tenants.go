package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	cmdUtils "github.com/paymenthub/payment-engine-backend/cmd/utils"
	"github.com/paymenthub/payment-engine-backend/internal/db"
	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
	"github.com/paymenthub/payment-engine-backend/pkg/schema"
)

// TenantsCommand manages the tenants of the engine: onboarding, status
// changes and configuration versions.
type TenantsCommand struct{}

func (c *TenantsCommand) Command() *cobra.Command {
	tenantsCmd := &cobra.Command{
		Use:              "tenants",
		Short:            "Tenant management commands",
		PersistentPreRun: cmdUtils.DefaultPersistentPreRun,
		Run: func(cmd *cobra.Command, _ []string) {
			err := cmd.Help()
			if err != nil {
				log.Fatalf("Error calling help command: %s", err.Error())
			}
		},
	}

	tenantsCmd.AddCommand(c.addCmd())
	tenantsCmd.AddCommand(c.listCmd())
	tenantsCmd.AddCommand(c.setStatusCmd())
	tenantsCmd.AddCommand(c.setDefaultCmd())
	tenantsCmd.AddCommand(c.setConfigCmd())

	return tenantsCmd
}

// withManager opens a connection pool for the lifetime of one CLI invocation.
func (c *TenantsCommand) withManager(ctx context.Context, fn func(manager tenant.ManagerInterface, configStore tenant.ConfigStoreInterface) error) error {
	dbConnectionPool, err := db.OpenDBConnectionPool(globalOptions.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to the database: %w", err)
	}
	defer dbConnectionPool.Close()

	configStore, err := tenant.NewConfigStore(dbConnectionPool)
	if err != nil {
		return fmt.Errorf("creating the tenant config store: %w", err)
	}

	return fn(tenant.NewManager(tenant.WithDatabase(dbConnectionPool)), configStore)
}

func (c *TenantsCommand) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:              "add [name] [code]",
		Short:            "Onboard a new tenant with the given display name and short code",
		Args:             cobra.ExactArgs(2),
		PersistentPreRun: cmdUtils.DefaultPersistentPreRun,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withManager(ctx, func(manager tenant.ManagerInterface, _ tenant.ConfigStoreInterface) error {
				t, err := manager.AddTenant(ctx, args[0], args[1])
				if err != nil {
					return fmt.Errorf("adding tenant: %w", err)
				}
				log.Ctx(ctx).Infof("Tenant %s (%s) created with ID %s. Activate it with `tenants set-status %s ACTIVATED`.", t.Name, t.Code, t.ID, t.Code)
				return nil
			})
		},
	}
}

func (c *TenantsCommand) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:              "list",
		Short:            "List all tenants",
		Args:             cobra.NoArgs,
		PersistentPreRun: cmdUtils.DefaultPersistentPreRun,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withManager(ctx, func(manager tenant.ManagerInterface, _ tenant.ConfigStoreInterface) error {
				tenants, err := manager.GetAllTenants(ctx)
				if err != nil {
					return fmt.Errorf("listing tenants: %w", err)
				}
				for _, t := range tenants {
					defaultMarker := ""
					if t.IsDefault {
						defaultMarker = " (default)"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s%s\n", t.ID, t.Code, t.Name, t.Status, defaultMarker)
				}
				return nil
			})
		},
	}
}

func (c *TenantsCommand) setStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:              "set-status [tenant-id-or-code] [status]",
		Short:            `Set a tenant's status. Options: "CREATED", "ACTIVATED", "SUSPENDED", "DEACTIVATED"`,
		Args:             cobra.ExactArgs(2),
		PersistentPreRun: cmdUtils.DefaultPersistentPreRun,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			status := schema.TenantStatus(strings.ToUpper(strings.TrimSpace(args[1])))
			if !strings.HasPrefix(string(status), "TENANT_") {
				status = schema.TenantStatus("TENANT_" + status)
			}
			if !status.IsValid() {
				return fmt.Errorf("invalid tenant status %q", args[1])
			}

			return c.withManager(ctx, func(manager tenant.ManagerInterface, _ tenant.ConfigStoreInterface) error {
				t, err := manager.GetTenantByIDOrCode(ctx, args[0])
				if err != nil {
					return fmt.Errorf("resolving tenant %q: %w", args[0], err)
				}

				updated, err := manager.UpdateTenant(ctx, &tenant.TenantUpdate{ID: t.ID, Status: &status})
				if err != nil {
					return fmt.Errorf("updating tenant %s: %w", t.ID, err)
				}
				log.Ctx(ctx).Infof("Tenant %s (%s) is now %s.", updated.Name, updated.Code, updated.Status)
				return nil
			})
		},
	}
}

func (c *TenantsCommand) setDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:              "set-default [tenant-id-or-code]",
		Short:            "Mark a tenant as the default one for requests without a tenant header",
		Args:             cobra.ExactArgs(1),
		PersistentPreRun: cmdUtils.DefaultPersistentPreRun,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return c.withManager(ctx, func(manager tenant.ManagerInterface, _ tenant.ConfigStoreInterface) error {
				t, err := manager.GetTenantByIDOrCode(ctx, args[0])
				if err != nil {
					return fmt.Errorf("resolving tenant %q: %w", args[0], err)
				}

				updated, err := manager.SetDefault(ctx, t.ID)
				if err != nil {
					return fmt.Errorf("setting default tenant %s: %w", t.ID, err)
				}
				log.Ctx(ctx).Infof("Tenant %s (%s) is now the default tenant.", updated.Name, updated.Code)
				return nil
			})
		},
	}
}

func (c *TenantsCommand) setConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:              "set-config [tenant-id-or-code] [config-file]",
		Short:            "Append a new tenant configuration version from a JSON file",
		Args:             cobra.ExactArgs(2),
		PersistentPreRun: cmdUtils.DefaultPersistentPreRun,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			raw, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("reading config file %s: %w", args[1], err)
			}
			var payload tenant.ConfigPayload
			if err = json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("parsing config file %s: %w", args[1], err)
			}

			return c.withManager(ctx, func(manager tenant.ManagerInterface, configStore tenant.ConfigStoreInterface) error {
				t, err := manager.GetTenantByIDOrCode(ctx, args[0])
				if err != nil {
					return fmt.Errorf("resolving tenant %q: %w", args[0], err)
				}

				cfg, err := configStore.PutConfig(ctx, t.ID, payload, "cli")
				if err != nil {
					return fmt.Errorf("writing config for tenant %s: %w", t.ID, err)
				}
				log.Ctx(ctx).Infof("Tenant %s (%s) config version %d created.", t.Name, t.Code, cfg.Version)
				return nil
			})
		},
	}
}
