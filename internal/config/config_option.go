// Package config implements the option plumbing used by every CLI command:
// each ConfigOption declares one setting that can arrive as a flag or an
// environment variable (dashes become underscores, upper-cased), gets bound
// through viper, and lands in a typed ConfigKey destination.
package config

import (
	"fmt"
	"go/types"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/paymenthub/payment-engine-backend/internal/log"
)

// ConfigOptions is a group of ConfigOption entries wired together onto one command.
type ConfigOptions []*ConfigOption

// ConfigOption declares a single configurable value.
type ConfigOption struct {
	// Name is the flag name, e.g. "database-url".
	Name string
	// Usage is the help text shown for the flag.
	Usage string
	// OptType is the value's basic kind. String, Int and Bool are supported;
	// anything richer goes through CustomSetValue.
	OptType types.BasicKind
	// FlagDefault is used when neither flag nor env var is set.
	FlagDefault interface{}
	// Required makes Require() abort when the value resolves empty.
	Required bool
	// ConfigKey is a pointer to the destination the parsed value is stored in.
	ConfigKey interface{}
	// CustomSetValue overrides the default viper lookup, used for enums,
	// durations and validated strings.
	CustomSetValue func(co *ConfigOption) error

	flag *pflag.Flag
}

// EnvVarName returns the environment variable bound to this option.
func (co *ConfigOption) EnvVarName() string {
	return strings.ToUpper(strings.ReplaceAll(co.Name, "-", "_"))
}

// UsageText appends the env var name to the flag usage string.
func (co *ConfigOption) UsageText() string {
	return fmt.Sprintf("%s (%s)", co.Usage, co.EnvVarName())
}

// Init registers all options as persistent flags on cmd and binds them to viper.
func (cos ConfigOptions) Init(cmd *cobra.Command) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	for _, co := range cos {
		if err := co.init(cmd); err != nil {
			return fmt.Errorf("initializing config option %q: %w", co.Name, err)
		}
	}
	return nil
}

func (co *ConfigOption) init(cmd *cobra.Command) error {
	switch co.OptType {
	case types.String:
		def, _ := co.FlagDefault.(string)
		cmd.PersistentFlags().String(co.Name, def, co.UsageText())
	case types.Int:
		def, _ := co.FlagDefault.(int)
		cmd.PersistentFlags().Int(co.Name, def, co.UsageText())
	case types.Bool:
		def, _ := co.FlagDefault.(bool)
		cmd.PersistentFlags().Bool(co.Name, def, co.UsageText())
	default:
		return fmt.Errorf("unsupported config option type %v", co.OptType)
	}

	co.flag = cmd.PersistentFlags().Lookup(co.Name)
	return viper.BindPFlag(co.Name, co.flag)
}

// Require aborts the process when a required option resolved to empty.
func (cos ConfigOptions) Require() {
	for _, co := range cos {
		co.Require()
	}
}

func (co *ConfigOption) Require() {
	if co.Required && viper.GetString(co.Name) == "" {
		log.Fatalf("Missing config option %q. Set it with the --%s flag or the %s environment variable.", co.Name, co.Name, co.EnvVarName())
	}
}

// SetValues resolves every option into its ConfigKey destination.
func (cos ConfigOptions) SetValues() error {
	for _, co := range cos {
		if err := co.SetValue(); err != nil {
			return fmt.Errorf("setting value of config option %q: %w", co.Name, err)
		}
	}
	return nil
}

func (co *ConfigOption) SetValue() error {
	if co.CustomSetValue != nil {
		return co.CustomSetValue(co)
	}
	if co.ConfigKey == nil {
		return nil
	}

	switch co.OptType {
	case types.String:
		key, ok := co.ConfigKey.(*string)
		if !ok {
			return fmt.Errorf("ConfigKey must be *string")
		}
		*key = viper.GetString(co.Name)
	case types.Int:
		key, ok := co.ConfigKey.(*int)
		if !ok {
			return fmt.Errorf("ConfigKey must be *int")
		}
		*key = viper.GetInt(co.Name)
	case types.Bool:
		key, ok := co.ConfigKey.(*bool)
		if !ok {
			return fmt.Errorf("ConfigKey must be *bool")
		}
		*key = viper.GetBool(co.Name)
	default:
		return fmt.Errorf("unsupported config option type %v", co.OptType)
	}
	return nil
}
