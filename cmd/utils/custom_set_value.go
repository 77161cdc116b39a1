package utils

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/paymenthub/payment-engine-backend/internal/config"
	"github.com/paymenthub/payment-engine-backend/internal/crashtracker"
	"github.com/paymenthub/payment-engine-backend/internal/events"
	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/monitor"
	"github.com/paymenthub/payment-engine-backend/internal/notify"
)

func SetConfigOptionLogLevel(co *config.ConfigOption) error {
	logLevelStr := viper.GetString(co.Name)
	logLevel, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		return fmt.Errorf("couldn't parse log level: %w", err)
	}

	key, ok := co.ConfigKey.(*logrus.Level)
	if !ok {
		return fmt.Errorf("configKey has an invalid type %T", co.ConfigKey)
	}
	*key = logLevel

	log.SetLevel(*key)
	return nil
}

func SetConfigOptionMetricType(co *config.ConfigOption) error {
	metricType := viper.GetString(co.Name)

	metricTypeParsed, err := monitor.ParseMetricType(metricType)
	if err != nil {
		return fmt.Errorf("couldn't parse metric type: %w", err)
	}

	*(co.ConfigKey.(*monitor.MetricType)) = metricTypeParsed
	return nil
}

func SetConfigOptionCrashTrackerType(co *config.ConfigOption) error {
	ctType := viper.GetString(co.Name)

	ctTypeParsed, err := crashtracker.ParseCrashTrackerType(ctType)
	if err != nil {
		return fmt.Errorf("couldn't parse crash tracker type: %w", err)
	}

	*(co.ConfigKey.(*crashtracker.CrashTrackerType)) = ctTypeParsed
	return nil
}

func SetConfigOptionEventBrokerType(co *config.ConfigOption) error {
	ebType := viper.GetString(co.Name)

	ebTypeParsed, err := events.ParseEventBrokerType(ebType)
	if err != nil {
		return fmt.Errorf("couldn't parse event broker type: %w", err)
	}

	*(co.ConfigKey.(*events.EventBrokerType)) = ebTypeParsed
	return nil
}

func SetConfigOptionMessengerType(co *config.ConfigOption) error {
	messengerTypeStr := viper.GetString(co.Name)
	if messengerTypeStr == "" {
		return nil
	}

	messengerType, err := notify.ParseMessengerType(messengerTypeStr)
	if err != nil {
		return fmt.Errorf("couldn't parse messenger type: %w", err)
	}

	*(co.ConfigKey.(*notify.MessengerType)) = messengerType
	return nil
}

// SetConfigOptionStringList splits a comma separated value into a string slice.
func SetConfigOptionStringList(co *config.ConfigOption) error {
	listStr := viper.GetString(co.Name)
	if listStr == "" {
		return fmt.Errorf("cannot be empty")
	}

	list := strings.Split(listStr, ",")
	for i, el := range list {
		list[i] = strings.TrimSpace(el)
	}

	key, ok := co.ConfigKey.(*[]string)
	if !ok {
		return fmt.Errorf("the expected type for this config key is a string slice, but got a %T instead", co.ConfigKey)
	}
	*key = list
	return nil
}

func SetCorsAllowedOrigins(co *config.ConfigOption) error {
	corsAllowedOriginsOptions := viper.GetString(co.Name)

	if corsAllowedOriginsOptions == "" {
		return fmt.Errorf("cors allowed addresses cannot be empty")
	}

	corsAllowedOrigins := strings.Split(corsAllowedOriginsOptions, ",")

	// validate addresses
	for _, address := range corsAllowedOrigins {
		_, err := url.ParseRequestURI(address)
		if err != nil {
			return fmt.Errorf("error parsing cors addresses: %w", err)
		}
		if address == "*" {
			log.Warn(`The value "*" for the CORS Allowed Origins is too permissive and not recommended.`)
		}
	}

	key, ok := co.ConfigKey.(*[]string)
	if !ok {
		return fmt.Errorf("the expected type for this config key is a string slice, but got a %T instead", co.ConfigKey)
	}
	*key = corsAllowedOrigins

	return nil
}

func SetConfigOptionURLString(co *config.ConfigOption) error {
	u := viper.GetString(co.Name)

	if u == "" {
		return fmt.Errorf("url cannot be empty")
	}

	_, err := url.ParseRequestURI(u)
	if err != nil {
		return fmt.Errorf("error parsing url: %w", err)
	}

	key, ok := co.ConfigKey.(*string)
	if !ok {
		return fmt.Errorf("the expected type for this config key is a string, but got a %T instead", co.ConfigKey)
	}
	*key = u

	return nil
}
