package utils

import (
	"go/types"

	"github.com/paymenthub/payment-engine-backend/internal/config"
	"github.com/paymenthub/payment-engine-backend/internal/crashtracker"
	"github.com/paymenthub/payment-engine-backend/internal/events"
	"github.com/paymenthub/payment-engine-backend/internal/notify"
)

// EventBrokerOptions contains the event broker configuration shared by the
// commands that produce or consume events.
type EventBrokerOptions struct {
	EventBrokerType events.EventBrokerType
	BrokerURLs      []string
	ConsumerGroupID string
}

// EventBrokerConfigOptions returns the config options for the event broker.
func EventBrokerConfigOptions(opts *EventBrokerOptions) []*config.ConfigOption {
	return []*config.ConfigOption{
		{
			Name:           "event-broker-type",
			Usage:          `Event broker type. Options: "KAFKA", "NONE"`,
			OptType:        types.String,
			ConfigKey:      &opts.EventBrokerType,
			CustomSetValue: SetConfigOptionEventBrokerType,
			FlagDefault:    string(events.NoneEventBrokerType),
			Required:       true,
		},
		{
			Name:           "broker-urls",
			Usage:          "List of comma separated broker URLs",
			OptType:        types.String,
			ConfigKey:      &opts.BrokerURLs,
			CustomSetValue: SetConfigOptionStringList,
			Required:       false,
		},
		{
			Name:        "consumer-group-id",
			Usage:       "Consumer group ID shared by the clearing result consumers",
			OptType:     types.String,
			ConfigKey:   &opts.ConsumerGroupID,
			FlagDefault: "payment-engine",
			Required:    false,
		},
	}
}

func CrashTrackerTypeConfigOption(targetPointer interface{}) *config.ConfigOption {
	return &config.ConfigOption{
		Name:           "crash-tracker-type",
		Usage:          `Crash tracker type. Options: "SENTRY", "DRY_RUN"`,
		OptType:        types.String,
		CustomSetValue: SetConfigOptionCrashTrackerType,
		ConfigKey:      targetPointer,
		FlagDefault:    string(crashtracker.CrashTrackerTypeDryRun),
		Required:       true,
	}
}

// TwilioConfigOptions returns the config options for Twilio. Relevant for loading configs needed for the messenger type(s): `TWILIO_*`.
func TwilioConfigOptions(opts *notify.MessengerOptions) []*config.ConfigOption {
	return []*config.ConfigOption{
		{
			Name:      "twilio-account-sid",
			Usage:     "The SID of the Twilio account",
			OptType:   types.String,
			ConfigKey: &opts.TwilioAccountSID,
			Required:  false,
		},
		{
			Name:      "twilio-auth-token",
			Usage:     "The Auth Token of the Twilio account",
			OptType:   types.String,
			ConfigKey: &opts.TwilioAuthToken,
			Required:  false,
		},
		{
			Name:      "twilio-service-sid",
			Usage:     "The service ID used within Twilio to send messages",
			OptType:   types.String,
			ConfigKey: &opts.TwilioServiceSID,
			Required:  false,
		},
		// Twilio Email (SendGrid)
		{
			Name:      "twilio-sendgrid-api-key",
			Usage:     "The API key of the Twilio SendGrid account",
			OptType:   types.String,
			ConfigKey: &opts.TwilioSendGridAPIKey,
			Required:  false,
		},
		{
			Name:      "twilio-sendgrid-sender-address",
			Usage:     "The email address that Twilio SendGrid will use to send emails",
			OptType:   types.String,
			ConfigKey: &opts.TwilioSendGridSenderAddress,
			Required:  false,
		},
	}
}

// AWSConfigOptions returns the config options for AWS. Relevant for loading configs needed for the messenger type(s): `AWS_*`.
func AWSConfigOptions(opts *notify.MessengerOptions) []*config.ConfigOption {
	return []*config.ConfigOption{
		// AWS
		{
			Name:      "aws-access-key-id",
			Usage:     "The AWS access key ID",
			OptType:   types.String,
			ConfigKey: &opts.AWSAccessKeyID,
			Required:  false,
		},
		{
			Name:      "aws-secret-access-key",
			Usage:     "The AWS secret access key",
			OptType:   types.String,
			ConfigKey: &opts.AWSSecretAccessKey,
			Required:  false,
		},
		{
			Name:      "aws-region",
			Usage:     "The AWS region",
			OptType:   types.String,
			ConfigKey: &opts.AWSRegion,
			Required:  false,
		},
		// AWS SMS (SNS)
		{
			Name:      "aws-sns-sender-id",
			Usage:     "The sender ID of the aws account sending the SMS message. Uses AWS SNS.",
			OptType:   types.String,
			ConfigKey: &opts.AWSSNSSenderID,
			Required:  false,
		},
		// AWS Email (SES)
		{
			Name:      "aws-ses-sender-id",
			Usage:     "The email address that AWS will use to send emails. Uses AWS SES.",
			OptType:   types.String,
			ConfigKey: &opts.AWSSESSenderID,
			Required:  false,
		},
	}
}

// MessengerConfigOptions returns the config options for choosing the SMS and
// email messenger types, plus the vendor credentials they need.
func MessengerConfigOptions(smsType, emailType *notify.MessengerType, opts *notify.MessengerOptions) []*config.ConfigOption {
	configOpts := []*config.ConfigOption{
		{
			Name:           "sms-sender-type",
			Usage:          `SMS Sender Type. Options: "TWILIO_SMS", "AWS_SMS", "DRY_RUN". Leave empty to disable SMS notifications.`,
			OptType:        types.String,
			CustomSetValue: SetConfigOptionMessengerType,
			ConfigKey:      smsType,
			Required:       false,
		},
		{
			Name:           "email-sender-type",
			Usage:          `Email Sender Type. Options: "TWILIO_EMAIL", "AWS_EMAIL", "DRY_RUN". Leave empty to disable email notifications.`,
			OptType:        types.String,
			CustomSetValue: SetConfigOptionMessengerType,
			ConfigKey:      emailType,
			Required:       false,
		},
	}
	configOpts = append(configOpts, TwilioConfigOptions(opts)...)
	configOpts = append(configOpts, AWSConfigOptions(opts)...)
	return configOpts
}
