package notify

import (
	"fmt"
	"strings"

	"github.com/paymenthub/payment-engine-backend/internal/utils"
)

type Message struct {
	ToPhoneNumber string
	ToEmail       string
	Title         string
	Body          string
}

// ValidateFor validates if the message object is valid for the given messengerType.
func (m Message) ValidateFor(messengerType MessengerType) error {
	if messengerType.IsSMS() {
		if err := utils.ValidatePhoneNumber(m.ToPhoneNumber); err != nil {
			return fmt.Errorf("invalid message: %w", err)
		}
	}

	if messengerType.IsEmail() {
		if err := utils.ValidateEmail(m.ToEmail); err != nil {
			return fmt.Errorf("invalid message: %w", err)
		}

		if strings.TrimSpace(m.Title) == "" {
			return fmt.Errorf("title is empty")
		}
	}

	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("message body is empty")
	}

	return nil
}

// SupportedChannels reports which channels this message carries a usable
// recipient for.
func (m Message) SupportedChannels() []MessageChannel {
	var channels []MessageChannel

	if utils.ValidateEmail(m.ToEmail) == nil && strings.TrimSpace(m.Title) != "" {
		channels = append(channels, MessageChannelEmail)
	}
	if utils.ValidatePhoneNumber(m.ToPhoneNumber) == nil {
		channels = append(channels, MessageChannelSMS)
	}

	return channels
}

// String redacts recipients so messages can be logged.
func (m Message) String() string {
	return fmt.Sprintf("Message{ToPhoneNumber: %s, ToEmail: %s, Title: %s}",
		utils.TruncateString(m.ToPhoneNumber, 3),
		utils.TruncateString(m.ToEmail, 3),
		utils.TruncateString(m.Title, 8))
}
