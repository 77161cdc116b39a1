package notify

import (
	"context"
	"fmt"
	"strings"
)

// dryRunClient prints messages to stdout instead of sending them. Used in
// development and test environments.
type dryRunClient struct{}

func (c *dryRunClient) SendMessage(_ context.Context, message Message) error {
	recipient := message.ToEmail
	if message.ToEmail == "" {
		recipient = message.ToPhoneNumber
	}

	fmt.Println(strings.Repeat("-", 79))
	fmt.Println("Recipient:", recipient)
	fmt.Println("Subject:", message.Title)
	fmt.Println("Content:", message.Body)
	fmt.Println(strings.Repeat("-", 79))

	return nil
}

func (c *dryRunClient) MessengerType() MessengerType {
	return MessengerTypeDryRun
}

func NewDryRunClient() (MessengerClient, error) {
	return &dryRunClient{}, nil
}

var _ MessengerClient = (*dryRunClient)(nil)
