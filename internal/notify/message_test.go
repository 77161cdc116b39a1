package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Message_ValidateFor(t *testing.T) {
	validEmailMessage := Message{
		ToEmail: "payments@bluebank.example.com",
		Title:   "Payment settled",
		Body:    "Your payment has settled.",
	}
	validSMSMessage := Message{
		ToPhoneNumber: "+14155552671",
		Body:          "Your payment has settled.",
	}

	testCases := []struct {
		name            string
		message         Message
		messengerType   MessengerType
		wantErrContains string
	}{
		{
			name:            "SMS messenger rejects an invalid phone number",
			message:         Message{ToPhoneNumber: "123", Body: "hi"},
			messengerType:   MessengerTypeTwilioSMS,
			wantErrContains: "invalid message: the provided phone number is not a valid E.164 number",
		},
		{
			name:            "email messenger rejects an invalid address",
			message:         Message{ToEmail: "not-an-email", Title: "t", Body: "hi"},
			messengerType:   MessengerTypeAWSEmail,
			wantErrContains: "invalid message: the provided email is not valid",
		},
		{
			name:            "email messenger rejects an empty title",
			message:         Message{ToEmail: "payments@bluebank.example.com", Title: "   ", Body: "hi"},
			messengerType:   MessengerTypeTwilioEmail,
			wantErrContains: "title is empty",
		},
		{
			name:            "rejects an empty body",
			message:         Message{ToPhoneNumber: "+14155552671", Body: "   "},
			messengerType:   MessengerTypeAWSSMS,
			wantErrContains: "message body is empty",
		},
		{
			name:          "🎉 valid SMS message",
			message:       validSMSMessage,
			messengerType: MessengerTypeTwilioSMS,
		},
		{
			name:          "🎉 valid email message",
			message:       validEmailMessage,
			messengerType: MessengerTypeAWSEmail,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.message.ValidateFor(tc.messengerType)
			if tc.wantErrContains == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tc.wantErrContains)
			}
		})
	}
}

func Test_Message_SupportedChannels(t *testing.T) {
	testCases := []struct {
		name         string
		message      Message
		wantChannels []MessageChannel
	}{
		{
			name: "both channels",
			message: Message{
				ToEmail:       "payments@bluebank.example.com",
				ToPhoneNumber: "+14155552671",
				Title:         "Payment settled",
				Body:          "body",
			},
			wantChannels: []MessageChannel{MessageChannelEmail, MessageChannelSMS},
		},
		{
			name:         "email only",
			message:      Message{ToEmail: "payments@bluebank.example.com", Title: "Payment settled", Body: "body"},
			wantChannels: []MessageChannel{MessageChannelEmail},
		},
		{
			name:         "email address without a title does not count",
			message:      Message{ToEmail: "payments@bluebank.example.com", Body: "body"},
			wantChannels: nil,
		},
		{
			name:         "sms only",
			message:      Message{ToPhoneNumber: "+14155552671", Body: "body"},
			wantChannels: []MessageChannel{MessageChannelSMS},
		},
		{
			name:         "no channels",
			message:      Message{Body: "body"},
			wantChannels: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.wantChannels, tc.message.SupportedChannels())
		})
	}
}

func Test_Message_String(t *testing.T) {
	message := Message{
		ToPhoneNumber: "+27831234567",
		ToEmail:       "thandi.mokoena@bluebank.example.com",
		Title:         "Payment E2E-20260825-001 settled",
		Body:          "Good news: your EFT payment has settled successfully.",
	}

	redacted := message.String()
	assert.NotContains(t, redacted, "+27831234567")
	assert.NotContains(t, redacted, "thandi.mokoena@bluebank.example.com")
	assert.NotContains(t, redacted, message.Body)
	assert.Contains(t, redacted, "+27...567")
}
