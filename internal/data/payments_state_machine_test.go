package data

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_PaymentStatus_ToPaymentStatus(t *testing.T) {
	tests := []struct {
		name   string
		actual string
		want   PaymentStatus
		err    error
	}{
		{
			name:   "valid entry",
			actual: "SETTLED",
			want:   SettledPaymentStatus,
			err:    nil,
		},
		{
			name:   "valid lower case",
			actual: "initiated",
			want:   InitiatedPaymentStatus,
			err:    nil,
		},
		{
			name:   "valid weird case",
			actual: "ClEaRiNg_SuBmItTeD",
			want:   ClearingSubmittedPaymentStatus,
			err:    nil,
		},
		{
			name:   "invalid entry",
			actual: "NOT_VALID",
			want:   InitiatedPaymentStatus,
			err:    fmt.Errorf("invalid payment status: NOT_VALID"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToPaymentStatus(tt.actual)

			if tt.err != nil {
				require.EqualError(t, err, tt.err.Error())
				return
			} else {
				require.NoError(t, err)
				require.Equal(t, tt.want, got)
			}
		})
	}
}

func Test_PaymentStatus_TransitionTo(t *testing.T) {
	tests := []struct {
		name   string
		actual PaymentStatus
		target PaymentStatus
		err    error
	}{
		{
			name:   "validation passes transition",
			actual: InitiatedPaymentStatus,
			target: ValidatedPaymentStatus,
			err:    nil,
		},
		{
			name:   "funds held at the ledger transition",
			actual: ValidatedPaymentStatus,
			target: FundsReservedPaymentStatus,
			err:    nil,
		},
		{
			name:   "rail selected transition",
			actual: FundsReservedPaymentStatus,
			target: RoutedPaymentStatus,
			err:    nil,
		},
		{
			name:   "submitted to the rail transition",
			actual: RoutedPaymentStatus,
			target: ClearingSubmittedPaymentStatus,
			err:    nil,
		},
		{
			name:   "rail accepts transition",
			actual: ClearingSubmittedPaymentStatus,
			target: ClearingAcceptedPaymentStatus,
			err:    nil,
		},
		{
			name:   "rail rejects transition",
			actual: ClearingSubmittedPaymentStatus,
			target: ClearingRejectedPaymentStatus,
			err:    nil,
		},
		{
			name:   "ledger posting settles transition",
			actual: ClearingAcceptedPaymentStatus,
			target: SettledPaymentStatus,
			err:    nil,
		},
		{
			name:   "accepted payment reversed transition",
			actual: ClearingAcceptedPaymentStatus,
			target: ReversedPaymentStatus,
			err:    nil,
		},
		{
			name:   "cancel before submission transition",
			actual: ValidatedPaymentStatus,
			target: CancelledPaymentStatus,
			err:    nil,
		},
		{
			name:   "cannot skip validation",
			actual: InitiatedPaymentStatus,
			target: FundsReservedPaymentStatus,
			err:    fmt.Errorf("cannot transition from INITIATED to FUNDS_RESERVED"),
		},
		{
			name:   "cannot cancel after acceptance",
			actual: ClearingAcceptedPaymentStatus,
			target: CancelledPaymentStatus,
			err:    fmt.Errorf("cannot transition from CLEARING_ACCEPTED to CANCELLED"),
		},
		{
			name:   "settled is terminal",
			actual: SettledPaymentStatus,
			target: ReversedPaymentStatus,
			err:    fmt.Errorf("cannot transition from SETTLED to REVERSED"),
		},
		{
			name:   "rejection is terminal",
			actual: ClearingRejectedPaymentStatus,
			target: ClearingSubmittedPaymentStatus,
			err:    fmt.Errorf("cannot transition from CLEARING_REJECTED to CLEARING_SUBMITTED"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.actual.TransitionTo(tt.target)
			if tt.err != nil {
				require.EqualError(t, err, tt.err.Error())
				return
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func Test_PaymentStatus_SourceStatuses(t *testing.T) {
	tests := []struct {
		name                   string
		targetStatus           PaymentStatus
		expectedSourceStatuses []PaymentStatus
	}{
		{
			name:                   "Initiated",
			targetStatus:           InitiatedPaymentStatus,
			expectedSourceStatuses: []PaymentStatus{},
		},
		{
			name:                   "Validated",
			targetStatus:           ValidatedPaymentStatus,
			expectedSourceStatuses: []PaymentStatus{InitiatedPaymentStatus},
		},
		{
			name:                   "FundsReserved",
			targetStatus:           FundsReservedPaymentStatus,
			expectedSourceStatuses: []PaymentStatus{ValidatedPaymentStatus},
		},
		{
			name:                   "Routed",
			targetStatus:           RoutedPaymentStatus,
			expectedSourceStatuses: []PaymentStatus{FundsReservedPaymentStatus},
		},
		{
			name:                   "ClearingSubmitted",
			targetStatus:           ClearingSubmittedPaymentStatus,
			expectedSourceStatuses: []PaymentStatus{RoutedPaymentStatus},
		},
		{
			name:                   "ClearingAccepted",
			targetStatus:           ClearingAcceptedPaymentStatus,
			expectedSourceStatuses: []PaymentStatus{ClearingSubmittedPaymentStatus},
		},
		{
			name:                   "Settled",
			targetStatus:           SettledPaymentStatus,
			expectedSourceStatuses: []PaymentStatus{ClearingAcceptedPaymentStatus},
		},
		{
			name:                   "ClearingRejected",
			targetStatus:           ClearingRejectedPaymentStatus,
			expectedSourceStatuses: []PaymentStatus{ClearingSubmittedPaymentStatus},
		},
		{
			name:         "Failed",
			targetStatus: FailedPaymentStatus,
			expectedSourceStatuses: []PaymentStatus{
				InitiatedPaymentStatus,
				ValidatedPaymentStatus,
				FundsReservedPaymentStatus,
				RoutedPaymentStatus,
				ClearingSubmittedPaymentStatus,
				ClearingAcceptedPaymentStatus,
			},
		},
		{
			name:                   "Reversed",
			targetStatus:           ReversedPaymentStatus,
			expectedSourceStatuses: []PaymentStatus{ClearingAcceptedPaymentStatus},
		},
		{
			name:         "Cancelled",
			targetStatus: CancelledPaymentStatus,
			expectedSourceStatuses: []PaymentStatus{
				InitiatedPaymentStatus,
				ValidatedPaymentStatus,
				FundsReservedPaymentStatus,
				RoutedPaymentStatus,
				ClearingSubmittedPaymentStatus,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expectedSourceStatuses, tt.targetStatus.SourceStatuses())
		})
	}
}

func Test_PaymentStatus_PaymentStatuses(t *testing.T) {
	expectedStatuses := []PaymentStatus{
		InitiatedPaymentStatus, ValidatedPaymentStatus, FundsReservedPaymentStatus,
		RoutedPaymentStatus, ClearingSubmittedPaymentStatus, ClearingAcceptedPaymentStatus,
		SettledPaymentStatus, ClearingRejectedPaymentStatus, FailedPaymentStatus,
		ReversedPaymentStatus, CancelledPaymentStatus,
	}
	require.Equal(t, expectedStatuses, PaymentStatuses())
}

func Test_PaymentStatus_IsTerminal(t *testing.T) {
	terminal := map[PaymentStatus]bool{
		SettledPaymentStatus:          true,
		ClearingRejectedPaymentStatus: true,
		FailedPaymentStatus:           true,
		ReversedPaymentStatus:         true,
		CancelledPaymentStatus:        true,
	}

	for _, status := range PaymentStatuses() {
		t.Run(string(status), func(t *testing.T) {
			require.Equal(t, terminal[status], status.IsTerminal())
		})
	}

	require.Equal(t, []PaymentStatus{
		SettledPaymentStatus, ClearingRejectedPaymentStatus, FailedPaymentStatus,
		ReversedPaymentStatus, CancelledPaymentStatus,
	}, TerminalPaymentStatuses())
}
