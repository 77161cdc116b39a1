// Package clearing submits payments to the clearing rails and interprets
// what comes back. All rails sit behind one shared ingress, demultiplexed by
// routing headers; per-rail behavior (payload shape, sync versus async
// acknowledgement) is driven entirely by clearing_adapters rows.
package clearing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/iso20022"
)

// Demux headers expected by the shared downstream ingress.
const (
	TenantIDHeader        = "X-Tenant-ID"
	ServiceTypeHeader     = "X-Service-Type"
	RouteContextHeader    = "X-Route-Context"
	DownstreamRouteHeader = "X-Downstream-Route"
	BankRouteHeader       = "X-Bank-Route"

	trackingReferenceHeader = "X-Tracking-Reference"
)

// Service classes carried in X-Service-Type. The rail never goes there; it
// rides the bank route so the ingress can split rails within the clearing
// class.
const (
	ClearingServiceType = "clearing"
	LedgerServiceType   = "ledger"
	FraudServiceType    = "fraud"
)

// UnavailableError marks a transport-level failure: the rail could not be
// reached, answered 5xx, timed out, its breaker is open, or its rate limit
// held the call off. The saga retries these and fails over; business
// rejections never wear this type.
type UnavailableError struct {
	Rail data.Rail
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s adapter unavailable: %v", e.Rail, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err is a transport-level clearing failure.
func IsUnavailable(err error) bool {
	var unavailableErr *UnavailableError
	return errors.As(err, &unavailableErr)
}

// SubmitResult is the rail's answer to a submission. A rejection is a valid
// result, not an error: Status RJCT with the mapped reason.
type SubmitResult struct {
	// RailRef is the clearing system reference assigned by the rail, used to
	// correlate async results and to cancel.
	RailRef        string
	Status         iso20022.TransactionStatus
	Reason         iso20022.ReasonCode
	AdditionalInfo string
	// Final reports whether the rail answered with a terminal status inline.
	// Async rails acknowledge with an interim status and deliver the final
	// one through callbacks or polling.
	Final       bool
	RawResponse []byte
}

// Accepted reports whether the rail took the payment, finally or interim.
func (r *SubmitResult) Accepted() bool {
	return r.Status.IsAccepted() || r.Status == iso20022.StatusPending
}

// CancelRequest asks a rail to recall a previously submitted payment.
type CancelRequest struct {
	Payment    *data.Payment
	ReasonCode string
}

// CancelResult is the rail's answer to a camt.056 recall.
type CancelResult struct {
	Status      iso20022.CancellationStatus
	Reason      string
	RawResponse []byte
}

// PollResult is the rail's answer to a status poll for a parked payment.
type PollResult struct {
	RailRef        string
	Status         iso20022.TransactionStatus
	Reason         iso20022.ReasonCode
	AdditionalInfo string
	// Final reports whether the polled status terminates the rail lifecycle;
	// a pending poll keeps the saga parked.
	Final       bool
	RawResponse []byte
}

// AdapterInterface is one rail endpoint bound to its stored configuration.
type AdapterInterface interface {
	Rail() data.Rail
	Capabilities() data.Capabilities
	Submit(ctx context.Context, payment *data.Payment) (*SubmitResult, error)
	Cancel(ctx context.Context, cancelReq CancelRequest) (*CancelResult, error)
	Poll(ctx context.Context, payment *data.Payment) (*PollResult, error)
}

// DemuxHeaders returns the routing headers the shared ingress uses to fan a
// call out to the right downstream system. rail qualifies the bank route on
// clearing calls and is empty for the ledger and fraud services.
func DemuxHeaders(tenantID, serviceType string, rail data.Rail) http.Header {
	h := http.Header{}
	h.Set(TenantIDHeader, tenantID)
	h.Set(ServiceTypeHeader, serviceType)
	h.Set(RouteContextHeader, fmt.Sprintf("%s-%s", tenantID, serviceType))
	h.Set(DownstreamRouteHeader, fmt.Sprintf("%s-system", serviceType))
	bankRoute := fmt.Sprintf("/%s/%s", serviceType, tenantID)
	if rail != "" {
		bankRoute = fmt.Sprintf("%s/%s", bankRoute, strings.ToLower(string(rail)))
	}
	h.Set(BankRouteHeader, bankRoute)
	return h
}
