package monitor

type CommonLabels struct {
	TenantName string
}

type HTTPRequestLabels struct {
	Status string
	Route  string
	Method string
	CommonLabels
}

type DBQueryLabels struct {
	QueryType string
}

type PaymentLabels struct {
	PaymentType string
	Scheme      string
	Status      string
	CommonLabels
}

func (p PaymentLabels) ToMap() map[string]string {
	return map[string]string{
		"payment_type": p.PaymentType,
		"scheme":       p.Scheme,
		"status":       p.Status,
		"tenant_name":  p.TenantName,
	}
}

var PaymentLabelNames = []string{"payment_type", "scheme", "status", "tenant_name"}

type SagaStepLabels struct {
	Step    string
	Outcome string
	CommonLabels
}

func (s SagaStepLabels) ToMap() map[string]string {
	return map[string]string{
		"step":        s.Step,
		"outcome":     s.Outcome,
		"tenant_name": s.TenantName,
	}
}

var SagaStepLabelNames = []string{"step", "outcome", "tenant_name"}

type ClearingLabels struct {
	Rail       string
	Operation  string
	Status     string
	StatusCode string
	CommonLabels
}

func (c ClearingLabels) ToMap() map[string]string {
	return map[string]string{
		"rail":        c.Rail,
		"operation":   c.Operation,
		"status":      c.Status,
		"status_code": c.StatusCode,
		"tenant_name": c.TenantName,
	}
}

var ClearingLabelNames = []string{"rail", "operation", "status", "status_code", "tenant_name"}

type LedgerLabels struct {
	Operation string
	Result    string
	CommonLabels
}

func (l LedgerLabels) ToMap() map[string]string {
	return map[string]string{
		"operation":   l.Operation,
		"result":      l.Result,
		"tenant_name": l.TenantName,
	}
}

var LedgerLabelNames = []string{"operation", "result", "tenant_name"}

type FraudLabels struct {
	Provider string
	Decision string
	CommonLabels
}

func (f FraudLabels) ToMap() map[string]string {
	return map[string]string{
		"provider":    f.Provider,
		"decision":    f.Decision,
		"tenant_name": f.TenantName,
	}
}

var FraudLabelNames = []string{"provider", "decision", "tenant_name"}

type DispatchLabels struct {
	Mode   string
	Result string
	CommonLabels
}

func (d DispatchLabels) ToMap() map[string]string {
	return map[string]string{
		"mode":        d.Mode,
		"result":      d.Result,
		"tenant_name": d.TenantName,
	}
}

var DispatchLabelNames = []string{"mode", "result", "tenant_name"}

type OutboxLabels struct {
	Topic string
	CommonLabels
}

func (o OutboxLabels) ToMap() map[string]string {
	return map[string]string{
		"topic":       o.Topic,
		"tenant_name": o.TenantName,
	}
}

var OutboxLabelNames = []string{"topic", "tenant_name"}
