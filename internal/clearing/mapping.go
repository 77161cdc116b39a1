package clearing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/iso20022"
	"github.com/paymenthub/payment-engine-backend/internal/log"
)

const mappingCacheTTL = 2 * time.Minute

// FieldMap is the flat field document mapping rules read from and write to.
type FieldMap map[string]string

// FieldMapFromPayment flattens the payment into the field names mapping rules
// address. Keys follow the payment's wire vocabulary, not Go names.
func FieldMapFromPayment(p *data.Payment) FieldMap {
	return FieldMap{
		"payment_id":          p.ID,
		"uetr":                p.UETR,
		"end_to_end_id":       p.EndToEndID,
		"instruction_id":      p.InstructionID,
		"original_message_id": p.OriginalMessageID,
		"payment_type_code":   p.PaymentTypeCode,
		"local_instrument":    p.LocalInstrument,
		"amount":              p.Amount.String(),
		"currency":            p.Currency,
		"debtor_name":         p.DebtorName,
		"debtor_account":      p.DebtorAccount,
		"debtor_agent_bic":    p.DebtorAgentBIC,
		"creditor_name":       p.CreditorName,
		"creditor_account":    p.CreditorAccount,
		"creditor_agent_bic":  p.CreditorAgentBIC,
		"remittance_info":     p.RemittanceInfo,
	}
}

// MappingEngine loads payload mappings by id and applies their rules. Loaded
// mappings are cached briefly so every submission does not re-read the row.
type MappingEngine struct {
	models *data.Models
	cache  *ristretto.Cache
}

func NewMappingEngine(models *data.Models) *MappingEngine {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1_000,
		MaxCost:     100,
		BufferItems: 64,
	})
	if err != nil {
		log.Errorf("Failed to create payload mapping cache: %v", err)
		return &MappingEngine{models: models}
	}

	cache.Wait()

	return &MappingEngine{models: models, cache: cache}
}

// Load fetches a mapping by id, consulting the cache first.
func (e *MappingEngine) Load(ctx context.Context, mappingID string) (*data.PayloadMapping, error) {
	if e.cache != nil {
		if cached, found := e.cache.Get(mappingID); found {
			if mapping, ok := cached.(*data.PayloadMapping); ok {
				return mapping, nil
			}
			e.cache.Del(mappingID)
		}
	}

	mapping, err := e.models.PayloadMappings.Get(ctx, e.models.DBConnectionPool, mappingID)
	if err != nil {
		return nil, fmt.Errorf("loading payload mapping %s: %w", mappingID, err)
	}

	if e.cache != nil {
		e.cache.SetWithTTL(mappingID, mapping, 1, mappingCacheTTL)
	}
	return mapping, nil
}

// ApplyToPayment maps the payment through the mapping identified by
// mappingID. An empty id means the rail takes the canonical fields untouched.
func (e *MappingEngine) ApplyToPayment(ctx context.Context, mappingID string, payment *data.Payment) (FieldMap, error) {
	input := FieldMapFromPayment(payment)
	if mappingID == "" {
		return input, nil
	}

	mapping, err := e.Load(ctx, mappingID)
	if err != nil {
		return nil, err
	}
	return ApplyRules(mapping.Rules, input)
}

// ApplyRules runs the ordered rules over the input. The input is never
// mutated; rules write into a fresh output document seeded from the input so
// unmapped fields pass through.
func ApplyRules(rules data.TransformationRules, input FieldMap) (FieldMap, error) {
	output := make(FieldMap, len(input))
	for k, v := range input {
		output[k] = v
	}

	for i, rule := range rules {
		if err := applyRule(rule, input, output); err != nil {
			return nil, fmt.Errorf("applying rule %d (%s -> %s): %w", i, rule.Kind, rule.Target, err)
		}
	}
	return output, nil
}

func applyRule(rule data.TransformationRule, input, output FieldMap) error {
	switch rule.Kind {
	case data.CopyRuleKind:
		if v, ok := input[rule.Source]; ok {
			output[rule.Target] = v
		}

	case data.ConstRuleKind:
		output[rule.Target] = rule.Value

	case data.UppercaseRuleKind:
		if v, ok := input[rule.Source]; ok {
			output[rule.Target] = strings.ToUpper(v)
		}

	case data.CurrencyFormatRuleKind:
		v, ok := input[rule.Source]
		if !ok {
			return nil
		}
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("parsing amount %q: %w", v, err)
		}
		minorDigits, err := iso20022.CurrencyMinorUnits(input["currency"])
		if err != nil {
			// Unknown or absent currency: ISO 4217's common case.
			minorDigits = 2
		}
		if rule.Units == data.MinorUnitsFormat {
			output[rule.Target] = amount.Shift(minorDigits).Truncate(0).String()
		} else {
			output[rule.Target] = amount.StringFixed(minorDigits)
		}

	case data.DateFormatRuleKind:
		v, ok := input[rule.Source]
		if !ok {
			return nil
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return fmt.Errorf("parsing timestamp %q: %w", v, err)
		}
		output[rule.Target] = t.Format(rule.Layout)

	case data.UUIDGenerateRuleKind:
		output[rule.Target] = uuid.NewString()

	case data.NowRuleKind:
		layout := rule.Layout
		if layout == "" {
			layout = time.RFC3339
		}
		output[rule.Target] = time.Now().UTC().Format(layout)

	case data.ConditionalRuleKind:
		if input[rule.When.Field] == rule.When.Equals {
			output[rule.Target] = rule.Then
		} else if rule.Else != "" {
			output[rule.Target] = rule.Else
		}

	default:
		return fmt.Errorf("invalid rule kind %q", string(rule.Kind))
	}
	return nil
}
