// Package iso20022 carries the ISO 20022 message structs the engine speaks
// (pain.001/pain.002 on the customer side, pacs.008/pacs.002 towards rails,
// camt.054/055/056/029 for advices and cancellations) together with the
// canonical Money and UETR value types. Structs are deliberately limited to
// the elements the engine reads or writes; unknown elements pass through the
// decoder untouched.
package iso20022

import "encoding/xml"

const (
	Pain001Namespace = "urn:iso:std:iso:20022:tech:xsd:pain.001.001.09"
	Pain002Namespace = "urn:iso:std:iso:20022:tech:xsd:pain.002.001.10"
	Pacs008Namespace = "urn:iso:std:iso:20022:tech:xsd:pacs.008.001.08"
	Pacs002Namespace = "urn:iso:std:iso:20022:tech:xsd:pacs.002.001.10"
	Camt054Namespace = "urn:iso:std:iso:20022:tech:xsd:camt.054.001.08"
	Camt055Namespace = "urn:iso:std:iso:20022:tech:xsd:camt.055.001.08"
	Camt056Namespace = "urn:iso:std:iso:20022:tech:xsd:camt.056.001.08"
	Camt029Namespace = "urn:iso:std:iso:20022:tech:xsd:camt.029.001.09"
)

// MaxMessageIDLength is the ISO 20022 Max35Text bound applied to message,
// instruction and end-to-end identifiers.
const MaxMessageIDLength = 35

// ActiveAmount is a currency-and-amount element such as InstdAmt or
// IntrBkSttlmAmt. The value keeps the exact lexical form from the wire.
type ActiveAmount struct {
	Ccy   string `xml:"Ccy,attr" json:"ccy"`
	Value string `xml:",chardata" json:"value"`
}

// PartyIdentification names a debtor, creditor or initiating party.
type PartyIdentification struct {
	Name string `xml:"Nm,omitempty" json:"name,omitempty"`
}

// AccountIdentification holds either an IBAN or a proprietary account id.
type AccountIdentification struct {
	IBAN  string            `xml:"Id>IBAN,omitempty" json:"iban,omitempty"`
	Other *GenericAccountID `xml:"Id>Othr,omitempty" json:"other,omitempty"`
	Ccy   string            `xml:"Ccy,omitempty" json:"ccy,omitempty"`
}

// Ref returns whichever identifier the account carries, IBAN first.
func (a AccountIdentification) Ref() string {
	if a.IBAN != "" {
		return a.IBAN
	}
	if a.Other != nil {
		return a.Other.ID
	}
	return ""
}

type GenericAccountID struct {
	ID string `xml:"Id" json:"id"`
}

// FinancialInstitution identifies an agent by BIC and/or clearing member id.
type FinancialInstitution struct {
	BICFI    string `xml:"FinInstnId>BICFI,omitempty" json:"bicfi,omitempty"`
	MemberID string `xml:"FinInstnId>ClrSysMmbId>MmbId,omitempty" json:"member_id,omitempty"`
	Name     string `xml:"FinInstnId>Nm,omitempty" json:"name,omitempty"`
}

// CodeOrProprietary is the ubiquitous Cd/Prtry choice element.
type CodeOrProprietary struct {
	Cd    string `xml:"Cd,omitempty" json:"cd,omitempty"`
	Prtry string `xml:"Prtry,omitempty" json:"prtry,omitempty"`
}

// Code returns Cd when set, else Prtry.
func (c *CodeOrProprietary) Code() string {
	if c == nil {
		return ""
	}
	if c.Cd != "" {
		return c.Cd
	}
	return c.Prtry
}

// PaymentTypeInformation carries service level, local instrument and category
// purpose hints the routing resolver consumes.
type PaymentTypeInformation struct {
	InstrPrty string             `xml:"InstrPrty,omitempty" json:"instr_prty,omitempty"`
	SvcLvl    *CodeOrProprietary `xml:"SvcLvl,omitempty" json:"svc_lvl,omitempty"`
	LclInstrm *CodeOrProprietary `xml:"LclInstrm,omitempty" json:"lcl_instrm,omitempty"`
	CtgyPurp  *CodeOrProprietary `xml:"CtgyPurp,omitempty" json:"ctgy_purp,omitempty"`
}

// PaymentIdentification groups the references preserved across every hop.
type PaymentIdentification struct {
	InstrID    string `xml:"InstrId,omitempty" json:"instr_id,omitempty"`
	EndToEndID string `xml:"EndToEndId" json:"end_to_end_id"`
	TxID       string `xml:"TxId,omitempty" json:"tx_id,omitempty"`
	UETR       string `xml:"UETR,omitempty" json:"uetr,omitempty"`
}

// ExecutionDate is the Dt/DtTm choice on ReqdExctnDt.
type ExecutionDate struct {
	Dt   string `xml:"Dt,omitempty" json:"dt,omitempty"`
	DtTm string `xml:"DtTm,omitempty" json:"dt_tm,omitempty"`
}

type RemittanceInformation struct {
	Unstructured []string `xml:"Ustrd,omitempty" json:"unstructured,omitempty"`
}

// StatusReasonInformation explains a RJCT or cancellation outcome. Internal
// diagnostic detail never goes into AddtlInf; only the fixed reason codes do.
type StatusReasonInformation struct {
	Reason         *CodeOrProprietary `xml:"Rsn,omitempty" json:"reason,omitempty"`
	AdditionalInfo []string           `xml:"AddtlInf,omitempty" json:"additional_info,omitempty"`
}

func marshalDocument(doc interface{}) ([]byte, error) {
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
