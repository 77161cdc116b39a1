package iso20022

import "encoding/xml"

// Camt055Document is a CustomerPaymentCancellationRequest: a bank client
// asking the engine to cancel a previously submitted payment.
type Camt055Document struct {
	XMLName         xml.Name                    `xml:"Document" json:"-"`
	Xmlns           string                      `xml:"xmlns,attr" json:"-"`
	CstmrPmtCxlReq  CustomerPaymentCancellation `xml:"CstmrPmtCxlReq" json:"cstmr_pmt_cxl_req"`
}

type CustomerPaymentCancellation struct {
	Assgnmt  CaseAssignment               `xml:"Assgnmt" json:"assgnmt"`
	Undrlyg  []UnderlyingCancellation     `xml:"Undrlyg" json:"undrlyg"`
}

type CaseAssignment struct {
	ID      string `xml:"Id" json:"id"`
	Assgnr  string `xml:"Assgnr>Pty>Nm,omitempty" json:"assgnr,omitempty"`
	Assgne  string `xml:"Assgne>Pty>Nm,omitempty" json:"assgne,omitempty"`
	CreDtTm string `xml:"CreDtTm" json:"cre_dt_tm"`
}

type UnderlyingCancellation struct {
	OrgnlPmtInfAndCxl []OriginalPaymentInstructionCancellation `xml:"OrgnlPmtInfAndCxl,omitempty" json:"orgnl_pmt_inf_and_cxl,omitempty"`
}

type OriginalPaymentInstructionCancellation struct {
	OrgnlPmtInfID string                      `xml:"OrgnlPmtInfId" json:"orgnl_pmt_inf_id"`
	TxInf         []CancellationTransaction   `xml:"TxInf,omitempty" json:"tx_inf,omitempty"`
}

type CancellationTransaction struct {
	CxlID           string                       `xml:"CxlId,omitempty" json:"cxl_id,omitempty"`
	OrgnlInstrID    string                       `xml:"OrgnlInstrId,omitempty" json:"orgnl_instr_id,omitempty"`
	OrgnlEndToEndID string                       `xml:"OrgnlEndToEndId,omitempty" json:"orgnl_end_to_end_id,omitempty"`
	OrgnlUETR       string                       `xml:"OrgnlUETR,omitempty" json:"orgnl_uetr,omitempty"`
	OrgnlInstdAmt   *ActiveAmount                `xml:"OrgnlInstdAmt,omitempty" json:"orgnl_instd_amt,omitempty"`
	CxlRsnInf       []CancellationReasonInformation `xml:"CxlRsnInf,omitempty" json:"cxl_rsn_inf,omitempty"`
}

type CancellationReasonInformation struct {
	Reason         *CodeOrProprietary `xml:"Rsn,omitempty" json:"reason,omitempty"`
	AdditionalInfo []string           `xml:"AddtlInf,omitempty" json:"additional_info,omitempty"`
}
