package iso20022

import "encoding/xml"

// Camt056Document is a FIToFIPaymentCancellationRequest: the interbank
// cancellation the engine issues to a rail that supports recalls.
type Camt056Document struct {
	XMLName        xml.Name                  `xml:"Document" json:"-"`
	Xmlns          string                    `xml:"xmlns,attr" json:"-"`
	FIToFIPmtCxlReq FIToFIPaymentCancellation `xml:"FIToFIPmtCxlReq" json:"fi_to_fi_pmt_cxl_req"`
}

type FIToFIPaymentCancellation struct {
	Assgnmt CaseAssignment                  `xml:"Assgnmt" json:"assgnmt"`
	Undrlyg []UnderlyingInterbankCancel     `xml:"Undrlyg" json:"undrlyg"`
}

type UnderlyingInterbankCancel struct {
	TxInf []InterbankCancellationTx `xml:"TxInf,omitempty" json:"tx_inf,omitempty"`
}

type InterbankCancellationTx struct {
	CxlID                string                          `xml:"CxlId,omitempty" json:"cxl_id,omitempty"`
	OrgnlGrpInf          *OriginalGroupReference         `xml:"OrgnlGrpInf,omitempty" json:"orgnl_grp_inf,omitempty"`
	OrgnlInstrID         string                          `xml:"OrgnlInstrId,omitempty" json:"orgnl_instr_id,omitempty"`
	OrgnlEndToEndID      string                          `xml:"OrgnlEndToEndId,omitempty" json:"orgnl_end_to_end_id,omitempty"`
	OrgnlUETR            string                          `xml:"OrgnlUETR,omitempty" json:"orgnl_uetr,omitempty"`
	OrgnlIntrBkSttlmAmt  *ActiveAmount                   `xml:"OrgnlIntrBkSttlmAmt,omitempty" json:"orgnl_intr_bk_sttlm_amt,omitempty"`
	CxlRsnInf            []CancellationReasonInformation `xml:"CxlRsnInf,omitempty" json:"cxl_rsn_inf,omitempty"`
}

type OriginalGroupReference struct {
	OrgnlMsgID   string `xml:"OrgnlMsgId" json:"orgnl_msg_id"`
	OrgnlMsgNmID string `xml:"OrgnlMsgNmId" json:"orgnl_msg_nm_id"`
}
