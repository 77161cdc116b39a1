package iso20022

import "encoding/xml"

// Pain002Document is a CustomerPaymentStatusReport: the engine's answer to a
// pain.001, carrying group and per-transaction statuses with reason codes.
type Pain002Document struct {
	XMLName        xml.Name                    `xml:"Document" json:"-"`
	Xmlns          string                      `xml:"xmlns,attr" json:"-"`
	CstmrPmtStsRpt CustomerPaymentStatusReport `xml:"CstmrPmtStsRpt" json:"cstmr_pmt_sts_rpt"`
}

type CustomerPaymentStatusReport struct {
	GrpHdr            StatusGroupHeader            `xml:"GrpHdr" json:"grp_hdr"`
	OrgnlGrpInfAndSts OriginalGroupInformation     `xml:"OrgnlGrpInfAndSts" json:"orgnl_grp_inf_and_sts"`
	OrgnlPmtInfAndSts []OriginalPaymentInstruction `xml:"OrgnlPmtInfAndSts,omitempty" json:"orgnl_pmt_inf_and_sts,omitempty"`
}

type StatusGroupHeader struct {
	MsgID   string `xml:"MsgId" json:"msg_id"`
	CreDtTm string `xml:"CreDtTm" json:"cre_dt_tm"`
}

type OriginalGroupInformation struct {
	OrgnlMsgID   string                    `xml:"OrgnlMsgId" json:"orgnl_msg_id"`
	OrgnlMsgNmID string                    `xml:"OrgnlMsgNmId" json:"orgnl_msg_nm_id"`
	GrpSts       string                    `xml:"GrpSts,omitempty" json:"grp_sts,omitempty"`
	StsRsnInf    []StatusReasonInformation `xml:"StsRsnInf,omitempty" json:"sts_rsn_inf,omitempty"`
}

type OriginalPaymentInstruction struct {
	OrgnlPmtInfID string                     `xml:"OrgnlPmtInfId" json:"orgnl_pmt_inf_id"`
	TxInfAndSts   []PaymentTransactionStatus `xml:"TxInfAndSts,omitempty" json:"tx_inf_and_sts,omitempty"`
}

type PaymentTransactionStatus struct {
	StsID           string                        `xml:"StsId,omitempty" json:"sts_id,omitempty"`
	OrgnlInstrID    string                        `xml:"OrgnlInstrId,omitempty" json:"orgnl_instr_id,omitempty"`
	OrgnlEndToEndID string                        `xml:"OrgnlEndToEndId,omitempty" json:"orgnl_end_to_end_id,omitempty"`
	OrgnlUETR       string                        `xml:"OrgnlUETR,omitempty" json:"orgnl_uetr,omitempty"`
	TxSts           string                        `xml:"TxSts" json:"tx_sts"`
	StsRsnInf       []StatusReasonInformation     `xml:"StsRsnInf,omitempty" json:"sts_rsn_inf,omitempty"`
	OrgnlTxRef      *OriginalTransactionReference `xml:"OrgnlTxRef,omitempty" json:"orgnl_tx_ref,omitempty"`
}

// OriginalTransactionReference echoes identifying fields of the original
// instruction so receivers can reconcile without a lookup.
type OriginalTransactionReference struct {
	Amt *AmountType `xml:"Amt,omitempty" json:"amt,omitempty"`
}
