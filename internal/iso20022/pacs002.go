package iso20022

import "encoding/xml"

// Pacs002Document is a FIToFIPaymentStatusReport: the rail's acknowledgement
// or result for a submitted pacs.008, correlated to the payment by UETR.
type Pacs002Document struct {
	XMLName        xml.Name                `xml:"Document" json:"-"`
	Xmlns          string                  `xml:"xmlns,attr" json:"-"`
	FIToFIPmtStsRpt FIToFIPaymentStatusReport `xml:"FIToFIPmtStsRpt" json:"fi_to_fi_pmt_sts_rpt"`
}

type FIToFIPaymentStatusReport struct {
	GrpHdr            StatusGroupHeader          `xml:"GrpHdr" json:"grp_hdr"`
	OrgnlGrpInfAndSts *OriginalGroupInformation  `xml:"OrgnlGrpInfAndSts,omitempty" json:"orgnl_grp_inf_and_sts,omitempty"`
	TxInfAndSts       []InterbankTxStatus        `xml:"TxInfAndSts,omitempty" json:"tx_inf_and_sts,omitempty"`
}

type InterbankTxStatus struct {
	OrgnlInstrID    string                    `xml:"OrgnlInstrId,omitempty" json:"orgnl_instr_id,omitempty"`
	OrgnlEndToEndID string                    `xml:"OrgnlEndToEndId,omitempty" json:"orgnl_end_to_end_id,omitempty"`
	OrgnlTxID       string                    `xml:"OrgnlTxId,omitempty" json:"orgnl_tx_id,omitempty"`
	OrgnlUETR       string                    `xml:"OrgnlUETR,omitempty" json:"orgnl_uetr,omitempty"`
	TxSts           string                    `xml:"TxSts" json:"tx_sts"`
	StsRsnInf       []StatusReasonInformation `xml:"StsRsnInf,omitempty" json:"sts_rsn_inf,omitempty"`
	AccptncDtTm     string                    `xml:"AccptncDtTm,omitempty" json:"accptnc_dt_tm,omitempty"`
	ClrSysRef       string                    `xml:"ClrSysRef,omitempty" json:"clr_sys_ref,omitempty"`
}
