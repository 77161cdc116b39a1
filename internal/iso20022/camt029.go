package iso20022

import "encoding/xml"

// Camt029Document is a ResolutionOfInvestigation: the outcome of a
// cancellation request, returned to the client that cancelled.
type Camt029Document struct {
	XMLName       xml.Name                  `xml:"Document" json:"-"`
	Xmlns         string                    `xml:"xmlns,attr" json:"-"`
	RsltnOfInvstgtn ResolutionOfInvestigation `xml:"RsltnOfInvstgtn" json:"rsltn_of_invstgtn"`
}

type ResolutionOfInvestigation struct {
	Assgnmt  CaseAssignment          `xml:"Assgnmt" json:"assgnmt"`
	Sts      InvestigationStatus     `xml:"Sts" json:"sts"`
	CxlDtls  []CancellationDetails   `xml:"CxlDtls,omitempty" json:"cxl_dtls,omitempty"`
}

type InvestigationStatus struct {
	Conf string `xml:"Conf,omitempty" json:"conf,omitempty"`
}

type CancellationDetails struct {
	TxInfAndSts []CancellationStatusTx `xml:"TxInfAndSts,omitempty" json:"tx_inf_and_sts,omitempty"`
}

type CancellationStatusTx struct {
	CxlStsID        string                          `xml:"CxlStsId,omitempty" json:"cxl_sts_id,omitempty"`
	OrgnlInstrID    string                          `xml:"OrgnlInstrId,omitempty" json:"orgnl_instr_id,omitempty"`
	OrgnlEndToEndID string                          `xml:"OrgnlEndToEndId,omitempty" json:"orgnl_end_to_end_id,omitempty"`
	OrgnlUETR       string                          `xml:"OrgnlUETR,omitempty" json:"orgnl_uetr,omitempty"`
	TxCxlSts        string                          `xml:"TxCxlSts" json:"tx_cxl_sts"`
	CxlStsRsnInf    []CancellationReasonInformation `xml:"CxlStsRsnInf,omitempty" json:"cxl_sts_rsn_inf,omitempty"`
}
