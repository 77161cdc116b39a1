package iso20022

import "encoding/xml"

// Pain001Document is a CustomerCreditTransferInitiation: the instruction a
// bank client submits to start one or more credit transfers.
type Pain001Document struct {
	XMLName          xml.Name                         `xml:"Document" json:"-"`
	Xmlns            string                           `xml:"xmlns,attr" json:"-"`
	CstmrCdtTrfInitn CustomerCreditTransferInitiation `xml:"CstmrCdtTrfInitn" json:"cstmr_cdt_trf_initn"`
}

type CustomerCreditTransferInitiation struct {
	GrpHdr GroupHeader          `xml:"GrpHdr" json:"grp_hdr"`
	PmtInf []PaymentInstruction `xml:"PmtInf" json:"pmt_inf"`
}

type GroupHeader struct {
	MsgID    string              `xml:"MsgId" json:"msg_id"`
	CreDtTm  string              `xml:"CreDtTm" json:"cre_dt_tm"`
	NbOfTxs  string              `xml:"NbOfTxs" json:"nb_of_txs"`
	CtrlSum  string              `xml:"CtrlSum,omitempty" json:"ctrl_sum,omitempty"`
	InitgPty PartyIdentification `xml:"InitgPty" json:"initg_pty"`
}

// PaymentInstruction is one PmtInf block: shared debtor side plus the
// individual credit transfer transactions drawn on it.
type PaymentInstruction struct {
	PmtInfID    string                      `xml:"PmtInfId" json:"pmt_inf_id"`
	PmtMtd      string                      `xml:"PmtMtd" json:"pmt_mtd"`
	PmtTpInf    *PaymentTypeInformation     `xml:"PmtTpInf,omitempty" json:"pmt_tp_inf,omitempty"`
	ReqdExctnDt *ExecutionDate              `xml:"ReqdExctnDt,omitempty" json:"reqd_exctn_dt,omitempty"`
	Dbtr        PartyIdentification         `xml:"Dbtr" json:"dbtr"`
	DbtrAcct    AccountIdentification       `xml:"DbtrAcct" json:"dbtr_acct"`
	DbtrAgt     *FinancialInstitution       `xml:"DbtrAgt,omitempty" json:"dbtr_agt,omitempty"`
	CdtTrfTxInf []CreditTransferTransaction `xml:"CdtTrfTxInf" json:"cdt_trf_tx_inf"`
}

// CreditTransferTransaction is one CdtTrfTxInf element: a single payment.
type CreditTransferTransaction struct {
	PmtID    PaymentIdentification  `xml:"PmtId" json:"pmt_id"`
	Amt      AmountType             `xml:"Amt" json:"amt"`
	CdtrAgt  *FinancialInstitution  `xml:"CdtrAgt,omitempty" json:"cdtr_agt,omitempty"`
	Cdtr     PartyIdentification    `xml:"Cdtr" json:"cdtr"`
	CdtrAcct AccountIdentification  `xml:"CdtrAcct" json:"cdtr_acct"`
	RmtInf   *RemittanceInformation `xml:"RmtInf,omitempty" json:"rmt_inf,omitempty"`
}

type AmountType struct {
	InstdAmt ActiveAmount `xml:"InstdAmt" json:"instd_amt"`
}
