package iso20022

import "encoding/xml"

// Pacs008Document is a FIToFICustomerCreditTransfer: the interbank message
// submitted to a clearing rail.
type Pacs008Document struct {
	XMLName        xml.Name                     `xml:"Document" json:"-"`
	Xmlns          string                       `xml:"xmlns,attr" json:"-"`
	FIToFICstmrCdt FIToFICustomerCreditTransfer `xml:"FIToFICstmrCdtTrf" json:"fi_to_fi_cstmr_cdt_trf"`
}

type FIToFICustomerCreditTransfer struct {
	GrpHdr      InterbankGroupHeader         `xml:"GrpHdr" json:"grp_hdr"`
	CdtTrfTxInf []InterbankCreditTransferTx  `xml:"CdtTrfTxInf" json:"cdt_trf_tx_inf"`
}

type InterbankGroupHeader struct {
	MsgID    string                `xml:"MsgId" json:"msg_id"`
	CreDtTm  string                `xml:"CreDtTm" json:"cre_dt_tm"`
	NbOfTxs  string                `xml:"NbOfTxs" json:"nb_of_txs"`
	SttlmInf SettlementInformation `xml:"SttlmInf" json:"sttlm_inf"`
}

type SettlementInformation struct {
	SttlmMtd string             `xml:"SttlmMtd" json:"sttlm_mtd"`
	ClrSys   *CodeOrProprietary `xml:"ClrSys,omitempty" json:"clr_sys,omitempty"`
}

type InterbankCreditTransferTx struct {
	PmtID          PaymentIdentification   `xml:"PmtId" json:"pmt_id"`
	PmtTpInf       *PaymentTypeInformation `xml:"PmtTpInf,omitempty" json:"pmt_tp_inf,omitempty"`
	IntrBkSttlmAmt ActiveAmount            `xml:"IntrBkSttlmAmt" json:"intr_bk_sttlm_amt"`
	ChrgBr         string                  `xml:"ChrgBr,omitempty" json:"chrg_br,omitempty"`
	Dbtr           PartyIdentification     `xml:"Dbtr" json:"dbtr"`
	DbtrAcct       AccountIdentification   `xml:"DbtrAcct" json:"dbtr_acct"`
	DbtrAgt        *FinancialInstitution   `xml:"DbtrAgt,omitempty" json:"dbtr_agt,omitempty"`
	CdtrAgt        *FinancialInstitution   `xml:"CdtrAgt,omitempty" json:"cdtr_agt,omitempty"`
	Cdtr           PartyIdentification     `xml:"Cdtr" json:"cdtr"`
	CdtrAcct       AccountIdentification   `xml:"CdtrAcct" json:"cdtr_acct"`
	RmtInf         *RemittanceInformation  `xml:"RmtInf,omitempty" json:"rmt_inf,omitempty"`
}
