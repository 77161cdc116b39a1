package iso20022

import "encoding/xml"

// Camt054Document is a BankToCustomerDebitCreditNotification: the async
// advice some rails send instead of (or after) a pacs.002.
type Camt054Document struct {
	XMLName          xml.Name                  `xml:"Document" json:"-"`
	Xmlns            string                    `xml:"xmlns,attr" json:"-"`
	BkToCstmrDbtCdtNtfctn DebitCreditNotification `xml:"BkToCstmrDbtCdtNtfctn" json:"bk_to_cstmr_dbt_cdt_ntfctn"`
}

type DebitCreditNotification struct {
	GrpHdr  StatusGroupHeader      `xml:"GrpHdr" json:"grp_hdr"`
	Ntfctn  []AccountNotification  `xml:"Ntfctn" json:"ntfctn"`
}

type AccountNotification struct {
	ID    string                `xml:"Id" json:"id"`
	Acct  AccountIdentification `xml:"Acct,omitempty" json:"acct,omitempty"`
	Ntry  []NotificationEntry   `xml:"Ntry,omitempty" json:"ntry,omitempty"`
}

type NotificationEntry struct {
	Amt       ActiveAmount       `xml:"Amt" json:"amt"`
	CdtDbtInd string             `xml:"CdtDbtInd" json:"cdt_dbt_ind"`
	Sts       *CodeOrProprietary `xml:"Sts,omitempty" json:"sts,omitempty"`
	BookgDt   *ExecutionDate     `xml:"BookgDt,omitempty" json:"bookg_dt,omitempty"`
	NtryDtls  []EntryDetails     `xml:"NtryDtls,omitempty" json:"ntry_dtls,omitempty"`
}

type EntryDetails struct {
	TxDtls []TransactionDetails `xml:"TxDtls,omitempty" json:"tx_dtls,omitempty"`
}

type TransactionDetails struct {
	Refs TransactionReferences `xml:"Refs" json:"refs"`
}

type TransactionReferences struct {
	EndToEndID string `xml:"EndToEndId,omitempty" json:"end_to_end_id,omitempty"`
	TxID       string `xml:"TxId,omitempty" json:"tx_id,omitempty"`
	UETR       string `xml:"UETR,omitempty" json:"uetr,omitempty"`
}
