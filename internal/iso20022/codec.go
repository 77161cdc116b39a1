package iso20022

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewMessageID returns a fresh Max35Text-safe message identifier.
func NewMessageID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FormatDateTime renders t the way CreDtTm elements carry timestamps.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Instruction is the canonical view of one credit transfer extracted from a
// pain.001, the unit that becomes a persisted Payment.
type Instruction struct {
	MsgID                  string
	PmtInfID               string
	InstructionID          string
	EndToEndID             string
	UETR                   UETR
	Amount                 Money
	DebtorName             string
	DebtorAccount          string
	DebtorAgentBIC         string
	CreditorName           string
	CreditorAccount        string
	CreditorAgentBIC       string
	ServiceLevel           string
	LocalInstrument        string
	CategoryPurpose        string
	InstructionPriority    string
	RequestedExecutionDate string
	RemittanceInfo         string
}

// DecodePain001 unmarshals and namespace-checks a pain.001 document. Call
// Validate before trusting its contents.
func DecodePain001(data []byte) (*Pain001Document, error) {
	var doc Pain001Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshalling pain.001: %w", err)
	}
	if doc.Xmlns != "" && !strings.HasPrefix(doc.Xmlns, "urn:iso:std:iso:20022:tech:xsd:pain.001.") {
		return nil, fmt.Errorf("unexpected document namespace %q, want pain.001", doc.Xmlns)
	}
	return &doc, nil
}

// Validate runs the structural checks acceptance performs before a payment is
// created: required identifiers, length bounds, parseable positive amounts,
// known currencies, and a present creditor account. Business rules live in
// the saga's validation step, not here.
func (doc *Pain001Document) Validate() error {
	grpHdr := doc.CstmrCdtTrfInitn.GrpHdr
	if grpHdr.MsgID == "" {
		return fmt.Errorf("GrpHdr/MsgId is required")
	}
	if len(grpHdr.MsgID) > MaxMessageIDLength {
		return fmt.Errorf("GrpHdr/MsgId exceeds %d characters", MaxMessageIDLength)
	}
	if grpHdr.CreDtTm == "" {
		return fmt.Errorf("GrpHdr/CreDtTm is required")
	}
	if len(doc.CstmrCdtTrfInitn.PmtInf) == 0 {
		return fmt.Errorf("at least one PmtInf is required")
	}

	totalTxs := 0
	for i, pmtInf := range doc.CstmrCdtTrfInitn.PmtInf {
		if pmtInf.PmtInfID == "" {
			return fmt.Errorf("PmtInf[%d]/PmtInfId is required", i)
		}
		if pmtInf.DbtrAcct.Ref() == "" {
			return fmt.Errorf("PmtInf[%d]/DbtrAcct is required", i)
		}
		if len(pmtInf.CdtTrfTxInf) == 0 {
			return fmt.Errorf("PmtInf[%d] has no CdtTrfTxInf", i)
		}

		for j, tx := range pmtInf.CdtTrfTxInf {
			where := fmt.Sprintf("PmtInf[%d]/CdtTrfTxInf[%d]", i, j)
			if tx.PmtID.EndToEndID == "" {
				return fmt.Errorf("%s/PmtId/EndToEndId is required", where)
			}
			if len(tx.PmtID.EndToEndID) > MaxMessageIDLength {
				return fmt.Errorf("%s/PmtId/EndToEndId exceeds %d characters", where, MaxMessageIDLength)
			}
			if tx.PmtID.UETR != "" {
				if _, err := ParseUETR(tx.PmtID.UETR); err != nil {
					return fmt.Errorf("%s/PmtId/UETR: %w", where, err)
				}
			}

			amount, err := NewMoney(tx.Amt.InstdAmt.Value, tx.Amt.InstdAmt.Ccy)
			if err != nil {
				return fmt.Errorf("%s/Amt/InstdAmt: %w", where, err)
			}
			if !amount.IsPositive() {
				return fmt.Errorf("%s/Amt/InstdAmt: amount must be greater than zero", where)
			}
			if tx.CdtrAcct.Ref() == "" {
				return fmt.Errorf("%s/CdtrAcct is required", where)
			}
			totalTxs++
		}
	}

	if grpHdr.NbOfTxs != "" {
		declared, err := strconv.Atoi(grpHdr.NbOfTxs)
		if err != nil {
			return fmt.Errorf("GrpHdr/NbOfTxs %q is not a number", grpHdr.NbOfTxs)
		}
		if declared != totalTxs {
			return fmt.Errorf("GrpHdr/NbOfTxs declares %d transactions, document carries %d", declared, totalTxs)
		}
	}

	return nil
}

// ExtractInstructions explodes a validated pain.001 into canonical
// instructions, generating a UETR for any transaction that lacks one.
func ExtractInstructions(doc *Pain001Document) ([]Instruction, error) {
	var instructions []Instruction
	msgID := doc.CstmrCdtTrfInitn.GrpHdr.MsgID

	for _, pmtInf := range doc.CstmrCdtTrfInitn.PmtInf {
		for _, tx := range pmtInf.CdtTrfTxInf {
			amount, err := NewMoney(tx.Amt.InstdAmt.Value, tx.Amt.InstdAmt.Ccy)
			if err != nil {
				return nil, fmt.Errorf("extracting amount for %q: %w", tx.PmtID.EndToEndID, err)
			}

			uetr := NewUETR()
			if tx.PmtID.UETR != "" {
				if uetr, err = ParseUETR(tx.PmtID.UETR); err != nil {
					return nil, fmt.Errorf("extracting UETR for %q: %w", tx.PmtID.EndToEndID, err)
				}
			}

			inst := Instruction{
				MsgID:         msgID,
				PmtInfID:      pmtInf.PmtInfID,
				InstructionID: tx.PmtID.InstrID,
				EndToEndID:    tx.PmtID.EndToEndID,
				UETR:          uetr,
				Amount:        amount,
				DebtorName:    pmtInf.Dbtr.Name,
				DebtorAccount: pmtInf.DbtrAcct.Ref(),
				CreditorName:  tx.Cdtr.Name,
				CreditorAccount: tx.CdtrAcct.Ref(),
			}
			if pmtInf.DbtrAgt != nil {
				inst.DebtorAgentBIC = pmtInf.DbtrAgt.BICFI
			}
			if tx.CdtrAgt != nil {
				inst.CreditorAgentBIC = tx.CdtrAgt.BICFI
			}
			if pmtInf.PmtTpInf != nil {
				inst.ServiceLevel = pmtInf.PmtTpInf.SvcLvl.Code()
				inst.LocalInstrument = pmtInf.PmtTpInf.LclInstrm.Code()
				inst.CategoryPurpose = pmtInf.PmtTpInf.CtgyPurp.Code()
				inst.InstructionPriority = pmtInf.PmtTpInf.InstrPrty
			}
			if pmtInf.ReqdExctnDt != nil {
				inst.RequestedExecutionDate = pmtInf.ReqdExctnDt.Dt
				if inst.RequestedExecutionDate == "" {
					inst.RequestedExecutionDate = pmtInf.ReqdExctnDt.DtTm
				}
			}
			if tx.RmtInf != nil && len(tx.RmtInf.Unstructured) > 0 {
				inst.RemittanceInfo = strings.Join(tx.RmtInf.Unstructured, " ")
			}

			instructions = append(instructions, inst)
		}
	}

	return instructions, nil
}

// Pain002Params drives construction of a status report.
type Pain002Params struct {
	MessageID         string
	CreatedAt         time.Time
	OriginalMsgID     string
	OriginalMsgNameID string
	GroupStatus       TransactionStatus
	GroupReason       ReasonCode
	Transactions      []Pain002Transaction
}

// Pain002Transaction is one TxInfAndSts entry of the report.
type Pain002Transaction struct {
	OriginalPmtInfID   string
	OriginalInstrID    string
	OriginalEndToEndID string
	UETR               UETR
	Status             TransactionStatus
	Reason             ReasonCode
	AdditionalInfo     string
	Amount             *Money
}

// BuildPain002 assembles a pain.002 document. The round-trip law holds:
// OrgnlMsgId, OrgnlEndToEndId, OrgnlUETR and the echoed amount come straight
// from the originating pain.001.
func BuildPain002(p Pain002Params) *Pain002Document {
	grpInf := OriginalGroupInformation{
		OrgnlMsgID:   p.OriginalMsgID,
		OrgnlMsgNmID: p.OriginalMsgNameID,
		GrpSts:       string(p.GroupStatus),
	}
	if p.GroupReason != "" {
		grpInf.StsRsnInf = []StatusReasonInformation{{Reason: &CodeOrProprietary{Cd: string(p.GroupReason)}}}
	}

	byPmtInf := map[string][]PaymentTransactionStatus{}
	var order []string
	for _, tx := range p.Transactions {
		sts := PaymentTransactionStatus{
			OrgnlInstrID:    tx.OriginalInstrID,
			OrgnlEndToEndID: tx.OriginalEndToEndID,
			OrgnlUETR:       tx.UETR.Hyphenated(),
			TxSts:           string(tx.Status),
		}
		if tx.Reason != "" {
			rsnInf := StatusReasonInformation{Reason: &CodeOrProprietary{Cd: string(tx.Reason)}}
			if tx.AdditionalInfo != "" {
				rsnInf.AdditionalInfo = []string{tx.AdditionalInfo}
			}
			sts.StsRsnInf = []StatusReasonInformation{rsnInf}
		}
		if tx.Amount != nil {
			sts.OrgnlTxRef = &OriginalTransactionReference{
				Amt: &AmountType{InstdAmt: ActiveAmount{Ccy: tx.Amount.Currency, Value: tx.Amount.WireAmount()}},
			}
		}
		if _, seen := byPmtInf[tx.OriginalPmtInfID]; !seen {
			order = append(order, tx.OriginalPmtInfID)
		}
		byPmtInf[tx.OriginalPmtInfID] = append(byPmtInf[tx.OriginalPmtInfID], sts)
	}

	var pmtInfAndSts []OriginalPaymentInstruction
	for _, pmtInfID := range order {
		pmtInfAndSts = append(pmtInfAndSts, OriginalPaymentInstruction{
			OrgnlPmtInfID: pmtInfID,
			TxInfAndSts:   byPmtInf[pmtInfID],
		})
	}

	return &Pain002Document{
		Xmlns: Pain002Namespace,
		CstmrPmtStsRpt: CustomerPaymentStatusReport{
			GrpHdr:            StatusGroupHeader{MsgID: p.MessageID, CreDtTm: FormatDateTime(p.CreatedAt)},
			OrgnlGrpInfAndSts: grpInf,
			OrgnlPmtInfAndSts: pmtInfAndSts,
		},
	}
}

// Encode marshals the document with the XML prolog.
func (doc *Pain002Document) Encode() ([]byte, error) { return marshalDocument(doc) }

// Pacs008Params drives construction of the interbank credit transfer
// submitted to a rail.
type Pacs008Params struct {
	MessageID        string
	CreatedAt        time.Time
	SettlementMethod string
	ClearingSystem   string
	InstructionID    string
	EndToEndID       string
	TransactionID    string
	UETR             UETR
	Amount           Money
	ChargeBearer     string
	ServiceLevel     string
	LocalInstrument  string
	DebtorName       string
	DebtorAccount    string
	DebtorAgentBIC   string
	CreditorName     string
	CreditorAccount  string
	CreditorAgentBIC string
	RemittanceInfo   string
}

// BuildPacs008 assembles the rail-facing credit transfer. UETR travels in the
// hyphenated form interbank wires expect.
func BuildPacs008(p Pacs008Params) *Pacs008Document {
	sttlmInf := SettlementInformation{SttlmMtd: p.SettlementMethod}
	if sttlmInf.SttlmMtd == "" {
		sttlmInf.SttlmMtd = "CLRG"
	}
	if p.ClearingSystem != "" {
		sttlmInf.ClrSys = &CodeOrProprietary{Prtry: p.ClearingSystem}
	}

	tx := InterbankCreditTransferTx{
		PmtID: PaymentIdentification{
			InstrID:    p.InstructionID,
			EndToEndID: p.EndToEndID,
			TxID:       p.TransactionID,
			UETR:       p.UETR.Hyphenated(),
		},
		IntrBkSttlmAmt: ActiveAmount{Ccy: p.Amount.Currency, Value: p.Amount.WireAmount()},
		ChrgBr:         p.ChargeBearer,
		Dbtr:           PartyIdentification{Name: p.DebtorName},
		DbtrAcct:       AccountIdentification{Other: &GenericAccountID{ID: p.DebtorAccount}},
		Cdtr:           PartyIdentification{Name: p.CreditorName},
		CdtrAcct:       AccountIdentification{Other: &GenericAccountID{ID: p.CreditorAccount}},
	}
	if tx.ChrgBr == "" {
		tx.ChrgBr = "SLEV"
	}
	if p.DebtorAgentBIC != "" {
		tx.DbtrAgt = &FinancialInstitution{BICFI: p.DebtorAgentBIC}
	}
	if p.CreditorAgentBIC != "" {
		tx.CdtrAgt = &FinancialInstitution{BICFI: p.CreditorAgentBIC}
	}
	if p.ServiceLevel != "" || p.LocalInstrument != "" {
		tx.PmtTpInf = &PaymentTypeInformation{}
		if p.ServiceLevel != "" {
			tx.PmtTpInf.SvcLvl = &CodeOrProprietary{Cd: p.ServiceLevel}
		}
		if p.LocalInstrument != "" {
			tx.PmtTpInf.LclInstrm = &CodeOrProprietary{Cd: p.LocalInstrument}
		}
	}
	if p.RemittanceInfo != "" {
		tx.RmtInf = &RemittanceInformation{Unstructured: []string{p.RemittanceInfo}}
	}

	return &Pacs008Document{
		Xmlns: Pacs008Namespace,
		FIToFICstmrCdt: FIToFICustomerCreditTransfer{
			GrpHdr: InterbankGroupHeader{
				MsgID:    p.MessageID,
				CreDtTm:  FormatDateTime(p.CreatedAt),
				NbOfTxs:  "1",
				SttlmInf: sttlmInf,
			},
			CdtTrfTxInf: []InterbankCreditTransferTx{tx},
		},
	}
}

func (doc *Pacs008Document) Encode() ([]byte, error) { return marshalDocument(doc) }

// ClearingResult is the flattened view of one rail status entry, whatever
// message it arrived in.
type ClearingResult struct {
	UETR           UETR
	EndToEndID     string
	Status         TransactionStatus
	Reason         ReasonCode
	AdditionalInfo string
	ClearingRef    string
}

// DecodePacs002 unmarshals a rail status report.
func DecodePacs002(data []byte) (*Pacs002Document, error) {
	var doc Pacs002Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshalling pacs.002: %w", err)
	}
	if doc.Xmlns != "" && !strings.HasPrefix(doc.Xmlns, "urn:iso:std:iso:20022:tech:xsd:pacs.002.") {
		return nil, fmt.Errorf("unexpected document namespace %q, want pacs.002", doc.Xmlns)
	}
	return &doc, nil
}

// Results flattens the report's transaction statuses. Entries without a
// parseable UETR are skipped; the caller correlates by EndToEndID then.
func (doc *Pacs002Document) Results() []ClearingResult {
	var results []ClearingResult
	for _, tx := range doc.FIToFIPmtStsRpt.TxInfAndSts {
		result := ClearingResult{
			EndToEndID:  tx.OrgnlEndToEndID,
			Status:      TransactionStatus(tx.TxSts),
			ClearingRef: tx.ClrSysRef,
		}
		if tx.OrgnlUETR != "" {
			if uetr, err := ParseUETR(tx.OrgnlUETR); err == nil {
				result.UETR = uetr
			}
		}
		if len(tx.StsRsnInf) > 0 {
			result.Reason = ReasonCode(tx.StsRsnInf[0].Reason.Code())
			if len(tx.StsRsnInf[0].AdditionalInfo) > 0 {
				result.AdditionalInfo = tx.StsRsnInf[0].AdditionalInfo[0]
			}
		}
		results = append(results, result)
	}
	return results
}

// DecodeCamt054 unmarshals a debit/credit notification.
func DecodeCamt054(data []byte) (*Camt054Document, error) {
	var doc Camt054Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshalling camt.054: %w", err)
	}
	if doc.Xmlns != "" && !strings.HasPrefix(doc.Xmlns, "urn:iso:std:iso:20022:tech:xsd:camt.054.") {
		return nil, fmt.Errorf("unexpected document namespace %q, want camt.054", doc.Xmlns)
	}
	return &doc, nil
}

// Results interprets booked entries as settlement confirmations: a booked
// credit on the notification maps to ACSC for the referenced UETR.
func (doc *Camt054Document) Results() []ClearingResult {
	var results []ClearingResult
	for _, ntfctn := range doc.BkToCstmrDbtCdtNtfctn.Ntfctn {
		for _, entry := range ntfctn.Ntry {
			status := StatusAcceptedSettlementProcess
			if entry.Sts.Code() == "BOOK" {
				status = StatusAcceptedSettled
			}
			for _, details := range entry.NtryDtls {
				for _, tx := range details.TxDtls {
					result := ClearingResult{
						EndToEndID: tx.Refs.EndToEndID,
						Status:     status,
					}
					if tx.Refs.UETR != "" {
						if uetr, err := ParseUETR(tx.Refs.UETR); err == nil {
							result.UETR = uetr
						}
					}
					results = append(results, result)
				}
			}
		}
	}
	return results
}

// CancellationTarget identifies one transaction a camt.055 asks to cancel.
type CancellationTarget struct {
	CancellationID     string
	OriginalPmtInfID   string
	OriginalInstrID    string
	OriginalEndToEndID string
	UETR               UETR
	Reason             string
}

// DecodeCamt055 unmarshals a customer cancellation request.
func DecodeCamt055(data []byte) (*Camt055Document, error) {
	var doc Camt055Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshalling camt.055: %w", err)
	}
	if doc.Xmlns != "" && !strings.HasPrefix(doc.Xmlns, "urn:iso:std:iso:20022:tech:xsd:camt.055.") {
		return nil, fmt.Errorf("unexpected document namespace %q, want camt.055", doc.Xmlns)
	}
	return &doc, nil
}

// Targets flattens the cancellation request to the transactions it names.
func (doc *Camt055Document) Targets() []CancellationTarget {
	var targets []CancellationTarget
	for _, undrlyg := range doc.CstmrPmtCxlReq.Undrlyg {
		for _, pmtInf := range undrlyg.OrgnlPmtInfAndCxl {
			for _, tx := range pmtInf.TxInf {
				target := CancellationTarget{
					CancellationID:     tx.CxlID,
					OriginalPmtInfID:   pmtInf.OrgnlPmtInfID,
					OriginalInstrID:    tx.OrgnlInstrID,
					OriginalEndToEndID: tx.OrgnlEndToEndID,
				}
				if tx.OrgnlUETR != "" {
					if uetr, err := ParseUETR(tx.OrgnlUETR); err == nil {
						target.UETR = uetr
					}
				}
				if len(tx.CxlRsnInf) > 0 {
					target.Reason = tx.CxlRsnInf[0].Reason.Code()
				}
				targets = append(targets, target)
			}
		}
	}
	return targets
}

// Camt056Params drives construction of the interbank cancellation sent to a
// rail that supports recalls.
type Camt056Params struct {
	AssignmentID    string
	Assigner        string
	Assignee        string
	CreatedAt       time.Time
	CancellationID  string
	OriginalMsgID   string
	OriginalMsgNmID string
	InstructionID   string
	EndToEndID      string
	UETR            UETR
	Amount          Money
	ReasonCode      string
}

func BuildCamt056(p Camt056Params) *Camt056Document {
	reason := p.ReasonCode
	if reason == "" {
		reason = string(ReasonCustomerRequest)
	}
	return &Camt056Document{
		Xmlns: Camt056Namespace,
		FIToFIPmtCxlReq: FIToFIPaymentCancellation{
			Assgnmt: CaseAssignment{
				ID:      p.AssignmentID,
				Assgnr:  p.Assigner,
				Assgne:  p.Assignee,
				CreDtTm: FormatDateTime(p.CreatedAt),
			},
			Undrlyg: []UnderlyingInterbankCancel{{
				TxInf: []InterbankCancellationTx{{
					CxlID:               p.CancellationID,
					OrgnlGrpInf:         &OriginalGroupReference{OrgnlMsgID: p.OriginalMsgID, OrgnlMsgNmID: p.OriginalMsgNmID},
					OrgnlInstrID:        p.InstructionID,
					OrgnlEndToEndID:     p.EndToEndID,
					OrgnlUETR:           p.UETR.Hyphenated(),
					OrgnlIntrBkSttlmAmt: &ActiveAmount{Ccy: p.Amount.Currency, Value: p.Amount.WireAmount()},
					CxlRsnInf:           []CancellationReasonInformation{{Reason: &CodeOrProprietary{Cd: reason}}},
				}},
			}},
		},
	}
}

func (doc *Camt056Document) Encode() ([]byte, error) { return marshalDocument(doc) }

// Camt029Params drives construction of the cancellation outcome returned to
// the requesting client.
type Camt029Params struct {
	AssignmentID       string
	Assigner           string
	Assignee           string
	CreatedAt          time.Time
	CancellationStatus CancellationStatus
	OriginalInstrID    string
	OriginalEndToEndID string
	UETR               UETR
	ReasonCode         string
}

func BuildCamt029(p Camt029Params) *Camt029Document {
	tx := CancellationStatusTx{
		CxlStsID:        NewMessageID(),
		OrgnlInstrID:    p.OriginalInstrID,
		OrgnlEndToEndID: p.OriginalEndToEndID,
		OrgnlUETR:       p.UETR.Hyphenated(),
		TxCxlSts:        string(p.CancellationStatus),
	}
	if p.ReasonCode != "" {
		tx.CxlStsRsnInf = []CancellationReasonInformation{{Reason: &CodeOrProprietary{Cd: p.ReasonCode}}}
	}

	return &Camt029Document{
		Xmlns: Camt029Namespace,
		RsltnOfInvstgtn: ResolutionOfInvestigation{
			Assgnmt: CaseAssignment{
				ID:      p.AssignmentID,
				Assgnr:  p.Assigner,
				Assgne:  p.Assignee,
				CreDtTm: FormatDateTime(p.CreatedAt),
			},
			Sts:     InvestigationStatus{Conf: string(p.CancellationStatus)},
			CxlDtls: []CancellationDetails{{TxInfAndSts: []CancellationStatusTx{tx}}},
		},
	}
}

func (doc *Camt029Document) Encode() ([]byte, error) { return marshalDocument(doc) }

// DecodeCamt029 unmarshals a cancellation outcome.
func DecodeCamt029(data []byte) (*Camt029Document, error) {
	var doc Camt029Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshalling camt.029: %w", err)
	}
	if doc.Xmlns != "" && !strings.HasPrefix(doc.Xmlns, "urn:iso:std:iso:20022:tech:xsd:camt.029.") {
		return nil, fmt.Errorf("unexpected document namespace %q, want camt.029", doc.Xmlns)
	}
	return &doc, nil
}

// Outcome returns the resolution's cancellation status and reason, preferring
// the transaction-level status over the assignment confirmation.
func (doc *Camt029Document) Outcome() (CancellationStatus, string) {
	status := CancellationStatus(doc.RsltnOfInvstgtn.Sts.Conf)
	reason := ""
	for _, details := range doc.RsltnOfInvstgtn.CxlDtls {
		for _, tx := range details.TxInfAndSts {
			if tx.TxCxlSts != "" {
				status = CancellationStatus(tx.TxCxlSts)
			}
			if len(tx.CxlStsRsnInf) > 0 && tx.CxlStsRsnInf[0].Reason != nil {
				reason = tx.CxlStsRsnInf[0].Reason.Code()
			}
		}
	}
	return status, reason
}

func (doc *Pain001Document) Encode() ([]byte, error) {
	if doc.Xmlns == "" {
		doc.Xmlns = Pain001Namespace
	}
	return marshalDocument(doc)
}
