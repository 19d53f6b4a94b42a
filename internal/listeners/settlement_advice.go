package listeners

import (
	"context"
	"encoding/xml"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerx/backend/internal/events"
	"github.com/ledgerx/backend/internal/models"
	"github.com/moov-io/iso20022/pkg/common"
	"github.com/moov-io/iso20022/pkg/pacs_v08"
)

const (
	StatusSettled  = "ACSC"
	StatusRejected = "RJCT"
)

// AdviceSink receives the rendered pacs.002 document.
type AdviceSink func(ctx context.Context, transactionID, document string) error

// LogSink writes the document to the process log.
func LogSink(ctx context.Context, transactionID, document string) error {
	log.Printf("[ISO20022] pacs.002 for %s:\n%s", transactionID, document)
	return nil
}

// SettlementAdvice renders a pacs.002 payment status report for every settlement outcome.
type SettlementAdvice struct {
	sink AdviceSink
	now  func() time.Time
}

func NewSettlementAdvice(sink AdviceSink) *SettlementAdvice {
	if sink == nil {
		sink = LogSink
	}
	return &SettlementAdvice{sink: sink, now: time.Now}
}

func (a *SettlementAdvice) Attach(bus *events.Bus) {
	bus.Subscribe(models.EventTransactionCreated, a.Handle)
	bus.Subscribe(models.EventTransactionFailed, a.Handle)
}

func (a *SettlementAdvice) Handle(ctx context.Context, event models.TransactionEvent) {
	status := StatusSettled
	if event.Type == models.EventTransactionFailed {
		status = StatusRejected
	}

	document, err := ConvertToXML(a.StatusReport(event, status))
	if err != nil {
		log.Printf("[ISO20022] Failed to render advice for %s: %v", event.TransactionID, err)
		return
	}
	if err := a.sink(ctx, event.TransactionID, document); err != nil {
		log.Printf("[ISO20022] Failed to deliver advice for %s: %v", event.TransactionID, err)
	}
}

// StatusReport builds the pacs.002 document for one transaction.
func (a *SettlementAdvice) StatusReport(event models.TransactionEvent, status string) *pacs_v08.FIToFIPaymentStatusReportV08 {
	txID := max35(event.TransactionID)

	return &pacs_v08.FIToFIPaymentStatusReportV08{
		GrpHdr: pacs_v08.GroupHeader53{
			MsgId:   common.Max35Text(max35(uuid.NewString())),
			CreDtTm: common.ISODateTime(a.now().UTC()),
		},
		TxInfAndSts: []pacs_v08.PaymentTransaction80{
			{
				OrgnlInstrId:    &[]common.Max35Text{common.Max35Text(txID)}[0],
				OrgnlEndToEndId: &[]common.Max35Text{common.Max35Text(txID)}[0],
				OrgnlTxId:       &[]common.Max35Text{common.Max35Text(txID)}[0],
				TxSts:           &[]pacs_v08.ExternalPaymentTransactionStatus1Code{pacs_v08.ExternalPaymentTransactionStatus1Code(status)}[0],
			},
		},
	}
}

func ConvertToXML(doc interface{}) (string, error) {
	xmlData, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal XML: %w", err)
	}
	return xml.Header + string(xmlData), nil
}

// max35 fits an identifier into Max35Text. UUIDs lose their hyphens.
func max35(id string) string {
	if len(id) <= 35 {
		return id
	}
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 35 {
		id = id[:35]
	}
	return id
}
