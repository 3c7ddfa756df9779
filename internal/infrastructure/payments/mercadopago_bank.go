// Package payments issues boletos through Mercado Pago.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/rs/zerolog"

	"loan-proposal-service/internal/domain/instrument"
	"loan-proposal-service/internal/domain/ports"
)

var (
	ErrMissingAccessToken = errors.New("missing MERCADOPAGO_ACCESS_TOKEN")
	ErrNoDocumentURL      = errors.New("payment has no printable document")
)

// DefaultMethod is Mercado Pago's boleto payment method.
const DefaultMethod = "bolbradesco"

type paymentAPI interface {
	Create(ctx context.Context, request payment.Request) (*payment.Response, error)
	Get(ctx context.Context, id int) (*payment.Response, error)
	Cancel(ctx context.Context, id int) (*payment.Response, error)
}

// Bank is the CollectionsBank backed by Mercado Pago payments. In mock mode no
// call leaves the process.
type Bank struct {
	api      paymentAPI
	method   string
	download *http.Client
	log      zerolog.Logger

	mock      bool
	mu        sync.Mutex
	mockSeq   int
	mockState map[string]instrument.Situacao
}

var _ ports.CollectionsBank = (*Bank)(nil)

type Options struct {
	AccessToken string
	Mock        bool
	Method      string
}

func NewBank(o Options, log zerolog.Logger) (*Bank, error) {
	b := &Bank{
		method:    o.Method,
		download:  &http.Client{Timeout: 20 * time.Second},
		log:       log,
		mockState: map[string]instrument.Situacao{},
	}
	if b.method == "" {
		b.method = DefaultMethod
	}
	if o.Mock {
		b.mock = true
		log.Warn().Msg("payments: mercado pago mock mode enabled")
		return b, nil
	}
	if o.AccessToken == "" {
		return nil, ErrMissingAccessToken
	}
	cfg, err := config.New(o.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("mercado pago config: %w", err)
	}
	b.api = payment.NewClient(cfg)
	log.Info().Str("method", b.method).Msg("payments: mercado pago client initialized")
	return b, nil
}

// mpView holds the response fields this adapter reads.
type mpView struct {
	ID                 int64  `json:"id"`
	Status             string `json:"status"`
	StatusDetail       string `json:"status_detail"`
	TransactionDetails struct {
		ExternalResourceURL string `json:"external_resource_url"`
		DigitableLine       string `json:"digitable_line"`
	} `json:"transaction_details"`
	Barcode struct {
		Content string `json:"content"`
	} `json:"barcode"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode    string `json:"qr_code"`
			TicketURL string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

func viewOf(resp *payment.Response) (mpView, error) {
	var v mpView
	if resp == nil {
		return v, errors.New("empty payment response")
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return v, err
	}
	err = json.Unmarshal(b, &v)
	return v, err
}

func (b *Bank) IssueInstrument(ctx context.Context, req ports.IssueRequest) (ports.IssuedInstrument, error) {
	if b.mock {
		return b.mockIssue(req), nil
	}

	idType := "CPF"
	if len(req.Debtor.TaxID) == 14 {
		idType = "CNPJ"
	}
	payload, err := json.Marshal(map[string]any{
		"transaction_amount": req.Amount.Round(2).InexactFloat64(),
		"payment_method_id":  b.method,
		"description":        fmt.Sprintf("Parcela %d da proposta %s", req.InstallmentNumber, req.ProposalID),
		"external_reference": fmt.Sprintf("%s-%02d", req.ProposalID, req.InstallmentNumber),
		"date_of_expiration": endOfDay(req.DueDate).Format(time.RFC3339),
		"payer": map[string]any{
			"email":      req.Debtor.Email,
			"first_name": req.Debtor.Name,
			"identification": map[string]string{
				"type":   idType,
				"number": req.Debtor.TaxID,
			},
		},
	})
	if err != nil {
		return ports.IssuedInstrument{}, err
	}
	var mpReq payment.Request
	if err := json.Unmarshal(payload, &mpReq); err != nil {
		return ports.IssuedInstrument{}, fmt.Errorf("build payment request: %w", err)
	}

	resp, err := b.api.Create(ctx, mpReq)
	if err != nil {
		return ports.IssuedInstrument{}, err
	}
	v, err := viewOf(resp)
	if err != nil {
		return ports.IssuedInstrument{}, err
	}
	line := v.TransactionDetails.DigitableLine
	if line == "" {
		line = v.Barcode.Content
	}
	b.log.Info().Int64("payment_id", v.ID).Str("proposal_id", req.ProposalID).
		Int("installment", req.InstallmentNumber).Str("status", v.Status).Msg("payments: boleto issued")
	return ports.IssuedInstrument{
		ExternalRef: strconv.FormatInt(v.ID, 10),
		Situacao:    SituacaoFor(v.Status, v.StatusDetail),
		PixPayload:  v.PointOfInteraction.TransactionData.QRCode,
		BarcodeLine: line,
	}, nil
}

func (b *Bank) CancelInstrument(ctx context.Context, externalRef string) error {
	if b.mock {
		b.mu.Lock()
		b.mockState[externalRef] = instrument.SituacaoCanceled
		b.mu.Unlock()
		return nil
	}
	id, err := paymentID(externalRef)
	if err != nil {
		return err
	}
	if _, err := b.api.Cancel(ctx, id); err != nil {
		return err
	}
	b.log.Info().Str("payment_id", externalRef).Msg("payments: boleto canceled")
	return nil
}

func (b *Bank) GetInstrument(ctx context.Context, externalRef string) (ports.IssuedInstrument, error) {
	if b.mock {
		b.mu.Lock()
		defer b.mu.Unlock()
		s, ok := b.mockState[externalRef]
		if !ok {
			s = instrument.SituacaoToBeReceived
		}
		return ports.IssuedInstrument{ExternalRef: externalRef, Situacao: s}, nil
	}
	v, err := b.get(ctx, externalRef)
	if err != nil {
		return ports.IssuedInstrument{}, err
	}
	return ports.IssuedInstrument{
		ExternalRef: externalRef,
		Situacao:    SituacaoFor(v.Status, v.StatusDetail),
		PixPayload:  v.PointOfInteraction.TransactionData.QRCode,
		BarcodeLine: v.TransactionDetails.DigitableLine,
	}, nil
}

// FetchInstrumentPDF downloads the printable boleto linked from the payment.
func (b *Bank) FetchInstrumentPDF(ctx context.Context, externalRef string) ([]byte, error) {
	if b.mock {
		return []byte("%PDF-1.4\n% mock boleto " + externalRef + "\n%%EOF\n"), nil
	}
	v, err := b.get(ctx, externalRef)
	if err != nil {
		return nil, err
	}
	url := v.TransactionDetails.ExternalResourceURL
	if url == "" {
		url = v.PointOfInteraction.TransactionData.TicketURL
	}
	if url == "" {
		return nil, ErrNoDocumentURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.download.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download boleto %s: http %d", externalRef, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 10<<20))
}

func (b *Bank) get(ctx context.Context, externalRef string) (mpView, error) {
	id, err := paymentID(externalRef)
	if err != nil {
		return mpView{}, err
	}
	resp, err := b.api.Get(ctx, id)
	if err != nil {
		return mpView{}, err
	}
	return viewOf(resp)
}

func (b *Bank) mockIssue(req ports.IssueRequest) ports.IssuedInstrument {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mockSeq++
	ref := fmt.Sprintf("mock%d%04d", time.Now().UTC().Unix(), b.mockSeq)
	b.mockState[ref] = instrument.SituacaoToBeReceived
	return ports.IssuedInstrument{
		ExternalRef: ref,
		Situacao:    instrument.SituacaoToBeReceived,
		PixPayload:  "00020126mock" + ref,
		BarcodeLine: fmt.Sprintf("23790.00000 %s %02d", ref, req.InstallmentNumber),
	}
}

// SituacaoFor maps a Mercado Pago payment status to an instrument situacao.
func SituacaoFor(status, detail string) instrument.Situacao {
	switch status {
	case "approved", "authorized":
		return instrument.SituacaoReceived
	case "in_process", "in_mediation":
		return instrument.SituacaoProcessing
	case "pending":
		return instrument.SituacaoToBeReceived
	case "cancelled":
		if detail == "expired" {
			return instrument.SituacaoOverdue
		}
		return instrument.SituacaoCanceled
	case "refunded", "charged_back":
		return instrument.SituacaoCanceled
	case "rejected":
		return instrument.SituacaoFailed
	}
	return instrument.SituacaoIssued
}

func paymentID(ref string) (int, error) {
	id, err := strconv.Atoi(ref)
	if err != nil {
		return 0, fmt.Errorf("invalid mercado pago payment id %q", ref)
	}
	return id, nil
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, time.UTC)
}
