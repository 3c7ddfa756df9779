package http

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"loan-proposal-service/internal/usecase/formalization"
)

type FormalizationHandler struct{ uc *formalization.Usecase }

func NewFormalizationHandler(uc *formalization.Usecase) *FormalizationHandler {
	return &FormalizationHandler{uc: uc}
}

func (h *FormalizationHandler) IssueInstruments(c echo.Context) error {
	id, ok, err := pathProposalID(c)
	if !ok {
		return err
	}
	items, err := h.uc.IssueCollectionInstruments(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err, items)
	}
	return c.JSON(http.StatusCreated, map[string]any{"items": items})
}

type extendReq struct {
	InstrumentIDs []string `json:"instrument_ids" validate:"required,min=1,dive,required"`
	NewDueDate    string   `json:"new_due_date"   validate:"required,datetime=2006-01-02"`
}

func (h *FormalizationHandler) ExtendDueDates(c echo.Context) error {
	id, ok, err := pathProposalID(c)
	if !ok {
		return err
	}
	var req extendReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	items, err := h.uc.ExtendDueDates(c.Request().Context(), id, req.InstrumentIDs, parseDate(req.NewDueDate))
	if err != nil {
		return writeError(c, err, items)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *FormalizationHandler) SettlementQuote(c echo.Context) error {
	id, ok, err := pathProposalID(c)
	if !ok {
		return err
	}
	q, err := h.uc.GetSettlementQuote(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusOK, q)
}

type installmentReq struct {
	Amount  json.Number `json:"amount"   validate:"required,dec2"`
	DueDate string      `json:"due_date" validate:"required,datetime=2006-01-02"`
}

type settlementReq struct {
	NewTotal     json.Number      `json:"new_total"    validate:"required,dec2"`
	Installments []installmentReq `json:"installments" validate:"required,min=1,max=480,dive"`
	Confirm      bool             `json:"confirm"`
}

func (h *FormalizationHandler) ApplySettlement(c echo.Context) error {
	id, ok, err := pathProposalID(c)
	if !ok {
		return err
	}
	var req settlementReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	in := formalization.SettlementInput{ProposalID: id, NewTotal: decimalOf(req.NewTotal), Confirm: req.Confirm}
	for i, line := range req.Installments {
		in.Installments = append(in.Installments, formalization.PlannedInstallment{
			Number:  i + 1,
			Amount:  decimalOf(line.Amount),
			DueDate: parseDate(line.DueDate),
		})
	}
	items, err := h.uc.ApplySettlementDiscount(c.Request().Context(), in)
	if err != nil {
		return writeError(c, err, items)
	}
	return c.JSON(http.StatusCreated, map[string]any{"items": items})
}

func (h *FormalizationHandler) RefreshPayments(c echo.Context) error {
	id, ok, err := pathProposalID(c)
	if !ok {
		return err
	}
	sit, err := h.uc.RefreshPaymentSituation(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err, sit)
	}
	return c.JSON(http.StatusOK, sit)
}

func (h *FormalizationHandler) RegenerateSignature(c echo.Context) error {
	id, ok, err := pathProposalID(c)
	if !ok {
		return err
	}
	link, err := h.uc.RegenerateSignatureLink(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusOK, link)
}

func (h *FormalizationHandler) RetryTask(c echo.Context) error {
	task, err := h.uc.RetryTask(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err, task)
	}
	return c.JSON(http.StatusOK, task)
}

type signatureEventReq struct {
	EnvelopeID string `json:"envelope_id" validate:"required"`
	Event      string `json:"event"       validate:"required"`
}

// SignatureWebhook is mounted behind the HMAC verifier, not the JWT guard.
func (h *FormalizationHandler) SignatureWebhook(c echo.Context) error {
	var req signatureEventReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	res, err := h.uc.HandleSignatureWebhook(c.Request().Context(), formalization.SignatureEvent(req))
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusOK, res)
}
