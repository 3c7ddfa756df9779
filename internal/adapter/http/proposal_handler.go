package http

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"loan-proposal-service/internal/domain/outbox"
	proposaluc "loan-proposal-service/internal/usecase/proposal"
)

type ProposalHandler struct{ uc *proposaluc.Usecase }

func NewProposalHandler(uc *proposaluc.Usecase) *ProposalHandler { return &ProposalHandler{uc: uc} }

type createProposalReq struct {
	ClientName        string       `json:"client_name"         validate:"required,max=120"`
	ClientTaxID       string       `json:"client_tax_id"       validate:"required,taxid"`
	ClientEmail       string       `json:"client_email"        validate:"omitempty,email"`
	ClientPhone       string       `json:"client_phone"        validate:"omitempty,max=32"`
	MonthlyIncome     *json.Number `json:"monthly_income"      validate:"omitempty,dec2"`
	MonthlyDebt       *json.Number `json:"monthly_debt"        validate:"omitempty,dec2"`
	Amount            json.Number  `json:"amount"              validate:"required,dec2"`
	TermMonths        int          `json:"term_months"         validate:"required,gte=1,lte=120"`
	MonthlyRate       json.Number  `json:"monthly_rate"        validate:"required,numeric"`
	StoreID           string       `json:"store_id"            validate:"omitempty,max=32"`
	ProductID         string       `json:"product_id"          validate:"omitempty,max=32"`
	CommercialTableID string       `json:"commercial_table_id" validate:"omitempty,max=32"`
}

func (h *ProposalHandler) Create(c echo.Context) error {
	actor, ok, err := actorOf(c)
	if !ok {
		return err
	}
	var req createProposalReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	res, err := h.uc.Create(c.Request().Context(), proposaluc.CreateInput{
		ClientName:        req.ClientName,
		ClientTaxID:       req.ClientTaxID,
		ClientEmail:       req.ClientEmail,
		ClientPhone:       req.ClientPhone,
		MonthlyIncome:     optionalDecimal(req.MonthlyIncome),
		MonthlyDebt:       optionalDecimal(req.MonthlyDebt),
		Amount:            decimalOf(req.Amount),
		TermMonths:        req.TermMonths,
		MonthlyRate:       decimalOf(req.MonthlyRate),
		StoreID:           req.StoreID,
		ProductID:         req.ProductID,
		CommercialTableID: req.CommercialTableID,
		ActorID:           actor.ID,
		ActorRole:         actor.Role,
	})
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *ProposalHandler) Get(c echo.Context) error {
	id, ok, err := pathProposalID(c)
	if !ok {
		return err
	}
	view, err := h.uc.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusOK, view)
}

type transitionReq struct {
	Status         string         `json:"status"          validate:"required"`
	Observation    string         `json:"observation"     validate:"max=2000"`
	ApprovedAmount *json.Number   `json:"approved_amount" validate:"omitempty,dec2"`
	ExpectedStatus string         `json:"expected_status"`
	Metadata       map[string]any `json:"metadata"`
}

// transitionResponse flags a committed transition whose side effect failed.
type transitionResponse struct {
	*proposaluc.TransitionResult
	Status string `json:"status"`
}

func (h *ProposalHandler) Transition(c echo.Context) error {
	id, ok, err := pathProposalID(c)
	if !ok {
		return err
	}
	actor, ok, err := actorOf(c)
	if !ok {
		return err
	}
	var req transitionReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	res, err := h.uc.TransitionStatus(c.Request().Context(), proposaluc.TransitionInput{
		ProposalID:     id,
		Target:         req.Status,
		Observation:    req.Observation,
		ApprovedAmount: optionalDecimal(req.ApprovedAmount),
		ExpectedStatus: req.ExpectedStatus,
		Metadata:       req.Metadata,
		ActorID:        actor.ID,
		ActorRole:      actor.Role,
	})
	if err != nil {
		return writeError(c, err, nil)
	}
	out := transitionResponse{TransitionResult: res, Status: "ok"}
	for _, se := range res.SideEffects {
		if se.Status == outbox.StatusFailed {
			out.Status = "degraded"
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *ProposalHandler) ListTransitions(c echo.Context) error {
	id, ok, err := pathProposalID(c)
	if !ok {
		return err
	}
	items, err := h.uc.ListTransitions(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

type observationReq struct {
	Observation string `json:"observation" validate:"required,max=2000"`
}

func (h *ProposalHandler) AddObservation(c echo.Context) error {
	id, ok, err := pathProposalID(c)
	if !ok {
		return err
	}
	actor, ok, err := actorOf(c)
	if !ok {
		return err
	}
	var req observationReq
	if ok, err := bindAndValidate(c, &req); !ok {
		return err
	}
	tr, err := h.uc.AddObservation(c.Request().Context(), id, actor.ID, actor.Role, req.Observation)
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusCreated, tr)
}
