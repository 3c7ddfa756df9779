package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	appmw "loan-proposal-service/internal/adapter/middleware"
	"loan-proposal-service/pkg/id"
)

type Handler struct{}

func NewHandler() *Handler { return &Handler{} }

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "loan-proposal-service",
		"time":    time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// pathProposalID reads :id. ok is false when the 400 was already written.
func pathProposalID(c echo.Context) (string, bool, error) {
	pid := c.Param("id")
	if !id.Valid32(pid) {
		return "", false, c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid proposal id"})
	}
	return pid, true, nil
}

func actorOf(c echo.Context) (appmw.Actor, bool, error) {
	a, ok := appmw.ActorFrom(c)
	if !ok {
		return a, false, c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing actor"})
	}
	return a, true, nil
}

// Amounts were checked by the dec2 tag before reaching here.
func decimalOf(n json.Number) decimal.Decimal {
	d, _ := decimal.NewFromString(n.String())
	return d
}

func optionalDecimal(n *json.Number) *decimal.Decimal {
	if n == nil || n.String() == "" {
		return nil
	}
	d := decimalOf(*n)
	return &d
}

func parseDate(s string) time.Time {
	t, _ := time.ParseInLocation(time.DateOnly, s, time.UTC)
	return t
}
