package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"loan-proposal-service/internal/usecase/storage"
)

type StorageHandler struct{ uc *storage.Usecase }

func NewStorageHandler(uc *storage.Usecase) *StorageHandler { return &StorageHandler{uc: uc} }

func (h *StorageHandler) State(c echo.Context) error {
	id, ok, err := pathProposalID(c)
	if !ok {
		return err
	}
	st, err := h.uc.GetStorageSyncState(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *StorageHandler) Sync(c echo.Context) error {
	id, ok, err := pathProposalID(c)
	if !ok {
		return err
	}
	st, err := h.uc.Sync(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err, st)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *StorageHandler) Correct(c echo.Context) error {
	id, ok, err := pathProposalID(c)
	if !ok {
		return err
	}
	st, err := h.uc.Correct(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err, st)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *StorageHandler) Booklet(c echo.Context) error {
	id, ok, err := pathProposalID(c)
	if !ok {
		return err
	}
	b, err := h.uc.GenerateConsolidatedBooklet(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(http.StatusOK, b)
}
