package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/chronos/internal/models"
	"github.com/noah-isme/chronos/pkg/response"
)

type actionLedger interface {
	State() models.LedgerState
	Undo(ctx context.Context) (models.ActionRecord, error)
	Redo(ctx context.Context) (models.ActionRecord, error)
	Clear(ctx context.Context) error
}

// LedgerHandler exposes undo and redo of executed actions.
type LedgerHandler struct {
	ledger actionLedger
}

// NewLedgerHandler constructs a LedgerHandler.
func NewLedgerHandler(ledger actionLedger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger}
}

// History godoc
// @Summary List the undo and redo stacks
// @Tags Ledger
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /ledger [get]
func (h *LedgerHandler) History(c *gin.Context) {
	state := h.ledger.State()
	response.JSON(c, http.StatusOK, state, map[string]interface{}{
		"canUndo": len(state.UndoStack) > 0,
		"canRedo": len(state.RedoStack) > 0,
	})
}

// Undo godoc
// @Summary Undo the most recent action
// @Tags Ledger
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /ledger/undo [post]
func (h *LedgerHandler) Undo(c *gin.Context) {
	rec, err := h.ledger.Undo(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec)
}

// Redo godoc
// @Summary Redo the most recently undone action
// @Tags Ledger
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /ledger/redo [post]
func (h *LedgerHandler) Redo(c *gin.Context) {
	rec, err := h.ledger.Redo(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rec)
}

// Clear godoc
// @Summary Forget all recorded actions
// @Tags Ledger
// @Success 204
// @Router /ledger [delete]
func (h *LedgerHandler) Clear(c *gin.Context) {
	if err := h.ledger.Clear(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
