package service

import (
	"errors"
	"net/http"

	apperrors "github.com/utafrali/rocketcart/pkg/errors"
)

// Shopper-facing notification texts.
const (
	MsgInsufficientStock = "Quantidade solicitada fora de estoque"
	MsgAddFailed         = "Erro na adição do produto"
	MsgRemoveFailed      = "Erro na remoção do produto"
	MsgUpdateFailed      = "Erro na alteração de quantidade do produto"
)

// Error kinds returned by CartStore operations. Every returned error is an
// *apperrors.AppError wrapping exactly one of these.
var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrCollaborator      = errors.New("collaborator failure")
	ErrNotInCart         = errors.New("product not in cart")
)

func insufficientStock() *apperrors.AppError {
	return apperrors.New("INSUFFICIENT_STOCK", MsgInsufficientStock, http.StatusConflict, ErrInsufficientStock)
}

// collaboratorFailure reports an inventory or storage failure. Both the
// kind and cause match with errors.Is.
func collaboratorFailure(message string, cause error) *apperrors.AppError {
	return apperrors.New("COLLABORATOR_FAILURE", message, http.StatusBadGateway, ErrCollaborator).WithCause(cause)
}

func notInCart() *apperrors.AppError {
	return apperrors.New("PRODUCT_NOT_IN_CART", MsgRemoveFailed, http.StatusNotFound, ErrNotInCart)
}

// outcome labels an operation result for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrNotInCart):
		return "not_in_cart"
	default:
		return "collaborator_failure"
	}
}
