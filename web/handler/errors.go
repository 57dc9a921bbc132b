package handler

import (
	"errors"

	"github.com/screwyprof/ticle/ledger"
	"github.com/screwyprof/ticle/web/api"
)

// ledgerError classifies a ledger error into an API error
func ledgerError(err error) *api.Error {
	switch {
	case errors.Is(err, ledger.ErrPoolNotFound),
		errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, ledger.ErrUnknownTransfer):
		return api.NotFound(err)

	case errors.Is(err, ledger.ErrUnauthorized),
		errors.Is(err, ledger.ErrInvalidSignature),
		errors.Is(err, ledger.ErrInvalidToken):
		return api.Forbidden(err)

	case errors.Is(err, ledger.ErrPoolExists),
		errors.Is(err, ledger.ErrTooEarly),
		errors.Is(err, ledger.ErrTransferInFlight):
		return api.Conflict(err)

	case errors.Is(err, ledger.ErrLedgerDiverged):
		return api.InternalServerError(err)

	case errors.Is(err, ledger.ErrTransferFailed):
		return api.BadGateway(err)

	case ledger.IsValidation(err):
		return api.BadRequest(err)
	}
	return api.InternalServerError(err)
}
