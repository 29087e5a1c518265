package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/fundledger-backend/api/middleware"
	"github.com/angelmondragon/fundledger-backend/api/responses"
	"github.com/angelmondragon/fundledger-backend/api/validators"
	"github.com/angelmondragon/fundledger-backend/internal/contributions"
	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
)

// ContributionInitiate opens a pending contribution with the chosen provider.
func ContributionInitiate(svc contributions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "contribution service unavailable"))
			return
		}

		var input contributions.InitiateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.IdempotencyKey = strings.TrimSpace(r.Header.Get(middleware.IdempotencyKeyHeader))

		result, err := svc.Initiate(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func ContributionGet(svc contributions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "contribution service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "contributionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}
