package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/fundledger-backend/api/middleware"
	"github.com/angelmondragon/fundledger-backend/api/responses"
	"github.com/angelmondragon/fundledger-backend/api/validators"
	"github.com/angelmondragon/fundledger-backend/internal/reconciliation"
	"github.com/angelmondragon/fundledger-backend/internal/targets"
	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
)

type targetRecomputer interface {
	Recompute(ctx context.Context, targetID uuid.UUID, opts reconciliation.RecomputeOptions) (*reconciliation.RecomputeResult, error)
}

// TargetPublicGet returns contributor-facing progress for a target.
func TargetPublicGet(svc targets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "target service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "targetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.GetPublic(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

func AdminTargetCreate(svc targets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "target service unavailable"))
			return
		}
		var input targets.CreateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

func AdminTargetGet(svc targets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "target service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "targetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.GetAdmin(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// AdminTargetRecompute rebuilds a target's projection from its completed
// contributions. repair=true lets the projection move down.
func AdminTargetRecompute(recomputer targetRecomputer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if recomputer == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recomputer unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "targetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		repair, err := validators.ParseQueryBool(r, "repair", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithFields(logg.WithTargetID(ctx, id.String()), map[string]any{
				"repair":   repair,
				"operator": middleware.SubjectFromContext(ctx),
			})
			logg.Info(ctx, "operator recompute requested")
		}

		result, err := recomputer.Recompute(ctx, id, reconciliation.RecomputeOptions{AllowDecrease: repair})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminTargetReleaseHold(svc targets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "target service unavailable"))
			return
		}
		id, err := validators.ParseUUIDParam(r, "targetId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.ReleaseHold(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}
