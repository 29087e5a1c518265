package targets

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fundledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
)

func newService(t *testing.T) (Service, Repository) {
	t.Helper()
	repo := NewRepository(dbtest.Open(t))
	svc, err := NewService(repo, logger.Nop())
	require.NoError(t, err)
	return svc, repo
}

func TestCreateTarget(t *testing.T) {
	svc, _ := newService(t)

	dto, err := svc.Create(context.Background(), CreateInput{
		Kind:         "investment_opportunity",
		Title:        "  Solar co-op  ",
		TargetAmount: "2500.00",
		Currency:     "eur",
	})
	require.NoError(t, err)
	assert.Equal(t, "Solar co-op", dto.Title)
	assert.EqualValues(t, 250000, dto.TargetAmountCents)
	assert.Equal(t, enums.CurrencyEUR, dto.Currency)
	assert.Equal(t, enums.TargetStatusActive, dto.Status)
	assert.Equal(t, "0.00", dto.RaisedAmount)

	public, err := svc.GetPublic(context.Background(), dto.ID)
	require.NoError(t, err)
	assert.Equal(t, dto.ID, public.ID)
}

func TestCreateTargetValidation(t *testing.T) {
	svc, _ := newService(t)
	cases := []CreateInput{
		{Kind: "shop_order", Title: "x", TargetAmount: "1", Currency: "USD"},
		{Kind: "community_request", Title: " ", TargetAmount: "1", Currency: "USD"},
		{Kind: "community_request", Title: "x", TargetAmount: "-4", Currency: "USD"},
		{Kind: "community_request", Title: "x", TargetAmount: "1", Currency: "XYZ"},
	}
	for _, input := range cases {
		_, err := svc.Create(context.Background(), input)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "input %+v gave %v", input, err)
	}
}

func TestReleaseHold(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	dto, err := svc.Create(ctx, CreateInput{Kind: "community_request", Title: "well", TargetAmount: "10", Currency: "USD"})
	require.NoError(t, err)

	_, err = svc.ReleaseHold(ctx, dto.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = repo.SetHold(ctx, dto.ID, "negative sum")
	require.NoError(t, err)
	held, err := svc.GetAdmin(ctx, dto.ID)
	require.NoError(t, err)
	assert.True(t, held.OnHold)

	released, err := svc.ReleaseHold(ctx, dto.ID)
	require.NoError(t, err)
	assert.False(t, released.OnHold)
}

func TestGetMissingTarget(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.GetPublic(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = svc.ReleaseHold(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
