package reconciliation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fundledger-backend/internal/contributions"
	"github.com/angelmondragon/fundledger-backend/internal/targets"
	"github.com/angelmondragon/fundledger-backend/internal/webhooks/verifier"
	"github.com/angelmondragon/fundledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fundledger-backend/pkg/db/models"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
	"github.com/angelmondragon/fundledger-backend/pkg/metrics"
	"github.com/angelmondragon/fundledger-backend/pkg/outbox"
)

type harness struct {
	conn          *gorm.DB
	registry      *prometheus.Registry
	contributions contributions.Repository
	targets       targets.Repository
	deferred      DeferredRepository
	outbox        *outbox.Repository
	recomputer    *Recomputer
	applier       *Applier
}

func newHarness(t *testing.T, conn *gorm.DB) *harness {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.NewReconciliationMetrics(reg)
	log := logger.Nop()
	txRunner := dbtest.TxRunner{DB: conn}

	h := &harness{
		conn:          conn,
		registry:      reg,
		contributions: contributions.NewRepository(conn),
		targets:       targets.NewRepository(conn),
		deferred:      NewDeferredRepository(conn),
		outbox:        outbox.NewRepository(conn),
	}
	emitter := outbox.NewService(h.outbox, nil)

	recomputer, err := NewRecomputer(RecomputerParams{
		Contributions:     h.contributions,
		Targets:           h.targets,
		Outbox:            emitter,
		TransactionRunner: txRunner,
		Metrics:           m,
		Logger:            log,
	})
	require.NoError(t, err)
	h.recomputer = recomputer

	applier, err := NewApplier(ApplierParams{
		Contributions:     h.contributions,
		Deferred:          h.deferred,
		Recomputer:        recomputer,
		Outbox:            emitter,
		TransactionRunner: txRunner,
		Metrics:           m,
		Logger:            log,
	})
	require.NoError(t, err)
	h.applier = applier
	return h
}

func (h *harness) target(t *testing.T, kind enums.TargetKind, goal int64) *models.FundingTarget {
	t.Helper()
	target := &models.FundingTarget{
		Kind:              kind,
		Title:             "target",
		TargetAmountCents: goal,
		Currency:          enums.CurrencyUSD,
	}
	require.NoError(t, h.targets.Create(context.Background(), target))
	return target
}

func (h *harness) contribution(t *testing.T, targetID *uuid.UUID, ref string, cents int64) *models.Contribution {
	t.Helper()
	c := &models.Contribution{
		TargetID:          targetID,
		AmountCents:       cents,
		Currency:          enums.CurrencyUSD,
		Provider:          enums.PaymentProviderStripe,
		ProviderReference: ref,
	}
	require.NoError(t, h.contributions.Create(context.Background(), c))
	return c
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.FundingTarget {
	t.Helper()
	target, err := h.targets.FindByID(context.Background(), id)
	require.NoError(t, err)
	return target
}

func (h *harness) transitions(t *testing.T, targetID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.conn.Model(&models.FundingTargetTransition{}).Where("target_id = ?", targetID).Count(&count).Error)
	return count
}

func (h *harness) counter(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := h.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if labelsMatch(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func succeeded(ref string, cents int64) verifier.NormalizedEvent {
	return verifier.NormalizedEvent{
		Provider:          enums.PaymentProviderStripe,
		EventID:           "evt_" + ref,
		ProviderReference: ref,
		Outcome:           enums.PaymentOutcomeSucceeded,
		RawAmountCents:    cents,
	}
}

func failed(ref string, reason string) verifier.NormalizedEvent {
	return verifier.NormalizedEvent{
		Provider:          enums.PaymentProviderStripe,
		EventID:           "evt_fail_" + ref,
		ProviderReference: ref,
		Outcome:           enums.PaymentOutcomeFailed,
		FailureReason:     reason,
	}
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, pair := range pairs {
		if value, ok := want[pair.GetName()]; ok {
			if value != pair.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(want)
}
