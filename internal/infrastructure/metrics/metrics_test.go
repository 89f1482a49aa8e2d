package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/entity"
)

func TestCommitOutcomes(t *testing.T) {
	m := New()

	m.CommitObserved(entity.KindPurchase, nil, 10*time.Millisecond)
	m.CommitObserved(entity.KindPurchase, apperror.NewConflict("lost race"), time.Millisecond)
	m.CommitObserved(entity.KindPurchase, errors.New("boom"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("purchase", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("purchase", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal.WithLabelValues("purchase", "error")))
}

func TestDeltaDirections(t *testing.T) {
	m := New()

	m.DeltaApplied(entity.KindRejection, -4)
	m.DeltaApplied(entity.KindRejection, 0)
	m.DeltaApplied(entity.KindPurchase, 5)
	m.DeltaApplied(entity.KindPurchase, 3)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.StockDeltaUnits.WithLabelValues("rejection", "out")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.StockDeltaUnits.WithLabelValues("purchase", "in")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.StockDeltaUnits))
}

func TestObservers(t *testing.T) {
	m := New()

	m.RetryObserved("movement.commit")
	m.CountObserved("fix", apperror.NewAlreadyCounted("c1"))
	m.SequenceObserved("purchases", nil, time.Millisecond)
	m.RelayObserved(entity.EventCountFixed, errors.New("broker down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues("movement.commit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CountOpsTotal.WithLabelValues("fix", "already_counted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SequenceTotal.WithLabelValues("purchases", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxDeliveries.WithLabelValues(entity.EventCountFixed, "error")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.RecordHTTPRequest(http.MethodGet, "/api/v1/stores/:storeId/stock", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storeledger_http_requests_total")
}
