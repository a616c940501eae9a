package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrementByLabel(t *testing.T) {
	before := testutil.ToFloat64(PaymentCallbacksTotal.WithLabelValues("wallet_b", ResultDuplicate))
	PaymentCallbacksTotal.WithLabelValues("wallet_b", ResultDuplicate).Inc()
	after := testutil.ToFloat64(PaymentCallbacksTotal.WithLabelValues("wallet_b", ResultDuplicate))
	assert.Equal(t, before+1, after)

	unfulfilled := testutil.ToFloat64(ReconcileUnfulfilledTotal.WithLabelValues("wallet_a", "insufficient_stock"))
	ReconcileUnfulfilledTotal.WithLabelValues("wallet_a", "insufficient_stock").Inc()
	assert.Equal(t, unfulfilled+1, testutil.ToFloat64(ReconcileUnfulfilledTotal.WithLabelValues("wallet_a", "insufficient_stock")))
}
