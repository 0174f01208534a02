package billing

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madronelabs/formpay/internal/telemetry"
)

func Test_ObserveStripeCallLatency(t *testing.T) {
	// Safe before the metrics instance exists.
	observe("get_plan")()

	telemetry.InitBusinessMetrics("billing_latency_test")
	require.NotNil(t, telemetry.Business)

	observe("create_charge")()
	observe("create_charge")()
	observe("create_source")()

	assert.Equal(t, 2, testutil.CollectAndCount(telemetry.Business.StripeAPILatency),
		"one series per operation label")
}
