package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDecision(t *testing.T) {
	before := testutil.ToFloat64(decisions.WithLabelValues("EMERGENCY", "false"))
	beforeRF := testutil.ToFloat64(redFlags.WithLabelValues("RF_HEAVY_BLEEDING"))

	RecordDecision("EMERGENCY", false, []string{"RF_HEAVY_BLEEDING"})

	assert.Equal(t, before+1, testutil.ToFloat64(decisions.WithLabelValues("EMERGENCY", "false")))
	assert.Equal(t, beforeRF+1, testutil.ToFloat64(redFlags.WithLabelValues("RF_HEAVY_BLEEDING")))
}

func TestRecordPatchAndImport(t *testing.T) {
	before := testutil.ToFloat64(patches.WithLabelValues("OUTCOME_UPDATE", "ok"))
	RecordPatch("OUTCOME_UPDATE", "ok")
	assert.Equal(t, before+1, testutil.ToFloat64(patches.WithLabelValues("OUTCOME_UPDATE", "ok")))

	beforeImp := testutil.ToFloat64(imported.WithLabelValues("case"))
	RecordImport("case", 3)
	RecordImport("case", 0)
	assert.Equal(t, beforeImp+3, testutil.ToFloat64(imported.WithLabelValues("case")))
}

func TestObserveHTTP(t *testing.T) {
	ObserveHTTP("/api/v1/health", "GET", 200, 3*time.Millisecond)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(httpLatency), 1)

	before := testutil.ToFloat64(accessDenials.WithLabelValues("rate_limited"))
	RecordDenial("rate_limited")
	assert.Equal(t, before+1, testutil.ToFloat64(accessDenials.WithLabelValues("rate_limited")))
}
