package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Events.WithLabelValues("webhook", "object", "ingested").Inc()
	m.ShareIDsAllocated.Add(2)
	m.AuditFindings.WithLabelValues("missing").Set(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("webhook", "object", "ingested")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ShareIDsAllocated))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AuditFindings.WithLabelValues("missing")))

	n, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	// TransactionAborts is exported at zero; unobserved vectors are not.
	assert.Equal(t, 4, n)
}

func TestNop_IsolatedRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop()
		Nop()
	})
}
