package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()
	m.RecordSweep("schedule", "ok", 2*time.Second)
	m.RecordSweep("manual", "busy", 0)
	m.RecordRevocation("ok")
	m.RecordRevocation("ok")
	m.RecordJoinDecision("granted")
	m.RecordClaim("invalid")
	m.RecordFloodWait("sendMessage", time.Second)
	m.SetConversations(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepsTotal.WithLabelValues("schedule", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepsTotal.WithLabelValues("manual", "busy")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RevocationsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GatewayRetriesTotal.WithLabelValues("sendMessage")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Conversations))
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordJoinDecision("rejoin")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `subgate_join_decisions_total{decision="rejoin"} 1`)
}
