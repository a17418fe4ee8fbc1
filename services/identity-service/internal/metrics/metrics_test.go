package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAuthOutcomes(t *testing.T) {
	RecordAuthSuccess()
	RecordAuthFailure("invalid_credentials")
	RecordRefresh("reused")
	RecordLogout()
	RecordHMACVerification("valid")

	if got := testutil.ToFloat64(AuthAttemptsTotal.WithLabelValues("success")); got < 1 {
		t.Errorf("expected at least one success attempt recorded, got %v", got)
	}
	if got := testutil.ToFloat64(AuthFailuresTotal.WithLabelValues("invalid_credentials")); got < 1 {
		t.Errorf("expected at least one failure recorded, got %v", got)
	}
}
