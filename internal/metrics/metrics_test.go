package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGetIsSingleton(t *testing.T) {
	if Get() != Get() {
		t.Fatal("Get() returned different instances")
	}
}

func TestRecordChat(t *testing.T) {
	m := Get()
	before := testutil.ToFloat64(m.ChatRequests.WithLabelValues(OutcomeNoContext))
	m.RecordChat(OutcomeNoContext)
	m.RecordChat(OutcomeNoContext)
	after := testutil.ToFloat64(m.ChatRequests.WithLabelValues(OutcomeNoContext))
	if after-before != 2 {
		t.Errorf("counter moved by %v, want 2", after-before)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := Get()
	m.RecordChat(OutcomeOK)
	m.IndexedChunks.Set(3)
	m.GenerationDuration.Observe(0.1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, name := range []string{
		"docchat_chat_requests_total",
		"docchat_generation_duration_seconds",
		"docchat_indexed_chunks",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
