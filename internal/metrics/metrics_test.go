package metrics

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestQuotaDenialsCounter(t *testing.T) {
	QuotaDenialsTotal.Reset()

	QuotaDenialsTotal.WithLabelValues("invoice").Inc()
	QuotaDenialsTotal.WithLabelValues("invoice").Inc()

	m := &dto.Metric{}
	counter, err := QuotaDenialsTotal.GetMetricWithLabelValues("invoice")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	_ = counter.Write(m)

	if m.Counter.GetValue() != 2.0 {
		t.Errorf("expected counter value 2, got %f", m.Counter.GetValue())
	}
}

func TestStatusBucket(t *testing.T) {
	cases := map[int]string{
		102: "1xx",
		200: "2xx",
		301: "3xx",
		404: "4xx",
		429: "4xx",
		500: "5xx",
	}
	for code, want := range cases {
		if got := statusBucket(code); got != want {
			t.Errorf("statusBucket(%d) = %s, want %s", code, got, want)
		}
	}
}
