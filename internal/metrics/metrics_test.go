package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	t.Fatalf("metric family %q not found", name)
	return nil
}

func labelValue(metric *dto.Metric, name string) string {
	for _, pair := range metric.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}

func TestOrderMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetricsWithRegisterer(reg)

	m.RecordOrderCreated()
	m.RecordOrderCreated()
	m.RecordCheckout(CheckoutSucceeded, 20*time.Millisecond)
	m.RecordCheckout(CheckoutRejected, time.Millisecond)
	m.RecordInvariantViolation("order", "status")
	m.RecordInvariantViolation("user", "")
	m.RecordTimelineEvent()
	m.RecordOutboxEnqueued("order.created")

	created := gatherFamily(t, reg, "orderdesk_orders_created_total")
	if got := created.GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Fatalf("expected 2 created orders, got %v", got)
	}

	checkouts := gatherFamily(t, reg, "orderdesk_checkouts_total")
	if len(checkouts.GetMetric()) != 2 {
		t.Fatalf("expected 2 checkout result series, got %d", len(checkouts.GetMetric()))
	}

	duration := gatherFamily(t, reg, "orderdesk_checkout_duration_seconds")
	if got := duration.GetMetric()[0].GetHistogram().GetSampleCount(); got != 2 {
		t.Fatalf("expected 2 checkout samples, got %d", got)
	}

	violations := gatherFamily(t, reg, "orderdesk_invariant_violations_total")
	fields := map[string]bool{}
	for _, metric := range violations.GetMetric() {
		fields[labelValue(metric, "field")] = true
	}
	if !fields["status"] || !fields["non_field"] {
		t.Fatalf("unexpected violation labels: %v", fields)
	}
}

func TestOrderMetrics_NilSafe(t *testing.T) {
	var m *OrderMetrics

	m.RecordOrderCreated()
	m.RecordCheckout(CheckoutFailed, time.Second)
	m.RecordInvariantViolation("order", "status")
	m.RecordTimelineEvent()
	m.RecordOutboxEnqueued("order.created")
}

func TestRegister_ReusesExistingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := NewOrderMetricsWithRegisterer(reg)
	second := NewOrderMetricsWithRegisterer(reg)

	if first.ordersCreated != second.ordersCreated {
		t.Fatal("expected second registration to reuse the existing counter")
	}
}

func TestRegister_PanicsOnConflictingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orderdesk_checkouts_total",
		Help: "Total number of checkout attempts grouped by result",
	}))

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on conflicting collector")
		}
	}()
	NewOrderMetricsWithRegisterer(reg)
}

func TestHTTPMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.Started()
	m.Observe(http.MethodPost, "/checkout/", http.StatusOK, 5*time.Millisecond)
	m.Started()
	m.Observe(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	requests := gatherFamily(t, reg, "orderdesk_http_requests_total")
	routes := map[string]string{}
	for _, metric := range requests.GetMetric() {
		routes[labelValue(metric, "route")] = labelValue(metric, "status")
	}
	if routes["/checkout/"] != "200" || routes["unmatched"] != "404" {
		t.Fatalf("unexpected request labels: %v", routes)
	}

	inFlight := gatherFamily(t, reg, "orderdesk_http_requests_in_flight")
	if got := inFlight.GetMetric()[0].GetGauge().GetValue(); got != 0 {
		t.Fatalf("expected no requests in flight, got %v", got)
	}
}
