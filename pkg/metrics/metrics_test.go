package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	_ "github.com/Sternrassler/go-paginator/pkg/fetch"
	_ "github.com/Sternrassler/go-paginator/pkg/pagination"
	_ "github.com/Sternrassler/go-paginator/pkg/redisseq"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

// Vectors without observed label values are not gathered, so only the
// unlabelled metrics are checked here.
func TestDocumentedMetricsRegistered(t *testing.T) {
	families, err := Gatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	registered := make(map[string]bool, len(families))
	for _, mf := range families {
		registered[mf.GetName()] = true
	}

	for _, name := range []string{
		"paginator_in_flight_tasks",
		"paginator_task_duration_seconds",
		"paginator_reorder_buffered_results",
		"paginator_retry_backoff_seconds",
		"paginator_retry_exhausted_total",
		"fetch_page_request_duration_seconds",
		"redisseq_pops_total",
	} {
		if !registered[name] {
			t.Errorf("metric %s is not registered", name)
		}
	}
}

func TestHandler(t *testing.T) {
	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "paginator_in_flight_tasks") {
		t.Error("expected paginator metrics in handler output")
	}
}
