package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrument_CountsRequests(t *testing.T) {
	before := testutil.CollectAndCount(httpRequestsTotal)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/appointments")

	handler := Instrument()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after := testutil.CollectAndCount(httpRequestsTotal)
	if after <= before {
		t.Errorf("expected request counter series to grow, before=%d after=%d", before, after)
	}
}

func TestDomainCounters(t *testing.T) {
	start := testutil.ToFloat64(consultationsFinished)
	ConsultationFinished()
	if got := testutil.ToFloat64(consultationsFinished); got != start+1 {
		t.Errorf("expected counter to increment, got %f", got)
	}

	startB := testutil.ToFloat64(backupsTaken)
	BackupTaken()
	if got := testutil.ToFloat64(backupsTaken); got != startB+1 {
		t.Errorf("expected backup counter to increment, got %f", got)
	}
}
