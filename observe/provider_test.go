package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestInitProviderServesMetrics(t *testing.T) {
	ctx := context.Background()
	shutdown, err := InitProvider(ctx, "openhowl")
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	defer shutdown(ctx)

	m := DefaultMetrics()
	m.RecordRender(ctx, time.Now(), nil)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "openhowl_render_duration") && !strings.Contains(body, "openhowl.render.duration") {
		t.Error("render histogram missing from scrape output")
	}
}
