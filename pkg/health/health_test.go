package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunAggregates(t *testing.T) {
	up := Ping(func(context.Context) error { return nil })
	down := Ping(func(context.Context) error { return errors.New("refused") })

	tests := []struct {
		name     string
		setup    func(c *Checker)
		want     Status
		wantCode int
	}{
		{"all up", func(c *Checker) { c.Register("index", up) }, StatusUp, http.StatusOK},
		{"optional down", func(c *Checker) {
			c.Register("index", up)
			c.RegisterOptional("redis", down)
		}, StatusDegraded, http.StatusOK},
		{"required down", func(c *Checker) {
			c.Register("index", down)
			c.RegisterOptional("redis", down)
		}, StatusDown, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			tt.setup(c)
			rec := httptest.NewRecorder()
			c.ReadyHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/health/ready", nil))
			if rec.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			var report Report
			if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
				t.Fatal(err)
			}
			if report.Status != tt.want {
				t.Errorf("status = %s, want %s", report.Status, tt.want)
			}
		})
	}
}
