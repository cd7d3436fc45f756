package report

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// WriteText writes every collected series in the Prometheus text format
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	encoder := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Handler serves the metrics for scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ViolationsJSON exports the n most recent violations
func (v *ViolationLog) ViolationsJSON(n int) ([]byte, error) {
	return json.Marshal(v.GetRecent(n))
}

// ServeHTTP serves recent violations as JSON
func (v *ViolationLog) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, err := v.ViolationsJSON(DefaultViolationLogSize)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
