package prometheus_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// filtered gathers the default registry keeping only the series of the
// count-requests frontier.
type filtered struct{}

func (filtered) Gather() ([]*dto.MetricFamily, error) {
	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, err
	}
	for _, mf := range mfs {
		kept := mf.Metric[:0]
		for _, m := range mf.Metric {
			for _, l := range m.GetLabel() {
				if l.GetName() == "frontier" && l.GetValue() == "1/count-requests" {
					kept = append(kept, m)
				}
			}
		}
		mf.Metric = kept
	}
	return mfs, nil
}

func callCount(t *testing.T, op, code string) float64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "hcf_store_calls_total" {
			continue
		}
		for _, m := range mf.Metric {
			var gotOp, gotCode string
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "op":
					gotOp = l.GetValue()
				case "code":
					gotCode = l.GetValue()
				}
			}
			if gotOp == op && gotCode == code {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
