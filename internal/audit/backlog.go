package audit

import (
	"errors"
	"math"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sasswatch/sasswatch-api/jobs"
)

var _ Backlog = (*jobs.Client)(nil)

// Backlog reports tasks waiting in the audit queue. *jobs.Client implements
// it.
type Backlog interface {
	Pending() (int, error)
}

// RegisterBacklog exports the depth of rec's in-memory buffer and of the
// queue behind it. A failed queue read reports NaN.
func RegisterBacklog(reg prometheus.Registerer, rec *Recorder, queue Backlog) error {
	buffered := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sasswatch_audit_buffered",
		Help: "Auth decisions buffered in process awaiting delivery.",
	}, func() float64 { return float64(rec.Buffered()) })
	pending := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sasswatch_audit_queue_pending",
		Help: "Auth decision tasks pending in the audit queue.",
	}, func() float64 {
		n, err := queue.Pending()
		if err != nil {
			return math.NaN()
		}
		return float64(n)
	})
	return errors.Join(reg.Register(buffered), reg.Register(pending))
}
