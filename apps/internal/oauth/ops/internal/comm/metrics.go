// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package comm

import (
	stderrors "errors"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments authority round trips. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. Registering a second time
// against the same registry reuses the collectors that are already there.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msal",
			Name:      "authority_requests_total",
			Help:      "Total number of requests sent to the authority.",
		},
		[]string{"host", "endpoint", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msal",
			Name:      "authority_request_duration_seconds",
			Help:      "Authority request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"host", "endpoint"},
	)

	var err error
	if requests, err = register(reg, requests); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &Metrics{requests: requests, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if stderrors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) observe(u *url.URL, status int, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	endpoint := path.Base(u.Path)
	code := strconv.Itoa(status)
	if err != nil {
		code = "transport_error"
	}
	m.requests.WithLabelValues(u.Host, endpoint, code).Inc()
	m.duration.WithLabelValues(u.Host, endpoint).Observe(elapsed.Seconds())
}
