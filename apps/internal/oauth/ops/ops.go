// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

/*
Package ops provides operations to various backend services using REST clients.

The REST type provides several clients that can be used to communicate to backends.
Usage is simple:

	rest := ops.New(httpClient)

	// Creates an authority client and calls the PRT nonce endpoint.
	nonce, err := rest.PRT(hostinfo.Files{}, assertion.Builder{}, nil).Nonce(ctx, authParams)
*/
package ops

import (
	"github.com/himmelblau-idm/msal-go/apps/internal/hostinfo"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/accesstokens"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/assertion"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/internal/comm"
	"github.com/himmelblau-idm/msal-go/apps/internal/oauth/ops/prt"
	"github.com/himmelblau-idm/msal-go/apps/internal/slog"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPClient is the HTTP client interface used by all REST calls.
type HTTPClient = comm.HTTPClient

// Metrics collects authority round trip counters and latencies.
type Metrics = comm.Metrics

// NewMetrics registers the authority request collectors with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	return comm.NewMetrics(reg)
}

// Option configures the REST transport.
type Option = comm.Option

// WithMetrics records every round trip in m.
func WithMetrics(m *Metrics) Option {
	return comm.WithMetrics(m)
}

// WithLogger logs every round trip at debug level.
func WithLogger(l *slog.Logger) Option {
	return comm.WithLogger(l)
}

// REST provides REST clients for communicating with various backends used by MSAL.
type REST struct {
	client *comm.Client
}

// New is the constructor for REST.
func New(httpClient HTTPClient, options ...Option) *REST {
	return &REST{client: comm.New(httpClient, options...)}
}

// AccessTokens returns a client that can be used to get various access tokens for
// authorization purposes.
func (r *REST) AccessTokens() accesstokens.Client {
	return accesstokens.Client{Comm: r.client}
}

// PRT returns a client for the MS-OAPXBC primary refresh token protocol.
func (r *REST) PRT(host hostinfo.Provider, builder assertion.Builder, logger *slog.Logger) prt.Client {
	return prt.Client{
		Comm:     r.client,
		Tokens:   r.AccessTokens(),
		HostInfo: host,
		Builder:  builder,
		Logger:   logger,
	}
}
