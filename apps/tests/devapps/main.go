// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Command devapps runs the public client against a real tenant. It is configured from MSAL_*
// environment variables, see Config.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/himmelblau-idm/msal-go/apps/public"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	config, err := LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()

	level := slog.LevelInfo
	if config.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	options := []public.Option{public.WithLogger(logger)}
	if config.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		options = append(options, public.WithMetrics(reg))
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			log.Println(http.ListenAndServe(config.MetricsAddr, mux))
		}()
	}

	switch config.Sample {
	case "devicecode":
		acquireTokenDeviceCode(ctx, config, options)
	case "password":
		acquireByUsernamePasswordPublic(ctx, config, options)
	case "prt":
		acquirePRT(ctx, config, options)
	default:
		log.Fatalf("unknown sample %q, want one of devicecode, password, prt", config.Sample)
	}
}
