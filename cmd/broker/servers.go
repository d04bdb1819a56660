// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// brokerServiceName is reported by the gRPC health service next to the
// server-wide "" entry.
const brokerServiceName = "kraftbroker.Broker"

const healthSyncInterval = 5 * time.Second

func newMetricsMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "ok state=%s\n", a.health.State())
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if ready, state := a.readiness(); !ready {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "not ready state=%s\n", state)
		} else {
			fmt.Fprintf(w, "ready state=%s\n", state)
		}
	})
	return mux
}

func startMetricsServer(ctx context.Context, addr string, a *app, logger *slog.Logger) {
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           newMetricsMux(a),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
}

// startControlServer serves grpc.health.v1 on addr. The returned health
// server is usable even when the listener could not be bound.
func startControlServer(ctx context.Context, addr string, a *app, logger *slog.Logger) *health.Server {
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	healthSrv.SetServingStatus(brokerServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	if addr == "" {
		return healthSrv
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("control server listen error", "error", err)
		return healthSrv
	}
	server := grpc.NewServer()
	healthpb.RegisterHealthServer(server, healthSrv)
	go func() {
		ticker := time.NewTicker(healthSyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				healthSrv.Shutdown()
				done := make(chan struct{})
				go func() {
					server.GracefulStop()
					close(done)
				}()
				select {
				case <-done:
				case <-time.After(2 * time.Second):
					server.Stop()
				}
				return
			case <-ticker.C:
				a.syncHealth(healthSrv)
			}
		}
	}()
	go func() {
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("control server error", "error", err)
		}
	}()
	return healthSrv
}

// syncHealth mirrors readiness into the gRPC health service.
func (a *app) syncHealth(healthSrv *health.Server) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready, _ := a.readiness(); ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	healthSrv.SetServingStatus("", status)
	healthSrv.SetServingStatus(brokerServiceName, status)
}
