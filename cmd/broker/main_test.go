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
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/novatechflow/kraftbroker/internal/config"
	"github.com/novatechflow/kraftbroker/internal/testutil"
	"github.com/novatechflow/kraftbroker/pkg/storage"
)

var ordersID = uuid.MustParse("00000000-0000-4000-8000-000000000091")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig writes an orders metadata log and one partition file under a
// temp dir and returns a config pointing at them.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "meta.log")
	if err := os.WriteFile(logPath, testutil.OrdersLog(ordersID), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	partDir := filepath.Join(dir, "data", storage.PartitionDir("orders", 0))
	if err := os.MkdirAll(partDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	data := testutil.NewLogBuilder().Batch([]byte("hello")).Bytes()
	if err := os.WriteFile(filepath.Join(partDir, storage.FirstSegmentName), data, 0o644); err != nil {
		t.Fatalf("write partition: %v", err)
	}
	cfg := config.Default()
	cfg.Metadata.LogPath = logPath
	cfg.Data.Root = filepath.Join(dir, "data")
	cfg.Data.CacheBytes = 1 << 20
	return cfg
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLogLevel(in); got != want {
			t.Fatalf("parseLogLevel(%q) = %v want %v", in, got, want)
		}
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(config.LogConfig{Level: "info", Format: "text"}, &buf).Info("hello")
	if !strings.Contains(buf.String(), "component=broker") {
		t.Fatalf("expected text output with component, got %q", buf.String())
	}
	buf.Reset()
	newLogger(config.LogConfig{Level: "info", Format: "json"}, &buf).Info("hello")
	if !strings.Contains(buf.String(), `"component":"broker"`) {
		t.Fatalf("expected json output with component, got %q", buf.String())
	}
	buf.Reset()
	newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf).Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
}

func TestByteRate(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newByteRate(10 * time.Second)
	r.now = func() time.Time { return now }
	r.add(50)
	r.add(50)
	now = now.Add(time.Second)
	r.add(100)
	if got := r.rate(); got != 20 {
		t.Fatalf("expected 20 B/s got %f", got)
	}
	now = now.Add(20 * time.Second)
	if got := r.rate(); got != 0 {
		t.Fatalf("expected old slots to expire, got %f", got)
	}
}

func TestNewAppWiresStoreAndReaders(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	if !a.store.IsTopicKnown("orders") {
		t.Fatalf("expected orders topic in store")
	}
	if apis := a.router().SupportedAPIs(); len(apis) != 3 {
		t.Fatalf("expected 3 registered apis, got %+v", apis)
	}
	for i := 0; i < 2; i++ {
		if _, err := a.segments.ReadPartition(context.Background(), "orders", 0); err != nil {
			t.Fatalf("ReadPartition: %v", err)
		}
	}
	if a.cache.Hits() != 1 || a.cache.Misses() != 1 {
		t.Fatalf("unexpected cache counters hits=%d misses=%d", a.cache.Hits(), a.cache.Misses())
	}
	if a.fetchRate.rate() <= 0 {
		t.Fatalf("expected fetch rate to record reads")
	}

	reg := prometheus.NewRegistry()
	registerAppMetrics(reg, a)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{"kraftbroker_partition_cache_hits_total", "kraftbroker_fetch_bytes_per_second", "kraftbroker_metadata_topics"} {
		if !names[want] {
			t.Fatalf("missing metric %s in %v", want, names)
		}
	}
}

func TestNewAppMissingLog(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metadata.LogPath = filepath.Join(t.TempDir(), "missing.log")
	if _, err := newApp(context.Background(), cfg, testLogger()); err == nil {
		t.Fatalf("expected error for missing metadata log")
	}
	if err := run(context.Background(), cfg, testLogger()); err == nil {
		t.Fatalf("expected run to fail for missing metadata log")
	}
}

func TestNewAppS3RequiresRegion(t *testing.T) {
	cfg := testConfig(t)
	cfg.Data.Backend = config.BackendS3
	cfg.Data.S3.Bucket = "segments"
	cfg.Data.S3.Region = ""
	if _, err := newApp(context.Background(), cfg, testLogger()); err == nil {
		t.Fatalf("expected s3 client error without region")
	}
}

func TestMetricsMuxReadiness(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	mux := newMetricsMux(a)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before serving, got %d", rec.Code)
	}

	a.serving.Store(true)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "state=healthy") {
		t.Fatalf("expected ready, got %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "ok") {
		t.Fatalf("unexpected healthz %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "kraftbroker_") {
		t.Fatalf("expected broker metrics, got %d", rec.Code)
	}
}

func TestSyncHealth(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(t), testLogger())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	healthSrv := health.NewServer()
	check := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := healthSrv.Check(context.Background(), &healthpb.HealthCheckRequest{Service: brokerServiceName})
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		return resp.GetStatus()
	}

	a.syncHealth(healthSrv)
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before serving, got %v", got)
	}
	a.serving.Store(true)
	a.syncHealth(healthSrv)
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", got)
	}
}

func TestInspectCommand(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	root := newRootCommand(&out)
	root.SetArgs([]string{"inspect", "--log", cfg.Metadata.LogPath})
	if err := root.Execute(); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	text := out.String()
	for _, want := range []string{"BATCH", "orders", ordersID.String(), "[1 2]"} {
		if !strings.Contains(text, want) {
			t.Fatalf("inspect output missing %q:\n%s", want, text)
		}
	}
}

func TestInspectCommandMissingLog(t *testing.T) {
	root := newRootCommand(io.Discard)
	root.SetArgs([]string{"inspect", "--log", filepath.Join(t.TempDir(), "missing.log")})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected error for missing log")
	}
}
