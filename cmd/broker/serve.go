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
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/novatechflow/kraftbroker/internal/config"
	"github.com/novatechflow/kraftbroker/pkg/broker"
	"github.com/novatechflow/kraftbroker/pkg/cache"
	"github.com/novatechflow/kraftbroker/pkg/metadata"
	"github.com/novatechflow/kraftbroker/pkg/protocol"
	"github.com/novatechflow/kraftbroker/pkg/storage"
)

const startupTimeout = 30 * time.Second

// app holds everything the broker needs once configuration is loaded.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *metadata.LogStore
	segments  storage.SegmentReader
	s3        storage.S3Client
	cache     *cache.PartitionCache
	health    *broker.HealthMonitor
	fetchRate *byteRate
	serving   atomic.Bool
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := metadata.LoadLog(cfg.Metadata.LogPath, metadata.LoadOptions{UseMmap: cfg.Metadata.Mmap})
	if err != nil {
		return nil, fmt.Errorf("load metadata log: %w", err)
	}
	logger.Info("metadata log loaded",
		"path", cfg.Metadata.LogPath,
		"batches", len(store.Index().Batches),
		"topics", len(store.Topics()),
		"mmap", cfg.Metadata.Mmap)

	a := &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		health:    broker.NewHealthMonitor(broker.HealthConfig{}),
		fetchRate: newByteRate(time.Minute),
	}
	segments, err := a.buildSegmentReader(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.Data.CacheBytes > 0 {
		a.cache = cache.NewPartitionCache(cfg.Data.CacheBytes)
		segments = &storage.CachedSegmentReader{Next: segments, Cache: a.cache}
	}
	a.segments = &meteredReader{next: segments, rate: a.fetchRate}
	return a, nil
}

func (a *app) buildSegmentReader(ctx context.Context) (storage.SegmentReader, error) {
	data := a.cfg.Data
	if data.Backend != config.BackendS3 {
		a.logger.Info("reading partition data from disk", "root", data.Root)
		return &storage.FileSegmentReader{Root: data.Root}, nil
	}
	accessKey := os.Getenv(config.EnvPrefix + "S3_ACCESS_KEY")
	secretKey := os.Getenv(config.EnvPrefix + "S3_SECRET_KEY")
	client, err := storage.NewS3Client(ctx, storage.S3Config{
		Bucket:          data.S3.Bucket,
		Region:          data.S3.Region,
		Endpoint:        data.S3.Endpoint,
		ForcePathStyle:  data.S3.PathStyle,
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		SessionToken:    os.Getenv(config.EnvPrefix + "S3_SESSION_TOKEN"),
	})
	if err != nil {
		return nil, fmt.Errorf("build s3 client: %w", err)
	}
	a.s3 = client
	a.logger.Info("reading partition data from S3",
		"bucket", data.S3.Bucket,
		"region", data.S3.Region,
		"endpoint", data.S3.Endpoint,
		"prefix", data.S3.Prefix,
		"force_path_style", data.S3.PathStyle,
		"credentials_provided", accessKey != "" && secretKey != "")
	return &storage.S3SegmentReader{Client: client, Prefix: data.S3.Prefix}, nil
}

func (a *app) router() *broker.Router {
	router := broker.NewRouter(a.logger)
	router.EnableApiVersions(protocol.ApiVersionsMinVersion, protocol.ApiVersionsMaxVersion)
	router.Register(protocol.APIKeyFetch, protocol.FetchMinVersion, protocol.FetchMaxVersion, &broker.FetchHandler{
		Store:    a.store,
		Segments: a.segments,
		Health:   a.health,
		Logger:   a.logger,
	})
	router.Register(protocol.APIKeyDescribeTopicPartitions,
		protocol.DescribeTopicPartitionsMinVersion, protocol.DescribeTopicPartitionsMaxVersion,
		&broker.DescribeTopicPartitionsHandler{Store: a.store, Logger: a.logger})
	return router
}

func (a *app) runStartupChecks(parent context.Context) error {
	if a.s3 == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(parent, startupTimeout)
	defer cancel()

	a.logger.Info("running startup checks", "timeout", startupTimeout)
	backoff := 500 * time.Millisecond
	for {
		err := a.s3.CheckBucket(ctx)
		if err == nil {
			a.logger.Info("startup checks passed")
			return nil
		}
		a.logger.Warn("s3 bucket check failed, retrying", "bucket", a.cfg.Data.S3.Bucket, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("s3 readiness check failed: %w", err)
		case <-time.After(backoff):
		}
	}
}

// readiness reports whether the broker accepts connections and its data
// backend is usable, plus the backend health state for probes.
func (a *app) readiness() (bool, string) {
	state := a.health.State()
	return a.serving.Load() && state != broker.HealthUnavailable, string(state)
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := a.runStartupChecks(ctx); err != nil {
		return err
	}
	registerAppMetrics(metricsRegisterer, a)

	srv := &broker.Server{
		Addr:          cfg.Broker.Listen,
		Handler:       a.router(),
		Logger:        logger,
		MaxFrameBytes: cfg.Broker.MaxFrameBytes,
		IdleTimeout:   time.Duration(cfg.Broker.IdleTimeout),
	}
	if err := srv.Listen(); err != nil {
		return err
	}
	srv.Pool = broker.NewWorkerPool(cfg.Broker.Workers)

	startMetricsServer(ctx, cfg.Metrics.Listen, a, logger)
	healthSrv := startControlServer(ctx, cfg.Control.Listen, a, logger)

	a.serving.Store(true)
	a.syncHealth(healthSrv)
	err = srv.Serve(ctx)
	a.serving.Store(false)
	a.syncHealth(healthSrv)
	return err
}
