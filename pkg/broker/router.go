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

package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/novatechflow/kraftbroker/pkg/protocol"
)

// Handler serves one decoded request and returns the response payload,
// starting with the correlation id.
type Handler interface {
	Handle(ctx context.Context, header *protocol.RequestHeader, req protocol.Request) ([]byte, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, header *protocol.RequestHeader, req protocol.Request) ([]byte, error)

func (f HandlerFunc) Handle(ctx context.Context, header *protocol.RequestHeader, req protocol.Request) ([]byte, error) {
	return f(ctx, header, req)
}

// FrameHandler serves a request whose header has been decoded but whose body
// is still raw. A returned error closes the connection.
type FrameHandler interface {
	HandleFrame(ctx context.Context, header *protocol.RequestHeader, body []byte) ([]byte, error)
}

type route struct {
	version protocol.ApiVersion
	handler Handler
}

// Router dispatches requests by API key and enforces each API's version
// range. ApiVersions is answered by the router itself from its own table.
// Registration happens before serving; afterwards the router is read-only.
type Router struct {
	Logger *slog.Logger

	routes   map[int16]route
	versions []protocol.ApiVersion
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		Logger: logger,
		routes: make(map[int16]route),
	}
}

// Register binds handler to apiKey for versions min through max.
func (r *Router) Register(apiKey, minVersion, maxVersion int16, handler Handler) {
	v := protocol.ApiVersion{APIKey: apiKey, MinVersion: minVersion, MaxVersion: maxVersion}
	if _, exists := r.routes[apiKey]; exists {
		for i := range r.versions {
			if r.versions[i].APIKey == apiKey {
				r.versions[i] = v
			}
		}
	} else {
		r.versions = append(r.versions, v)
		sort.Slice(r.versions, func(i, j int) bool { return r.versions[i].APIKey < r.versions[j].APIKey })
	}
	r.routes[apiKey] = route{version: v, handler: handler}
}

// EnableApiVersions advertises and serves ApiVersions for min through max.
func (r *Router) EnableApiVersions(minVersion, maxVersion int16) {
	r.Register(protocol.APIKeyApiVersion, minVersion, maxVersion, HandlerFunc(r.handleApiVersions))
}

// SupportedAPIs returns the registered APIs sorted by key.
func (r *Router) SupportedAPIs() []protocol.ApiVersion {
	out := make([]protocol.ApiVersion, len(r.versions))
	copy(out, r.versions)
	return out
}

// HandleFrame implements FrameHandler.
func (r *Router) HandleFrame(ctx context.Context, header *protocol.RequestHeader, body []byte) ([]byte, error) {
	start := time.Now()
	api := apiName(header.APIKey)
	resp, outcome, err := r.dispatch(ctx, header, body)
	requestsTotal.WithLabelValues(api, outcome).Inc()
	requestDuration.WithLabelValues(api).Observe(time.Since(start).Seconds())
	return resp, err
}

func (r *Router) dispatch(ctx context.Context, header *protocol.RequestHeader, body []byte) ([]byte, string, error) {
	rt, ok := r.routes[header.APIKey]
	if !ok {
		r.logger().Warn("unknown api key",
			"api_key", header.APIKey,
			"api_version", header.APIVersion,
			"correlation_id", header.CorrelationID,
			"client_id", clientID(header))
		return protocol.EncodeErrorResponse(header.CorrelationID, protocol.UNSUPPORTED_API_KEY), "unknown_api", nil
	}
	if !rt.version.Supports(header.APIVersion) {
		r.logger().Warn("unsupported api version",
			"api", apiName(header.APIKey),
			"api_version", header.APIVersion,
			"min_version", rt.version.MinVersion,
			"max_version", rt.version.MaxVersion,
			"error", errorName(protocol.UNSUPPORTED_VERSION))
		if header.APIKey == protocol.APIKeyApiVersion {
			resp, err := protocol.EncodeApiVersionsResponse(&protocol.ApiVersionsResponse{
				CorrelationID: header.CorrelationID,
				ErrorCode:     protocol.UNSUPPORTED_VERSION,
				Versions:      r.versions,
			}, 0)
			return resp, "unsupported_version", err
		}
		return protocol.EncodeErrorResponse(header.CorrelationID, protocol.UNSUPPORTED_VERSION), "unsupported_version", nil
	}
	req, err := protocol.ParseRequestBody(header, body)
	if err != nil {
		return nil, "decode_error", fmt.Errorf("decode %s v%d: %w", apiName(header.APIKey), header.APIVersion, err)
	}
	r.logger().Debug("request",
		"api", apiName(header.APIKey),
		"api_version", header.APIVersion,
		"correlation_id", header.CorrelationID,
		"client_id", clientID(header))
	resp, err := rt.handler.Handle(ctx, header, req)
	if err != nil {
		return nil, "error", fmt.Errorf("handle %s v%d: %w", apiName(header.APIKey), header.APIVersion, err)
	}
	return resp, "ok", nil
}

func (r *Router) handleApiVersions(ctx context.Context, header *protocol.RequestHeader, req protocol.Request) ([]byte, error) {
	if apiReq, ok := req.(*protocol.ApiVersionsRequest); ok && apiReq.ClientSoftwareName != "" {
		r.logger().Debug("client software",
			"name", apiReq.ClientSoftwareName,
			"version", apiReq.ClientSoftwareVersion)
	}
	return protocol.EncodeApiVersionsResponse(&protocol.ApiVersionsResponse{
		CorrelationID: header.CorrelationID,
		ErrorCode:     protocol.NONE,
		Versions:      r.versions,
	}, header.APIVersion)
}

func (r *Router) logger() *slog.Logger {
	return loggerOrDefault(r.Logger)
}

func apiName(key int16) string {
	if name := kmsg.NameForKey(key); name != "" {
		return name
	}
	return "Unknown"
}

// errorName renders a Kafka error code the way clients print it.
func errorName(code int16) string {
	err := kerr.ErrorForCode(code)
	if err == nil {
		return "NONE"
	}
	var kafkaErr *kerr.Error
	if errors.As(err, &kafkaErr) {
		return kafkaErr.Message
	}
	return err.Error()
}

func clientID(header *protocol.RequestHeader) string {
	if header.ClientID == nil {
		return ""
	}
	return *header.ClientID
}
