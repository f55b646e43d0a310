// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"encoding/json"
	"net/http"

	"github.com/go-kit/kit/endpoint"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/xmidt-org/candlelight"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

const (
	apiBase    = "/api/v1"
	serverName = "server_admin"
)

// Config is the "admin" configuration section. The listener itself is
// configured under "admin.server".
type Config struct {
	Auth AuthConfig
}

func server(s *Service, build func(*Service) endpoint.Endpoint, dec kithttp.DecodeRequestFunc, enc kithttp.EncodeResponseFunc) http.Handler {
	return kithttp.NewServer(
		build(s),
		dec,
		enc,
		kithttp.ServerErrorEncoder(encodeError),
	)
}

// NewRouter builds a router carrying the admin routes.
func NewRouter(s *Service, config Config, tracing *candlelight.Tracing, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()
	Route(r, s, config, tracing, metrics)
	return r
}

// Route installs the admin routes on r. Tracing and the metrics handler are
// optional.
func Route(r *mux.Router, s *Service, config Config, tracing *candlelight.Tracing, metrics http.Handler) {
	if tracing != nil {
		r.Use(
			otelmux.Middleware(serverName,
				otelmux.WithTracerProvider(tracing.TracerProvider()),
				otelmux.WithPropagators(tracing.Propagator()),
			),
			candlelight.EchoFirstTraceNodeInfo(*tracing, false),
		)
	}

	chain := alice.New(BearerAuth(config.Auth))
	api := r.PathPrefix(apiBase).Subrouter()
	route := func(method, path string, h http.Handler) {
		api.Handle(path, chain.Then(h)).Methods(method)
	}

	route(http.MethodGet, "/leases", server(s, newLeasesEndpoint, decodeNothing, encodeJSON))
	route(http.MethodDelete, "/leases/{key:.+}", server(s, newForceUnlockEndpoint, decodeLeaseRequest, encodeNoContent))
	route(http.MethodGet, "/members", server(s, newMembersEndpoint, decodeNothing, encodeJSON))
	route(http.MethodDelete, "/datasets/{dataset}", server(s, newClearDatasetEndpoint, decodeDatasetRequest, encodeJSON))
	route(http.MethodGet, "/subscriptions", server(s, newSubscriptionsEndpoint, decodeNothing, encodeJSON))
	route(http.MethodGet, "/subscriptions/{id}", server(s, newSubscriptionEndpoint, decodeSubscriptionRequest, encodeJSON))
	route(http.MethodPost, "/subscriptions/{id}/start", server(s, newStartSubscriptionEndpoint, decodeSubscriptionRequest, encodeJSON))
	route(http.MethodPost, "/subscriptions/{id}/stop", server(s, newStopSubscriptionEndpoint, decodeSubscriptionRequest, encodeJSON))
	route(http.MethodGet, "/stats", server(s, newStatsEndpoint, decodeNothing, encodeJSON))
	route(http.MethodGet, "/snapshot/{kind}", server(s, newSnapshotEndpoint, decodeSnapshotRequest, encodeJSON))

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "up", "nodeId": s.NodeID})
	}).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
}
