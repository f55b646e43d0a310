// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/suite"
	"github.com/xmidt-org/candlelight"
	"github.com/xmidt-org/sirihub/coordinator"
	"github.com/xmidt-org/sirihub/coordinator/coordtest"
	"github.com/xmidt-org/sirihub/entity"
	"github.com/xmidt-org/sirihub/expiring"
	"github.com/xmidt-org/sirihub/ingest"
	"github.com/xmidt-org/sirihub/model"
	"github.com/xmidt-org/sirihub/scheduler"
	"github.com/xmidt-org/sirihub/subscription"
	"github.com/xmidt-org/sirihub/transform"
)

type staticTasks []scheduler.Status

func (t staticTasks) Tasks() []scheduler.Status {
	return t
}

type RouterSuite struct {
	suite.Suite
	ctx     context.Context
	clock   *coordtest.Clock
	c       *coordinator.Coordinator
	service *Service
	router  http.Handler
	feedID  string
}

func (s *RouterSuite) SetupTest() {
	s.ctx = context.Background()
	c, clock := coordtest.Node(s.T())
	s.c, s.clock = c, clock

	registry, err := subscription.NewRegistry(c, subscription.Config{Clock: clock.Now}, subscription.NewTestMeasures(), nil)
	s.Require().NoError(err)
	repos, err := entity.NewRepositories(entity.Config{}, c, expiring.Config{Clock: clock.Now}, entity.NewTestMeasures(), nil)
	s.Require().NoError(err)
	policies, err := transform.NewPolicies(transform.Config{})
	s.Require().NoError(err)

	s.service = &Service{
		Coordinator: c,
		NodeID:      c.NodeID(),
		Registry:    registry,
		Repos:       repos,
		Publisher:   ingest.NewPublisher(repos, policies, transform.NewTransformer(nil)),
		Tasks:       staticTasks{{Key: "sweep", Leader: true}},
	}
	s.router = NewRouter(s.service, Config{}, nil, nil)

	s.feedID, err = registry.Register(s.ctx, subscription.Descriptor{
		FeedKind:          subscription.VehicleMonitoring,
		Mode:              subscription.Subscribe,
		HeartbeatInterval: time.Minute,
		DatasetID:         "RUT",
		VendorID:          "ruter-vm",
	})
	s.Require().NoError(err)

	_, err = repos.Vehicles.Upsert(s.ctx, "RUT", &model.VehicleActivity{
		RecordedAtTime: clock.Now(),
		ValidUntilTime: clock.Now().Add(time.Hour),
		MonitoredVehicleJourney: &model.MonitoredVehicleJourney{
			VehicleRef: model.Ref("bus-1"),
			LineRef:    model.Ref("RUT:Line:1"),
		},
	})
	s.Require().NoError(err)
}

func (s *RouterSuite) do(method, target string, body interface{}) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	if body != nil && rec.Code < 300 {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), body))
	}
	return rec
}

func (s *RouterSuite) TestLeases() {
	acquired, err := s.c.TryAcquire(s.ctx, "poll/abc", "node-0", 0)
	s.Require().NoError(err)
	s.Require().True(acquired)

	var leases []coordinator.Lease
	rec := s.do(http.MethodGet, "/api/v1/leases", &leases)
	s.Equal(http.StatusOK, rec.Code)
	s.Require().Len(leases, 1)
	s.Equal("poll/abc", leases[0].Key)
	s.Equal("node-0", leases[0].Holder)

	rec = s.do(http.MethodDelete, "/api/v1/leases/poll/abc", nil)
	s.Equal(http.StatusNoContent, rec.Code)

	remaining, err := s.c.Leases(s.ctx)
	s.Require().NoError(err)
	s.Empty(remaining)
}

func (s *RouterSuite) TestMembers() {
	rec := s.do(http.MethodGet, "/api/v1/members", nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *RouterSuite) TestClearDataset() {
	var response clearDatasetResponse
	rec := s.do(http.MethodDelete, "/api/v1/datasets/RUT", &response)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("RUT", response.Dataset)
	s.Equal(1, response.Removed[entity.VehiclesKind])
	s.Equal(0, response.Removed[entity.SituationsKind])

	n, err := s.service.Repos.Vehicles.Count(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *RouterSuite) TestSubscriptions() {
	var dump subscription.Dump
	rec := s.do(http.MethodGet, "/api/v1/subscriptions", &dump)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(1, dump.Total)
	s.Equal(1, dump.States[subscription.Pending.String()])

	var d subscription.Descriptor
	rec = s.do(http.MethodGet, "/api/v1/subscriptions/"+s.feedID, &d)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(s.feedID, d.ID)
	s.Equal("RUT", d.DatasetID)

	rec = s.do(http.MethodGet, "/api/v1/subscriptions/missing", nil)
	s.Equal(http.StatusNotFound, rec.Code)
	s.NotEmpty(rec.Header().Get(ErrorHeaderKey))
}

func (s *RouterSuite) TestStartStop() {
	var d subscription.Descriptor
	rec := s.do(http.MethodPost, "/api/v1/subscriptions/"+s.feedID+"/start", &d)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(subscription.Active, d.State)
	s.Equal(s.feedID, d.ID)

	var stopped subscription.Descriptor
	rec = s.do(http.MethodPost, "/api/v1/subscriptions/"+s.feedID+"/stop", &stopped)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(subscription.Dead, stopped.State)

	var restarted subscription.Descriptor
	rec = s.do(http.MethodPost, "/api/v1/subscriptions/"+s.feedID+"/start", &restarted)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal(subscription.Pending, restarted.State)
	s.NotEqual(s.feedID, restarted.ID)

	rec = s.do(http.MethodPost, "/api/v1/subscriptions/missing/stop", nil)
	s.Equal(http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodPost, "/api/v1/subscriptions/missing/start", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *RouterSuite) TestStats() {
	var stats Stats
	rec := s.do(http.MethodGet, "/api/v1/stats", &stats)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("node-0", stats.NodeID)
	s.Equal(1, stats.Entities[entity.VehiclesKind])
	s.Equal(1, stats.Subscriptions[subscription.Pending.String()])
	s.Equal([]scheduler.Status{{Key: "sweep", Leader: true}}, stats.Tasks)
}

func (s *RouterSuite) TestSnapshot() {
	var d model.ServiceDelivery
	rec := s.do(http.MethodGet, "/api/v1/snapshot/vehicles?dataset=RUT", &d)
	s.Equal(http.StatusOK, rec.Code)
	s.Require().Len(d.VehicleActivities, 1)
	s.Equal("bus-1", model.Deref(d.VehicleActivities[0].MonitoredVehicleJourney.VehicleRef))

	var other model.ServiceDelivery
	rec = s.do(http.MethodGet, "/api/v1/snapshot/vehicles?dataset=OTHER", &other)
	s.Equal(http.StatusOK, rec.Code)
	s.Empty(other.VehicleActivities)

	rec = s.do(http.MethodGet, "/api/v1/snapshot/ferries", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *RouterSuite) TestHealth() {
	var body map[string]string
	rec := s.do(http.MethodGet, "/health", &body)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("up", body["status"])
}

func (s *RouterSuite) TestUnknownRoute() {
	rec := s.do(http.MethodGet, "/api/v1/nothing", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *RouterSuite) TestTracing() {
	tracing, err := candlelight.New(candlelight.Config{})
	s.Require().NoError(err)

	r := mux.NewRouter()
	Route(r, s.service, Config{}, &tracing, promhttp.Handler())

	tcs := []struct {
		Description string
		Target      string
		Header      string
	}{
		{Description: "No parent", Target: "/health"},
		{Description: "Parent trace", Target: "/api/v1/stats", Header: "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
		{Description: "Metrics", Target: "/metrics"},
	}
	for _, tc := range tcs {
		s.Run(tc.Description, func() {
			req := httptest.NewRequest(http.MethodGet, tc.Target, nil)
			if tc.Header != "" {
				req.Header.Set("traceparent", tc.Header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			s.Equal(http.StatusOK, rec.Code)
		})
	}
}

func (s *RouterSuite) TestAuthErrors() {
	router := NewRouter(s.service, Config{Auth: AuthConfig{Secret: "secret"}}, nil, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Equal("Bearer", rec.Header().Get(authenticateHeader))
	s.Contains(rec.Header().Get(ErrorHeaderKey), ErrMissingToken.Error())

	var body map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Contains(body["error"], ErrMissingToken.Error())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	s.Equal(http.StatusOK, rec.Code, "health is not behind auth")
}

func TestRouter(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}
