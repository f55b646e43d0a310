// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/xmidt-org/sirihub/coordinator/coordtest"
	"github.com/xmidt-org/sirihub/expiring"
	"github.com/xmidt-org/sirihub/model"
)

type RepositorySuite struct {
	suite.Suite
	ctx      context.Context
	clock    *coordtest.Clock
	measures *Measures
	repos    *Repositories
}

func (s *RepositorySuite) SetupTest() {
	c, clock := coordtest.Node(s.T())
	s.ctx = context.Background()
	s.clock = clock
	s.measures = NewTestMeasures()
	repos, err := NewRepositories(Config{}, c, expiring.Config{Clock: clock.Now}, s.measures, nil)
	s.Require().NoError(err)
	s.repos = repos
}

func (s *RepositorySuite) vehicle(ref string, recordedAt time.Time, validFor time.Duration) *model.VehicleActivity {
	return &model.VehicleActivity{
		RecordedAtTime: recordedAt,
		ValidUntilTime: recordedAt.Add(validFor),
		MonitoredVehicleJourney: &model.MonitoredVehicleJourney{
			LineRef:    model.Ref("RUT:Line:1"),
			VehicleRef: model.Ref(ref),
		},
	}
}

func (s *RepositorySuite) count(c Collection) int {
	n, err := c.Count(s.ctx)
	s.Require().NoError(err)
	return n
}

func (s *RepositorySuite) TestIdempotentDedup() {
	v := s.vehicle("bus-1", s.clock.Now(), 10*time.Minute)

	outcome, err := s.repos.Vehicles.Upsert(s.ctx, "RUT", v)
	s.Require().NoError(err)
	s.Equal(Added, outcome)

	again := s.vehicle("bus-1", s.clock.Now(), 10*time.Minute)
	outcome, err = s.repos.Vehicles.Upsert(s.ctx, "RUT", again)
	s.Require().NoError(err)
	s.Equal(Unchanged, outcome)
	s.Equal(1, s.count(s.repos.Vehicles))
	s.Equal(float64(1), testutil.ToFloat64(s.measures.Upserts.WithLabelValues(VehiclesKind, "unchanged")))
	s.Equal(float64(1), testutil.ToFloat64(s.measures.Live.WithLabelValues(VehiclesKind)))
}

func (s *RepositorySuite) TestNewerVersionUpdates() {
	first := s.vehicle("bus-1", s.clock.Now(), 10*time.Minute)
	_, err := s.repos.Vehicles.Upsert(s.ctx, "RUT", first)
	s.Require().NoError(err)

	newer := s.vehicle("bus-1", s.clock.Now().Add(time.Second), 10*time.Minute)
	newer.MonitoredVehicleJourney.Delay = "PT1M"
	outcome, err := s.repos.Vehicles.Upsert(s.ctx, "RUT", newer)
	s.Require().NoError(err)
	s.Equal(Updated, outcome)

	older := s.vehicle("bus-1", s.clock.Now().Add(-time.Minute), 10*time.Minute)
	outcome, err = s.repos.Vehicles.Upsert(s.ctx, "RUT", older)
	s.Require().NoError(err)
	s.Equal(Unchanged, outcome)

	got, found, err := s.repos.Vehicles.Get(s.ctx, "RUT", "bus-1")
	s.Require().NoError(err)
	s.Require().True(found)
	s.Equal("PT1M", got.MonitoredVehicleJourney.Delay)
	s.Equal(1, s.count(s.repos.Vehicles))
}

func (s *RepositorySuite) TestExpiredOnArrival() {
	stale := s.vehicle("bus-1", s.clock.Now().Add(-time.Hour), time.Minute)
	outcome, err := s.repos.Vehicles.Upsert(s.ctx, "RUT", stale)
	s.Require().NoError(err)
	s.Equal(ExpiredIgnored, outcome)
	s.Zero(s.count(s.repos.Vehicles))
}

func (s *RepositorySuite) TestInvalidPayload() {
	outcome, err := s.repos.Vehicles.Upsert(s.ctx, "RUT", &model.VehicleActivity{})
	s.Require().NoError(err)
	s.Equal(Invalid, outcome)

	_, err = s.repos.Vehicles.Upsert(s.ctx, "", s.vehicle("bus-1", s.clock.Now(), time.Minute))
	s.ErrorIs(err, ErrEmptyDataset)
}

func (s *RepositorySuite) TestGetAllHidesExpiredBeforeSweep() {
	_, err := s.repos.Vehicles.Upsert(s.ctx, "RUT", s.vehicle("short", s.clock.Now(), time.Minute))
	s.Require().NoError(err)
	_, err = s.repos.Vehicles.Upsert(s.ctx, "RUT", s.vehicle("long", s.clock.Now(), time.Hour))
	s.Require().NoError(err)

	s.clock.Advance(2 * time.Minute)
	all, err := s.repos.Vehicles.GetAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal("long", model.Deref(all[0].MonitoredVehicleJourney.VehicleRef))

	removed, err := s.repos.Vehicles.Sweep(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, removed)
}

func (s *RepositorySuite) TestDatasetsAreNamespaced() {
	_, err := s.repos.Vehicles.Upsert(s.ctx, "RUT", s.vehicle("bus-1", s.clock.Now(), time.Hour))
	s.Require().NoError(err)
	outcome, err := s.repos.Vehicles.Upsert(s.ctx, "SKY", s.vehicle("bus-1", s.clock.Now(), time.Hour))
	s.Require().NoError(err)
	s.Equal(Added, outcome)
	s.Equal(2, s.count(s.repos.Vehicles))

	sky, err := s.repos.Vehicles.GetAllByDataset(s.ctx, "sky")
	s.Require().NoError(err)
	s.Len(sky, 1)

	removed, err := s.repos.Vehicles.ClearAllByDataset(s.ctx, "SKY")
	s.Require().NoError(err)
	s.Equal(1, removed)
	_, found, err := s.repos.Vehicles.Get(s.ctx, "RUT", "bus-1")
	s.Require().NoError(err)
	s.True(found)
	_, found, err = s.repos.Vehicles.Get(s.ctx, "SKY", "bus-1")
	s.Require().NoError(err)
	s.False(found)
}

func (s *RepositorySuite) TestOpenEndedSituationSurvivesSweeps() {
	situation := &model.PtSituationElement{
		CreationTime:    s.clock.Now(),
		ParticipantRef:  model.Ref("RUT"),
		SituationNumber: "RUT:SituationNumber:77",
		ValidityPeriod:  []model.ValidityPeriod{{StartTime: s.clock.Now()}},
	}
	outcome, err := s.repos.Situations.Upsert(s.ctx, "RUT", situation)
	s.Require().NoError(err)
	s.Equal(Added, outcome)

	for i := 0; i < 3; i++ {
		s.clock.Advance(24 * time.Hour)
		_, err = s.repos.Situations.Sweep(s.ctx)
		s.Require().NoError(err)
	}
	s.Equal(1, s.count(s.repos.Situations))
}

func (s *RepositorySuite) TestSituationRevisions() {
	version := 1
	situation := &model.PtSituationElement{
		CreationTime:    s.clock.Now(),
		SituationNumber: "9",
		Version:         &version,
		Summary:         []model.NaturalLanguageString{{Text: "first"}},
	}
	_, err := s.repos.Situations.Upsert(s.ctx, "RUT", situation)
	s.Require().NoError(err)

	next := 2
	revised := *situation
	revised.Version = &next
	revised.Summary = []model.NaturalLanguageString{{Text: "second"}}
	outcome, err := s.repos.Situations.Upsert(s.ctx, "RUT", &revised)
	s.Require().NoError(err)
	s.Equal(Updated, outcome)

	outcome, err = s.repos.Situations.Upsert(s.ctx, "RUT", situation)
	s.Require().NoError(err)
	s.Equal(Unchanged, outcome)

	all, err := s.repos.Situations.GetAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Equal("second", all[0].Summary[0].Text)
}

func (s *RepositorySuite) TestTimetableVersions() {
	frame := func(version string) *model.DatedTimetableVersionFrame {
		return &model.DatedTimetableVersionFrame{VersionRef: version, LineRef: model.Ref("L1")}
	}
	outcome, err := s.repos.Timetables.Upsert(s.ctx, "RUT", frame("2024-03-01"))
	s.Require().NoError(err)
	s.Equal(Added, outcome)
	outcome, err = s.repos.Timetables.Upsert(s.ctx, "RUT", frame("2024-02-01"))
	s.Require().NoError(err)
	s.Equal(Unchanged, outcome)
	outcome, err = s.repos.Timetables.Upsert(s.ctx, "RUT", frame("2024-04-01"))
	s.Require().NoError(err)
	s.Equal(Updated, outcome)
}

func (s *RepositorySuite) TestUnversionedPayloadsReplace() {
	frame := func(name string) *model.DatedTimetableVersionFrame {
		return &model.DatedTimetableVersionFrame{LineRef: model.Ref("L1"), DirectionRef: model.Ref(name)}
	}
	outcome, err := s.repos.Timetables.Upsert(s.ctx, "RUT", frame("1"))
	s.Require().NoError(err)
	s.Equal(Added, outcome)
	outcome, err = s.repos.Timetables.Upsert(s.ctx, "RUT", frame("1"))
	s.Require().NoError(err)
	s.Equal(Updated, outcome)

	// a versioned entry is still replaced by an unversioned one
	outcome, err = s.repos.Timetables.Upsert(s.ctx, "RUT", &model.DatedTimetableVersionFrame{VersionRef: "2024-03-01", LineRef: model.Ref("L2")})
	s.Require().NoError(err)
	s.Equal(Added, outcome)
	outcome, err = s.repos.Timetables.Upsert(s.ctx, "RUT", &model.DatedTimetableVersionFrame{LineRef: model.Ref("L2")})
	s.Require().NoError(err)
	s.Equal(Updated, outcome)

	unversioned := s.vehicle("bus-9", time.Time{}, 0)
	unversioned.ValidUntilTime = s.clock.Now().Add(time.Minute)
	outcome, err = s.repos.Vehicles.Upsert(s.ctx, "RUT", unversioned)
	s.Require().NoError(err)
	s.Equal(Added, outcome)
	outcome, err = s.repos.Vehicles.Upsert(s.ctx, "RUT", unversioned)
	s.Require().NoError(err)
	s.Equal(Updated, outcome)
}

func (s *RepositorySuite) TestCollectionLookup() {
	c, ok := s.repos.Collection(JourneysKind)
	s.Require().True(ok)
	s.Equal(JourneysKind, c.Kind())
	s.Equal("entities/journeys", c.Name())
	_, ok = s.repos.Collection("bogus")
	s.False(ok)
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func TestConcurrentUpsertsSerialize(t *testing.T) {
	c, clock := coordtest.Node(t)
	repo, err := NewRepository(Vehicles(Config{}), c, expiring.Config{Clock: clock.Now}, NewTestMeasures(), nil)
	require.NoError(t, err)
	ctx := context.Background()
	base := clock.Now()

	var (
		wg       sync.WaitGroup
		lock     sync.Mutex
		outcomes = map[Outcome]int{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := &model.VehicleActivity{
				RecordedAtTime: base.Add(time.Duration(i) * time.Second),
				ValidUntilTime: base.Add(time.Hour),
				MonitoredVehicleJourney: &model.MonitoredVehicleJourney{
					VehicleRef: model.Ref("bus-1"),
					Delay:      fmt.Sprintf("PT%dS", i),
				},
			}
			outcome, err := repo.Upsert(ctx, "RUT", v)
			assert.NoError(t, err)
			lock.Lock()
			outcomes[outcome]++
			lock.Unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, outcomes[Added])
	got, found, err := repo.Get(ctx, "RUT", "bus-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "PT9S", got.MonitoredVehicleJourney.Delay)
}

func TestOutcomeString(t *testing.T) {
	names := make([]string, 0, len(Outcomes()))
	for _, o := range Outcomes() {
		names = append(names, o.String())
	}
	assert.Equal(t, []string{"added", "updated", "unchanged", "expired-ignored", "invalid"}, names)
	assert.Equal(t, "unknown", Outcome(99).String())
}
