// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"strings"
	"time"

	"github.com/xmidt-org/sirihub/model"
)

// Kind names.
const (
	SituationsKind = "situations"
	VehiclesKind   = "vehicles"
	JourneysKind   = "journeys"
	TimetablesKind = "timetables"
)

const (
	defaultFallbackTTL = time.Hour
	keySeparator       = ":"
)

// Config is the "entities" configuration section.
type Config struct {
	// Grace extends every validity bound derived from a payload.
	Grace time.Duration

	// FallbackTTL bounds vehicles and journeys that carry no usable end time.
	// (Optional). Defaults to one hour.
	FallbackTTL time.Duration
}

func (c Config) fallbackTTL() time.Duration {
	if c.FallbackTTL <= 0 {
		return defaultFallbackTTL
	}
	return c.FallbackTTL
}

// Kind describes how one entity type is identified, versioned and expired.
type Kind[V any] struct {
	Name string

	// Key derives the identity of a payload within its dataset. An empty key
	// means the payload cannot be identified.
	Key func(v V) string

	// ValidUntil derives the validity bound. nil never expires.
	ValidUntil func(v V, now time.Time) *time.Time

	Version func(v V) Version
}

func joinKey(parts ...string) string {
	for _, p := range parts {
		if p == "" {
			return ""
		}
	}
	return strings.Join(parts, keySeparator)
}

func plus(t time.Time, d time.Duration) *time.Time {
	t = t.Add(d)
	return &t
}

// Situations are keyed by participant and situation number and live until the
// end of their last validity period. An open-ended period never expires.
func Situations(config Config) Kind[*model.PtSituationElement] {
	return Kind[*model.PtSituationElement]{
		Name: SituationsKind,
		Key: func(s *model.PtSituationElement) string {
			if s == nil {
				return ""
			}
			participant := model.Deref(s.ParticipantRef)
			if participant == "" {
				participant = "-"
			}
			return joinKey(participant, s.SituationNumber)
		},
		ValidUntil: func(s *model.PtSituationElement, _ time.Time) *time.Time {
			var end time.Time
			for _, p := range s.ValidityPeriod {
				if p.EndTime == nil {
					return nil
				}
				if p.EndTime.After(end) {
					end = *p.EndTime
				}
			}
			if end.IsZero() {
				return nil
			}
			return plus(end, config.Grace)
		},
		Version: func(s *model.PtSituationElement) Version {
			var v Version
			if s.Version != nil {
				rev := int64(*s.Version)
				v.Rev = &rev
			}
			switch {
			case s.VersionedAtTime != nil:
				at := *s.VersionedAtTime
				v.At = &at
			case !s.CreationTime.IsZero():
				at := s.CreationTime
				v.At = &at
			}
			return v
		},
	}
}

// Vehicles are keyed by vehicle, or by line and dated journey when the vehicle
// is not named, and live until their ValidUntilTime.
func Vehicles(config Config) Kind[*model.VehicleActivity] {
	return Kind[*model.VehicleActivity]{
		Name: VehiclesKind,
		Key: func(a *model.VehicleActivity) string {
			if a == nil || a.MonitoredVehicleJourney == nil {
				return ""
			}
			j := a.MonitoredVehicleJourney
			if ref := model.Deref(j.VehicleRef); ref != "" {
				return ref
			}
			if j.FramedVehicleJourneyRef == nil {
				return ""
			}
			return joinKey(model.Deref(j.LineRef), model.Deref(j.FramedVehicleJourneyRef.DatedVehicleJourneyRef))
		},
		ValidUntil: func(a *model.VehicleActivity, now time.Time) *time.Time {
			if !a.ValidUntilTime.IsZero() {
				return plus(a.ValidUntilTime, config.Grace)
			}
			if !a.RecordedAtTime.IsZero() {
				return plus(a.RecordedAtTime, config.fallbackTTL())
			}
			return plus(now, config.fallbackTTL())
		},
		Version: func(a *model.VehicleActivity) Version {
			at := a.RecordedAtTime
			return Version{At: &at}
		},
	}
}

// Journeys are keyed by line, dated journey and operating day and live until
// their last call.
func Journeys(config Config) Kind[*model.EstimatedVehicleJourney] {
	return Kind[*model.EstimatedVehicleJourney]{
		Name: JourneysKind,
		Key: func(j *model.EstimatedVehicleJourney) string {
			if j == nil || j.FramedVehicleJourneyRef == nil {
				return ""
			}
			f := j.FramedVehicleJourneyRef
			return joinKey(model.Deref(j.LineRef), model.Deref(f.DatedVehicleJourneyRef), f.DataFrameRef)
		},
		ValidUntil: func(j *model.EstimatedVehicleJourney, now time.Time) *time.Time {
			if last := j.LastCallTime(); !last.IsZero() {
				return plus(last, config.Grace)
			}
			if !j.RecordedAtTime.IsZero() {
				return plus(j.RecordedAtTime, config.fallbackTTL())
			}
			return plus(now, config.fallbackTTL())
		},
		Version: func(j *model.EstimatedVehicleJourney) Version {
			at := j.RecordedAtTime
			return Version{At: &at}
		},
	}
}

// Timetables are keyed by line and direction; a frame with a greater
// VersionRef replaces the one held for the line.
func Timetables(config Config) Kind[*model.DatedTimetableVersionFrame] {
	return Kind[*model.DatedTimetableVersionFrame]{
		Name: TimetablesKind,
		Key: func(f *model.DatedTimetableVersionFrame) string {
			if f == nil {
				return ""
			}
			direction := model.Deref(f.DirectionRef)
			if direction == "" {
				direction = "-"
			}
			return joinKey(model.Deref(f.LineRef), direction)
		},
		ValidUntil: func(f *model.DatedTimetableVersionFrame, _ time.Time) *time.Time {
			if f.ValidityPeriod == nil || f.ValidityPeriod.EndTime == nil {
				return nil
			}
			return plus(*f.ValidityPeriod.EndTime, config.Grace)
		},
		Version: func(f *model.DatedTimetableVersionFrame) Version {
			return Version{Tag: f.VersionRef}
		},
	}
}
