// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"time"

	"github.com/xmidt-org/sirihub/transform"
)

// DatedTimetableVersionFrame is a planned timetable version for a line (PT).
type DatedTimetableVersionFrame struct {
	RecordedAtTime       time.Time              `json:"RecordedAtTime"`
	VersionRef           string                 `json:"VersionRef"`
	ValidityPeriod       *ValidityPeriod        `json:"ValidityPeriod,omitempty"`
	LineRef              *string                `json:"LineRef,omitempty"`
	DirectionRef         *string                `json:"DirectionRef,omitempty"`
	OperatorRef          *string                `json:"OperatorRef,omitempty"`
	DatedVehicleJourneys []*DatedVehicleJourney `json:"DatedVehicleJourney,omitempty"`
}

func (f *DatedTimetableVersionFrame) Accept(v transform.Visitor) {
	if f == nil {
		return
	}
	v.VisitRef(LineRef, f.LineRef)
	v.VisitRef(DirectionRef, f.DirectionRef)
	v.VisitRef(OperatorRef, f.OperatorRef)
	for _, j := range f.DatedVehicleJourneys {
		v.VisitNode(j)
	}
}

type DatedVehicleJourney struct {
	DatedVehicleJourneyCode string       `json:"DatedVehicleJourneyCode"`
	OperatorRef             *string      `json:"OperatorRef,omitempty"`
	DestinationRef          *string      `json:"DestinationRef,omitempty"`
	DatedCalls              []*DatedCall `json:"DatedCalls,omitempty"`
}

func (j *DatedVehicleJourney) Accept(v transform.Visitor) {
	if j == nil {
		return
	}
	v.VisitRef(OperatorRef, j.OperatorRef)
	v.VisitRef(DestinationRef, j.DestinationRef)
	for _, c := range j.DatedCalls {
		v.VisitNode(c)
	}
}

type DatedCall struct {
	StopPointRef       *string    `json:"StopPointRef,omitempty"`
	Order              int        `json:"Order"`
	AimedArrivalTime   *time.Time `json:"AimedArrivalTime,omitempty"`
	AimedDepartureTime *time.Time `json:"AimedDepartureTime,omitempty"`
}

func (c *DatedCall) Accept(v transform.Visitor) {
	if c == nil {
		return
	}
	v.VisitRef(StopPointRef, c.StopPointRef)
}
