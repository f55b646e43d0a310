// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"time"

	"github.com/xmidt-org/sirihub/transform"
)

// EstimatedVehicleJourney is a trip with realtime estimates (ET).
type EstimatedVehicleJourney struct {
	RecordedAtTime          time.Time                `json:"RecordedAtTime"`
	LineRef                 *string                  `json:"LineRef,omitempty"`
	DirectionRef            *string                  `json:"DirectionRef,omitempty"`
	FramedVehicleJourneyRef *FramedVehicleJourneyRef `json:"FramedVehicleJourneyRef,omitempty"`
	OperatorRef             *string                  `json:"OperatorRef,omitempty"`
	VehicleRef              *string                  `json:"VehicleRef,omitempty"`
	DataSource              string                   `json:"DataSource,omitempty"`
	Cancellation            bool                     `json:"Cancellation,omitempty"`
	ExtraJourney            bool                     `json:"ExtraJourney,omitempty"`
	IsCompleteStopSequence  bool                     `json:"IsCompleteStopSequence"`
	RecordedCalls           []*Call                  `json:"RecordedCalls,omitempty"`
	EstimatedCalls          []*Call                  `json:"EstimatedCalls,omitempty"`
}

func (j *EstimatedVehicleJourney) Accept(v transform.Visitor) {
	if j == nil {
		return
	}
	v.VisitRef(LineRef, j.LineRef)
	v.VisitRef(DirectionRef, j.DirectionRef)
	v.VisitNode(j.FramedVehicleJourneyRef)
	v.VisitRef(OperatorRef, j.OperatorRef)
	v.VisitRef(VehicleRef, j.VehicleRef)
	for _, c := range j.RecordedCalls {
		v.VisitNode(c)
	}
	for _, c := range j.EstimatedCalls {
		v.VisitNode(c)
	}
}

// LastCallTime returns the latest expected, actual or aimed time of any call,
// or the zero time when the journey carries no times.
func (j *EstimatedVehicleJourney) LastCallTime() time.Time {
	var last time.Time
	for _, calls := range [][]*Call{j.RecordedCalls, j.EstimatedCalls} {
		for _, c := range calls {
			if c == nil {
				continue
			}
			for _, t := range []*time.Time{
				c.AimedArrivalTime, c.ExpectedArrivalTime, c.ActualArrivalTime,
				c.AimedDepartureTime, c.ExpectedDepartureTime, c.ActualDepartureTime,
			} {
				if t != nil && t.After(last) {
					last = *t
				}
			}
		}
	}
	return last
}

// Call is a stop visit of a journey, recorded or estimated.
type Call struct {
	StopPointRef          *string    `json:"StopPointRef,omitempty"`
	Order                 int        `json:"Order"`
	StopPointName         string     `json:"StopPointName,omitempty"`
	Cancellation          bool       `json:"Cancellation,omitempty"`
	AimedArrivalTime      *time.Time `json:"AimedArrivalTime,omitempty"`
	ExpectedArrivalTime   *time.Time `json:"ExpectedArrivalTime,omitempty"`
	ActualArrivalTime     *time.Time `json:"ActualArrivalTime,omitempty"`
	AimedDepartureTime    *time.Time `json:"AimedDepartureTime,omitempty"`
	ExpectedDepartureTime *time.Time `json:"ExpectedDepartureTime,omitempty"`
	ActualDepartureTime   *time.Time `json:"ActualDepartureTime,omitempty"`
}

func (c *Call) Accept(v transform.Visitor) {
	if c == nil {
		return
	}
	v.VisitRef(StopPointRef, c.StopPointRef)
}
