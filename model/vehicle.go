// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"time"

	"github.com/xmidt-org/sirihub/transform"
)

// VehicleActivity is a vehicle position report (VM).
type VehicleActivity struct {
	RecordedAtTime          time.Time                `json:"RecordedAtTime"`
	ValidUntilTime          time.Time                `json:"ValidUntilTime"`
	MonitoredVehicleJourney *MonitoredVehicleJourney `json:"MonitoredVehicleJourney,omitempty"`
}

func (a *VehicleActivity) Accept(v transform.Visitor) {
	if a == nil {
		return
	}
	v.VisitNode(a.MonitoredVehicleJourney)
}

type MonitoredVehicleJourney struct {
	LineRef                 *string                  `json:"LineRef,omitempty"`
	DirectionRef            *string                  `json:"DirectionRef,omitempty"`
	FramedVehicleJourneyRef *FramedVehicleJourneyRef `json:"FramedVehicleJourneyRef,omitempty"`
	JourneyPatternRef       *string                  `json:"JourneyPatternRef,omitempty"`
	PublishedLineName       string                   `json:"PublishedLineName,omitempty"`
	OperatorRef             *string                  `json:"OperatorRef,omitempty"`
	OriginRef               *string                  `json:"OriginRef,omitempty"`
	DestinationRef          *string                  `json:"DestinationRef,omitempty"`
	Monitored               bool                     `json:"Monitored"`
	DataSource              string                   `json:"DataSource,omitempty"`
	VehicleLocation         *Location                `json:"VehicleLocation,omitempty"`
	Bearing                 *float64                 `json:"Bearing,omitempty"`
	Delay                   string                   `json:"Delay,omitempty"`
	VehicleRef              *string                  `json:"VehicleRef,omitempty"`
	MonitoredCall           *MonitoredCall           `json:"MonitoredCall,omitempty"`
}

func (j *MonitoredVehicleJourney) Accept(v transform.Visitor) {
	if j == nil {
		return
	}
	v.VisitRef(LineRef, j.LineRef)
	v.VisitRef(DirectionRef, j.DirectionRef)
	v.VisitNode(j.FramedVehicleJourneyRef)
	v.VisitRef(JourneyPatternRef, j.JourneyPatternRef)
	v.VisitRef(OperatorRef, j.OperatorRef)
	v.VisitRef(OriginRef, j.OriginRef)
	v.VisitRef(DestinationRef, j.DestinationRef)
	v.VisitRef(VehicleRef, j.VehicleRef)
	v.VisitNode(j.MonitoredCall)
}

// Location is a WGS84 position. It is not part of the identifier tree.
type Location struct {
	Latitude  float64 `json:"Latitude"`
	Longitude float64 `json:"Longitude"`
}

type MonitoredCall struct {
	StopPointRef          *string    `json:"StopPointRef,omitempty"`
	Order                 int        `json:"Order,omitempty"`
	VehicleAtStop         bool       `json:"VehicleAtStop,omitempty"`
	ExpectedArrivalTime   *time.Time `json:"ExpectedArrivalTime,omitempty"`
	ExpectedDepartureTime *time.Time `json:"ExpectedDepartureTime,omitempty"`
}

func (c *MonitoredCall) Accept(v transform.Visitor) {
	if c == nil {
		return
	}
	v.VisitRef(StopPointRef, c.StopPointRef)
}
