// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package model holds the SIRI 2.0 message subset exchanged with producers and
// consumers. Every structural type implements transform.Node.
package model

import (
	"time"

	"github.com/xmidt-org/sirihub/transform"
)

// Identifier kinds reported to transform visitors.
const (
	LineRef                transform.RefKind = "LineRef"
	DirectionRef           transform.RefKind = "DirectionRef"
	StopPointRef           transform.RefKind = "StopPointRef"
	StopPlaceRef           transform.RefKind = "StopPlaceRef"
	OperatorRef            transform.RefKind = "OperatorRef"
	VehicleRef             transform.RefKind = "VehicleRef"
	OriginRef              transform.RefKind = "OriginRef"
	DestinationRef         transform.RefKind = "DestinationRef"
	ParticipantRef         transform.RefKind = "ParticipantRef"
	ProducerRef            transform.RefKind = "ProducerRef"
	NetworkRef             transform.RefKind = "NetworkRef"
	JourneyPatternRef      transform.RefKind = "JourneyPatternRef"
	DatedVehicleJourneyRef transform.RefKind = "DatedVehicleJourneyRef"
)

// Ref returns a pointer to s for populating optional identifier fields.
func Ref(s string) *string {
	return &s
}

// Deref returns the content of an optional field or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ServiceDelivery is one delivery from a producer or to a consumer.
type ServiceDelivery struct {
	ResponseTimestamp time.Time `json:"ResponseTimestamp"`
	ProducerRef       *string   `json:"ProducerRef,omitempty"`

	Situations                 []*PtSituationElement         `json:"Situations,omitempty"`
	VehicleActivities          []*VehicleActivity            `json:"VehicleActivity,omitempty"`
	EstimatedVehicleJourneys   []*EstimatedVehicleJourney    `json:"EstimatedVehicleJourney,omitempty"`
	DatedTimetableVersionFrame []*DatedTimetableVersionFrame `json:"DatedTimetableVersionFrame,omitempty"`
}

func (d *ServiceDelivery) Accept(v transform.Visitor) {
	if d == nil {
		return
	}
	v.VisitRef(ProducerRef, d.ProducerRef)
	for _, s := range d.Situations {
		v.VisitNode(s)
	}
	for _, va := range d.VehicleActivities {
		v.VisitNode(va)
	}
	for _, j := range d.EstimatedVehicleJourneys {
		v.VisitNode(j)
	}
	for _, f := range d.DatedTimetableVersionFrame {
		v.VisitNode(f)
	}
}

// Len returns the number of entities carried.
func (d *ServiceDelivery) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Situations) + len(d.VehicleActivities) + len(d.EstimatedVehicleJourneys) + len(d.DatedTimetableVersionFrame)
}

// ValidityPeriod is a time window with an optional end.
type ValidityPeriod struct {
	StartTime time.Time  `json:"StartTime"`
	EndTime   *time.Time `json:"EndTime,omitempty"`
}

// NaturalLanguageString is text with a language attribute.
type NaturalLanguageString struct {
	Lang string `json:"lang,omitempty"`
	Text string `json:"text"`
}

// FramedVehicleJourneyRef identifies a vehicle journey on an operating day.
type FramedVehicleJourneyRef struct {
	DataFrameRef           string  `json:"DataFrameRef"`
	DatedVehicleJourneyRef *string `json:"DatedVehicleJourneyRef,omitempty"`
}

func (f *FramedVehicleJourneyRef) Accept(v transform.Visitor) {
	if f == nil {
		return
	}
	v.VisitRef(DatedVehicleJourneyRef, f.DatedVehicleJourneyRef)
}
