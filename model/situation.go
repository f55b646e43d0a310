// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"time"

	"github.com/xmidt-org/sirihub/transform"
)

// PtSituationElement is a service disruption (SX).
type PtSituationElement struct {
	CreationTime    time.Time               `json:"CreationTime"`
	ParticipantRef  *string                 `json:"ParticipantRef,omitempty"`
	SituationNumber string                  `json:"SituationNumber"`
	Version         *int                    `json:"Version,omitempty"`
	VersionedAtTime *time.Time              `json:"VersionedAtTime,omitempty"`
	Progress        string                  `json:"Progress,omitempty"`
	ValidityPeriod  []ValidityPeriod        `json:"ValidityPeriod,omitempty"`
	Severity        string                  `json:"Severity,omitempty"`
	ReportType      string                  `json:"ReportType,omitempty"`
	Summary         []NaturalLanguageString `json:"Summary,omitempty"`
	Description     []NaturalLanguageString `json:"Description,omitempty"`
	Advice          []NaturalLanguageString `json:"Advice,omitempty"`
	Affects         *Affects                `json:"Affects,omitempty"`
}

func (s *PtSituationElement) Accept(v transform.Visitor) {
	if s == nil {
		return
	}
	v.VisitRef(ParticipantRef, s.ParticipantRef)
	v.VisitNode(s.Affects)
}

// Affects is the scope of a situation.
type Affects struct {
	Networks        []*AffectedNetwork        `json:"Networks,omitempty"`
	StopPoints      []*AffectedStopPoint      `json:"StopPoints,omitempty"`
	StopPlaces      []*AffectedStopPlace      `json:"StopPlaces,omitempty"`
	VehicleJourneys []*AffectedVehicleJourney `json:"VehicleJourneys,omitempty"`
}

func (a *Affects) Accept(v transform.Visitor) {
	if a == nil {
		return
	}
	for _, n := range a.Networks {
		v.VisitNode(n)
	}
	for _, sp := range a.StopPoints {
		v.VisitNode(sp)
	}
	for _, sp := range a.StopPlaces {
		v.VisitNode(sp)
	}
	for _, vj := range a.VehicleJourneys {
		v.VisitNode(vj)
	}
}

type AffectedNetwork struct {
	NetworkRef    *string         `json:"NetworkRef,omitempty"`
	AffectedLines []*AffectedLine `json:"AffectedLine,omitempty"`
}

func (n *AffectedNetwork) Accept(v transform.Visitor) {
	if n == nil {
		return
	}
	v.VisitRef(NetworkRef, n.NetworkRef)
	for _, l := range n.AffectedLines {
		v.VisitNode(l)
	}
}

type AffectedLine struct {
	LineRef    *string              `json:"LineRef,omitempty"`
	StopPoints []*AffectedStopPoint `json:"StopPoints,omitempty"`
}

func (l *AffectedLine) Accept(v transform.Visitor) {
	if l == nil {
		return
	}
	v.VisitRef(LineRef, l.LineRef)
	for _, sp := range l.StopPoints {
		v.VisitNode(sp)
	}
}

type AffectedStopPoint struct {
	StopPointRef  *string `json:"StopPointRef,omitempty"`
	StopPointName string  `json:"StopPointName,omitempty"`
}

func (s *AffectedStopPoint) Accept(v transform.Visitor) {
	if s == nil {
		return
	}
	v.VisitRef(StopPointRef, s.StopPointRef)
}

type AffectedStopPlace struct {
	StopPlaceRef *string `json:"StopPlaceRef,omitempty"`
	PlaceName    string  `json:"PlaceName,omitempty"`
}

func (s *AffectedStopPlace) Accept(v transform.Visitor) {
	if s == nil {
		return
	}
	v.VisitRef(StopPlaceRef, s.StopPlaceRef)
}

type AffectedVehicleJourney struct {
	FramedVehicleJourneyRef *FramedVehicleJourneyRef `json:"FramedVehicleJourneyRef,omitempty"`
	LineRef                 *string                  `json:"LineRef,omitempty"`
	OperatorRef             *string                  `json:"OperatorRef,omitempty"`
}

func (j *AffectedVehicleJourney) Accept(v transform.Visitor) {
	if j == nil {
		return
	}
	v.VisitNode(j.FramedVehicleJourneyRef)
	v.VisitRef(LineRef, j.LineRef)
	v.VisitRef(OperatorRef, j.OperatorRef)
}
