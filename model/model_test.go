// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/sirihub/transform"
)

type refCollector struct {
	refs map[transform.RefKind][]string
}

func (c *refCollector) VisitRef(kind transform.RefKind, value *string) {
	if value != nil {
		c.refs[kind] = append(c.refs[kind], *value)
	}
}

func (c *refCollector) VisitNode(n transform.Node) {
	n.Accept(c)
}

func timeRef(t time.Time) *time.Time {
	return &t
}

func testDelivery() *ServiceDelivery {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	return &ServiceDelivery{
		ResponseTimestamp: now,
		ProducerRef:       Ref("RUT"),
		Situations: []*PtSituationElement{
			{
				ParticipantRef:  Ref("RUT"),
				SituationNumber: "RUT:SituationNumber:1",
				Affects: &Affects{
					Networks: []*AffectedNetwork{{
						NetworkRef: Ref("RUT:Network:1"),
						AffectedLines: []*AffectedLine{{
							LineRef:    Ref("RUT:Line:1"),
							StopPoints: []*AffectedStopPoint{{StopPointRef: Ref("NSR:Quay:1")}},
						}},
					}},
					StopPlaces: []*AffectedStopPlace{{StopPlaceRef: Ref("NSR:StopPlace:1")}},
				},
			},
		},
		VehicleActivities: []*VehicleActivity{
			{
				RecordedAtTime: now,
				ValidUntilTime: now.Add(time.Minute),
				MonitoredVehicleJourney: &MonitoredVehicleJourney{
					LineRef:    Ref("RUT:Line:2"),
					VehicleRef: Ref("1042"),
					FramedVehicleJourneyRef: &FramedVehicleJourneyRef{
						DataFrameRef:           "2024-03-01",
						DatedVehicleJourneyRef: Ref("RUT:ServiceJourney:9"),
					},
					MonitoredCall: &MonitoredCall{StopPointRef: Ref("NSR:Quay:2")},
				},
			},
		},
		EstimatedVehicleJourneys: []*EstimatedVehicleJourney{
			{
				LineRef:        Ref("RUT:Line:3"),
				RecordedCalls:  []*Call{{StopPointRef: Ref("NSR:Quay:3")}},
				EstimatedCalls: []*Call{{StopPointRef: Ref("NSR:Quay:4")}, nil},
			},
		},
		DatedTimetableVersionFrame: []*DatedTimetableVersionFrame{
			{
				LineRef: Ref("RUT:Line:4"),
				DatedVehicleJourneys: []*DatedVehicleJourney{{
					DatedCalls: []*DatedCall{{StopPointRef: Ref("NSR:Quay:5")}},
				}},
			},
		},
	}
}

func TestAcceptVisitsEveryRef(t *testing.T) {
	c := &refCollector{refs: map[transform.RefKind][]string{}}
	testDelivery().Accept(c)

	assert.Equal(t, []string{"RUT:Line:1", "RUT:Line:2", "RUT:Line:3", "RUT:Line:4"}, c.refs[LineRef])
	assert.Equal(t, []string{"NSR:Quay:1", "NSR:Quay:2", "NSR:Quay:3", "NSR:Quay:4", "NSR:Quay:5"}, c.refs[StopPointRef])
	assert.Equal(t, []string{"RUT", "RUT"}, append(c.refs[ProducerRef], c.refs[ParticipantRef]...))
	assert.Equal(t, []string{"NSR:StopPlace:1"}, c.refs[StopPlaceRef])
	assert.Equal(t, []string{"RUT:ServiceJourney:9"}, c.refs[DatedVehicleJourneyRef])
	assert.Equal(t, []string{"1042"}, c.refs[VehicleRef])
}

func TestTransformDelivery(t *testing.T) {
	d := testDelivery()
	transform.NewTransformer(nil).Transform(d, []transform.ValueAdapter{
		transform.ReplacePrefix(LineRef, "RUT:", "ENT:"),
	})
	assert.Equal(t, "ENT:Line:1", *d.Situations[0].Affects.Networks[0].AffectedLines[0].LineRef)
	assert.Equal(t, "ENT:Line:2", *d.VehicleActivities[0].MonitoredVehicleJourney.LineRef)
	assert.Equal(t, "ENT:Line:3", *d.EstimatedVehicleJourneys[0].LineRef)
	assert.Equal(t, "ENT:Line:4", *d.DatedTimetableVersionFrame[0].LineRef)
	assert.Equal(t, "RUT:ServiceJourney:9", *d.VehicleActivities[0].MonitoredVehicleJourney.FramedVehicleJourneyRef.DatedVehicleJourneyRef)
}

func TestLastCallTime(t *testing.T) {
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	j := &EstimatedVehicleJourney{
		RecordedCalls: []*Call{{ActualDepartureTime: timeRef(base)}},
		EstimatedCalls: []*Call{
			{AimedArrivalTime: timeRef(base.Add(10 * time.Minute)), ExpectedArrivalTime: timeRef(base.Add(12 * time.Minute))},
			nil,
			{AimedArrivalTime: timeRef(base.Add(20 * time.Minute))},
		},
	}
	assert.Equal(t, base.Add(20*time.Minute), j.LastCallTime())
	assert.True(t, (&EstimatedVehicleJourney{}).LastCallTime().IsZero())
}

func TestDeliveryJSON(t *testing.T) {
	data, err := json.Marshal(testDelivery())
	require.NoError(t, err)

	var d ServiceDelivery
	require.NoError(t, json.Unmarshal(data, &d))
	assert.Equal(t, 4, d.Len())
	assert.Equal(t, "RUT:Line:2", Deref(d.VehicleActivities[0].MonitoredVehicleJourney.LineRef))
	assert.Equal(t, "", Deref(nil))
}
