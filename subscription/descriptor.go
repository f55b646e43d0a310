// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package subscription

import (
	"maps"
	"strings"
	"time"
)

// Endpoint operations.
const (
	SubscribeEndpoint   = "subscribe"
	TerminateEndpoint   = "terminate"
	FetchEndpoint       = "fetch"
	CheckStatusEndpoint = "checkStatus"
)

// Descriptor is one upstream feed and its runtime state.
type Descriptor struct {
	ID string `json:"subscriptionId"`

	FeedKind             FeedKind          `json:"feedKind" validate:"required"`
	Mode                 Mode              `json:"mode" validate:"required"`
	DialectVersion       string            `json:"dialectVersion,omitempty"`
	EndpointAddresses    map[string]string `json:"endpointAddresses,omitempty" validate:"omitempty,dive,url"`
	HeartbeatInterval    time.Duration     `json:"heartbeatInterval" validate:"gte=0"`
	SubscriptionDuration time.Duration     `json:"subscriptionDuration" validate:"gte=0"`
	PollInterval         time.Duration     `json:"pollInterval,omitempty" validate:"gte=0"`
	DatasetID            string            `json:"datasetId" validate:"required"`
	VendorID             string            `json:"vendorId" validate:"required"`

	State              State      `json:"state"`
	PendingSince       *time.Time `json:"pendingSince,omitempty"`
	ActivatedAt        *time.Time `json:"activatedAt,omitempty"`
	LastDataReceivedAt *time.Time `json:"lastDataReceivedAt,omitempty"`
	StoppedAt          *time.Time `json:"stoppedAt,omitempty"`
}

// Identity is the part of a descriptor that names the same feed across
// re-registrations.
type Identity struct {
	VendorID  string
	DatasetID string
	FeedKind  FeedKind
}

func (d Descriptor) Identity() Identity {
	return Identity{VendorID: d.VendorID, DatasetID: d.DatasetID, FeedKind: d.FeedKind}
}

// Equivalent reports whether d and o describe the same feed configuration,
// ignoring the id and runtime state.
func (d Descriptor) Equivalent(o Descriptor) bool {
	return d.FeedKind == o.FeedKind &&
		d.Mode == o.Mode &&
		d.DialectVersion == o.DialectVersion &&
		maps.Equal(d.EndpointAddresses, o.EndpointAddresses) &&
		d.HeartbeatInterval == o.HeartbeatInterval &&
		d.SubscriptionDuration == o.SubscriptionDuration &&
		d.PollInterval == o.PollInterval &&
		d.DatasetID == o.DatasetID &&
		d.VendorID == o.VendorID
}

// Endpoint returns the address configured for an operation. Operation names
// are case insensitive.
func (d Descriptor) Endpoint(operation string) (string, bool) {
	for op, address := range d.EndpointAddresses {
		if strings.EqualFold(op, operation) && address != "" {
			return address, true
		}
	}
	return "", false
}

// withConfig copies the configuration fields of o into d.
func (d Descriptor) withConfig(o Descriptor) Descriptor {
	d.FeedKind = o.FeedKind
	d.Mode = o.Mode
	d.DialectVersion = o.DialectVersion
	d.EndpointAddresses = maps.Clone(o.EndpointAddresses)
	d.HeartbeatInterval = o.HeartbeatInterval
	d.SubscriptionDuration = o.SubscriptionDuration
	d.PollInterval = o.PollInterval
	d.DatasetID = o.DatasetID
	d.VendorID = o.VendorID
	return d
}

// FeedConfig is one entry of the "subscriptions" configuration list.
type FeedConfig struct {
	FeedKind             string
	Mode                 string
	DialectVersion       string
	EndpointAddresses    map[string]string
	HeartbeatInterval    time.Duration
	SubscriptionDuration time.Duration
	PollInterval         time.Duration
	DatasetID            string
	VendorID             string
}

// Descriptor converts the configuration into a descriptor ready to register.
func (f FeedConfig) Descriptor() (Descriptor, error) {
	kind, err := ParseFeedKind(f.FeedKind)
	if err != nil {
		return Descriptor{}, err
	}
	mode, err := ParseMode(f.Mode)
	if err != nil {
		return Descriptor{}, err
	}
	return Descriptor{
		FeedKind:             kind,
		Mode:                 mode,
		DialectVersion:       f.DialectVersion,
		EndpointAddresses:    f.EndpointAddresses,
		HeartbeatInterval:    f.HeartbeatInterval,
		SubscriptionDuration: f.SubscriptionDuration,
		PollInterval:         f.PollInterval,
		DatasetID:            f.DatasetID,
		VendorID:             f.VendorID,
	}, nil
}
