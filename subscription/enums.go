// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package subscription

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownFeedKind = errors.New("unknown feed kind")
	ErrUnknownMode     = errors.New("unknown mode")
	ErrUnknownState    = errors.New("unknown state")
)

// FeedKind is the message family a feed carries.
type FeedKind int

const (
	SituationExchange FeedKind = iota + 1
	VehicleMonitoring
	EstimatedTimetable
	ProductionTimetable
)

var feedKindNames = map[FeedKind]string{
	SituationExchange:   "SituationExchange",
	VehicleMonitoring:   "VehicleMonitoring",
	EstimatedTimetable:  "EstimatedTimetable",
	ProductionTimetable: "ProductionTimetable",
}

// feed kind aliases, lower case
var feedKindAliases = map[string]FeedKind{
	"sx": SituationExchange,
	"vm": VehicleMonitoring,
	"et": EstimatedTimetable,
	"pt": ProductionTimetable,
}

func (k FeedKind) String() string {
	if name, ok := feedKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("FeedKind(%d)", int(k))
}

// ParseFeedKind accepts a kind name or its two letter abbreviation in any case.
func ParseFeedKind(s string) (FeedKind, error) {
	s = strings.TrimSpace(s)
	for k, name := range feedKindNames {
		if strings.EqualFold(name, s) {
			return k, nil
		}
	}
	if k, ok := feedKindAliases[strings.ToLower(s)]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFeedKind, s)
}

func (k FeedKind) MarshalText() ([]byte, error) {
	if _, ok := feedKindNames[k]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownFeedKind, int(k))
	}
	return []byte(k.String()), nil
}

func (k *FeedKind) UnmarshalText(text []byte) error {
	parsed, err := ParseFeedKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Mode is how data is obtained from the producer.
type Mode int

const (
	Subscribe Mode = iota + 1
	RequestResponse
	FetchedDelivery
	Polling
)

var modeNames = map[Mode]string{
	Subscribe:       "Subscribe",
	RequestResponse: "RequestResponse",
	FetchedDelivery: "FetchedDelivery",
	Polling:         "Polling",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode is case insensitive.
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(s)
	for m, name := range modeNames {
		if strings.EqualFold(name, s) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Fetches reports whether this node pulls data rather than having it pushed.
func (m Mode) Fetches() bool {
	return m == Polling || m == FetchedDelivery
}

func (m Mode) MarshalText() ([]byte, error) {
	if _, ok := modeNames[m]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// State is the lifecycle position of a subscription.
type State int

const (
	Pending State = iota + 1
	Active
	Dead
)

var stateNames = map[State]string{
	Pending: "pending",
	Active:  "active",
	Dead:    "dead",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// States lists every state in lifecycle order.
func States() []State {
	return []State{Pending, Active, Dead}
}

func (s State) MarshalText() ([]byte, error) {
	if _, ok := stateNames[s]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownState, int(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for st, name := range stateNames {
		if strings.EqualFold(name, string(text)) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownState, text)
}
