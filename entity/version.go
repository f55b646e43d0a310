// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"strconv"
	"strings"
	"time"
)

// Version orders successive states of one entity. Fields are compared in
// order, each only when both sides carry it: Rev numerically, At by time and
// Tag lexicographically. The first difference decides; no difference means
// the versions are equal.
type Version struct {
	Rev *int64     `json:"rev,omitempty"`
	At  *time.Time `json:"at,omitempty"`
	Tag string     `json:"tag,omitempty"`
}

// IsZero reports whether v carries nothing to order by. A zero timestamp
// counts as absent.
func (v Version) IsZero() bool {
	return v.Rev == nil && (v.At == nil || v.At.IsZero()) && v.Tag == ""
}

// Compare returns -1, 0 or 1 as v is older than, equal to or newer than o.
func (v Version) Compare(o Version) int {
	if v.Rev != nil && o.Rev != nil {
		switch {
		case *v.Rev < *o.Rev:
			return -1
		case *v.Rev > *o.Rev:
			return 1
		}
	}
	if v.At != nil && o.At != nil {
		if c := v.At.Compare(*o.At); c != 0 {
			return c
		}
	}
	if v.Tag != "" && o.Tag != "" {
		return strings.Compare(v.Tag, o.Tag)
	}
	return 0
}

func (v Version) String() string {
	var b strings.Builder
	if v.Rev != nil {
		b.WriteString("rev=")
		b.WriteString(strconv.FormatInt(*v.Rev, 10))
	}
	if v.At != nil {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("at=")
		b.WriteString(v.At.UTC().Format(time.RFC3339Nano))
	}
	if v.Tag != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("tag=")
		b.WriteString(v.Tag)
	}
	return b.String()
}
