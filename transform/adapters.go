// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cast"
)

var (
	ErrUnknownAdapter = errors.New("unknown adapter type")
	ErrMissingTarget  = errors.New("adapter target cannot be empty")
	ErrInvalidArgs    = errors.New("invalid adapter arguments")
	ErrUnmapped       = errors.New("no mapping for value")
)

// Adapter types accepted in configuration.
const (
	PrefixAdapter        = "prefix"
	TrimPrefixAdapter    = "trimPrefix"
	ReplacePrefixAdapter = "replacePrefix"
	LeftPadAdapter       = "leftPad"
	MappingAdapter       = "mapping"
	LookupAdapter        = "lookup"
)

// Prefix prepends prefix unless the value already carries it.
func Prefix(target RefKind, prefix string) ValueAdapter {
	return ValueAdapter{
		Name:   PrefixAdapter,
		Target: target,
		Rewrite: func(v string) (string, error) {
			if strings.HasPrefix(v, prefix) {
				return v, nil
			}
			return prefix + v, nil
		},
	}
}

func TrimPrefix(target RefKind, prefix string) ValueAdapter {
	return ValueAdapter{
		Name:   TrimPrefixAdapter,
		Target: target,
		Rewrite: func(v string) (string, error) {
			return strings.TrimPrefix(v, prefix), nil
		},
	}
}

// ReplacePrefix swaps a leading codespace, e.g. "RUT:" for "ENT:".
func ReplacePrefix(target RefKind, old, new string) ValueAdapter {
	return ValueAdapter{
		Name:   ReplacePrefixAdapter,
		Target: target,
		Rewrite: func(v string) (string, error) {
			if !strings.HasPrefix(v, old) {
				return v, nil
			}
			return new + strings.TrimPrefix(v, old), nil
		},
	}
}

// LeftPad pads values shorter than length with pad.
func LeftPad(target RefKind, length int, pad string) ValueAdapter {
	return ValueAdapter{
		Name:   LeftPadAdapter,
		Target: target,
		Rewrite: func(v string) (string, error) {
			if pad == "" || len(v) >= length {
				return v, nil
			}
			var b strings.Builder
			for b.Len()+len(v) < length {
				b.WriteString(pad)
			}
			return b.String()[:length-len(v)] + v, nil
		},
	}
}

// Mapping replaces values found in pairs. With strict set, unmapped values are
// rejected and left as they were.
func Mapping(target RefKind, pairs map[string]string, strict bool) ValueAdapter {
	table := make(map[string]string, len(pairs))
	for k, v := range pairs {
		table[k] = v
	}
	return ValueAdapter{
		Name:   MappingAdapter,
		Target: target,
		Rewrite: func(v string) (string, error) {
			if mapped, ok := table[v]; ok {
				return mapped, nil
			}
			if strict {
				return v, fmt.Errorf("%w: %s", ErrUnmapped, v)
			}
			return v, nil
		},
	}
}

// Lookup is Mapping over a Table that can change at runtime.
func Lookup(target RefKind, table *Table) ValueAdapter {
	return ValueAdapter{
		Name:   LookupAdapter,
		Target: target,
		Rewrite: func(v string) (string, error) {
			if mapped, ok := table.Get(v); ok {
				return mapped, nil
			}
			return v, nil
		},
	}
}

// Table is a concurrently readable identifier mapping.
type Table struct {
	lock    sync.RWMutex
	entries map[string]string
}

func NewTable() *Table {
	return &Table{entries: map[string]string{}}
}

func (t *Table) Get(key string) (string, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	v, ok := t.entries[key]
	return v, ok
}

// Replace swaps in a complete new mapping.
func (t *Table) Replace(entries map[string]string) {
	copied := make(map[string]string, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	t.lock.Lock()
	t.entries = copied
	t.lock.Unlock()
}

func (t *Table) Len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return len(t.entries)
}

// AdapterConfig describes one adapter of a mapping policy.
type AdapterConfig struct {
	Type   string
	Target string
	Args   map[string]interface{}
}

// NewAdapter builds an adapter from configuration. Lookup adapters resolve
// their table by name through tables.
func NewAdapter(config AdapterConfig, tables func(name string) *Table) (ValueAdapter, error) {
	if config.Target == "" {
		return ValueAdapter{}, ErrMissingTarget
	}
	target := RefKind(config.Target)
	arg := func(name string) string {
		return cast.ToString(config.Args[strings.ToLower(name)])
	}

	switch strings.ToLower(config.Type) {
	case strings.ToLower(PrefixAdapter):
		return Prefix(target, arg("prefix")), nil
	case strings.ToLower(TrimPrefixAdapter):
		return TrimPrefix(target, arg("prefix")), nil
	case strings.ToLower(ReplacePrefixAdapter):
		return ReplacePrefix(target, arg("old"), arg("new")), nil
	case strings.ToLower(LeftPadAdapter):
		length, err := cast.ToIntE(config.Args["length"])
		if err != nil || length <= 0 {
			return ValueAdapter{}, fmt.Errorf("%w: leftPad length %v", ErrInvalidArgs, config.Args["length"])
		}
		pad := arg("pad")
		if pad == "" {
			pad = "0"
		}
		return LeftPad(target, length, pad), nil
	case strings.ToLower(MappingAdapter):
		pairs, err := parsePairs(config.Args["pairs"])
		if err != nil {
			return ValueAdapter{}, err
		}
		return Mapping(target, pairs, cast.ToBool(config.Args["strict"])), nil
	case strings.ToLower(LookupAdapter):
		name := arg("table")
		if name == "" || tables == nil {
			return ValueAdapter{}, fmt.Errorf("%w: lookup needs a table", ErrInvalidArgs)
		}
		return Lookup(target, tables(name)), nil
	}
	return ValueAdapter{}, fmt.Errorf("%w: %q", ErrUnknownAdapter, config.Type)
}

// parsePairs accepts "from=to" strings. Config loaders fold map keys to lower
// case, so identifier pairs cannot be given as a map.
func parsePairs(raw interface{}) (map[string]string, error) {
	list, err := cast.ToStringSliceE(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: mapping pairs: %w", ErrInvalidArgs, err)
	}
	pairs := make(map[string]string, len(list))
	for _, p := range list {
		from, to, ok := strings.Cut(p, "=")
		if !ok || from == "" {
			return nil, fmt.Errorf("%w: mapping pair %q", ErrInvalidArgs, p)
		}
		pairs[from] = to
	}
	return pairs, nil
}
