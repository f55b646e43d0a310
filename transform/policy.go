// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrUnknownPolicy = errors.New("unknown mapping policy")

// Config is the "mapping" configuration section.
type Config struct {
	// Policies maps a policy name to its ordered adapters.
	Policies map[string][]AdapterConfig

	// Datasets selects the outbound policy per dataset id.
	Datasets map[string]string

	// Tables declares the lookup tables referenced by lookup adapters.
	Tables map[string]TableConfig
}

// Policy is an ordered list of adapters for one downstream consumer.
type Policy struct {
	Name     string
	Adapters []ValueAdapter
}

// Policies resolves the mapping policy for each dataset.
type Policies struct {
	policies map[string]Policy
	datasets map[string]string
	tables   map[string]*Table
}

func NewPolicies(config Config) (*Policies, error) {
	p := &Policies{
		policies: make(map[string]Policy, len(config.Policies)),
		datasets: make(map[string]string, len(config.Datasets)),
		tables:   map[string]*Table{},
	}
	for name := range config.Tables {
		p.tables[strings.ToLower(name)] = NewTable()
	}

	for name, adapterConfigs := range config.Policies {
		policy := Policy{Name: strings.ToLower(name)}
		for i, ac := range adapterConfigs {
			a, err := NewAdapter(ac, p.table)
			if err != nil {
				return nil, fmt.Errorf("policy %s adapter %d: %w", name, i, err)
			}
			policy.Adapters = append(policy.Adapters, a)
		}
		p.policies[policy.Name] = policy
	}
	for dataset, policy := range config.Datasets {
		if _, ok := p.policies[strings.ToLower(policy)]; !ok {
			return nil, fmt.Errorf("%w: %s for dataset %s", ErrUnknownPolicy, policy, dataset)
		}
		p.datasets[strings.ToLower(dataset)] = strings.ToLower(policy)
	}
	return p, nil
}

// table returns the named table, creating it on first reference.
func (p *Policies) table(name string) *Table {
	name = strings.ToLower(name)
	t, ok := p.tables[name]
	if !ok {
		t = NewTable()
		p.tables[name] = t
	}
	return t
}

// Table returns a declared table or nil.
func (p *Policies) Table(name string) *Table {
	return p.tables[strings.ToLower(name)]
}

// TableNames lists every table referenced by configuration.
func (p *Policies) TableNames() []string {
	names := make([]string, 0, len(p.tables))
	for name := range p.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ForDataset returns the adapters configured for datasetID; an empty list when
// the dataset has no policy.
func (p *Policies) ForDataset(datasetID string) []ValueAdapter {
	name, ok := p.datasets[strings.ToLower(datasetID)]
	if !ok {
		return nil
	}
	return p.policies[name].Adapters
}

// Policy returns a policy by name.
func (p *Policies) Policy(name string) (Policy, bool) {
	policy, ok := p.policies[strings.ToLower(name)]
	return policy, ok
}
