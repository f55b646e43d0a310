// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/xmidt-org/sirihub/coordinator"
	"go.uber.org/zap"
)

// TablesMap is the cluster map holding published lookup tables.
const TablesMap = "mapping-tables"

const defaultTableRefresh = 5 * time.Minute

var (
	ErrUnknownTable       = errors.New("unknown lookup table")
	ErrTableSourceMissing = errors.New("lookup table has no source url")
	errNonSuccessResponse = errors.New("table source responded with a non-success status code")
)

// TableConfig describes where a lookup table is loaded from. The source must
// serve a JSON object of from -> to identifiers.
type TableConfig struct {
	URL string

	// RefreshInterval is how often the table is reloaded and republished.
	// (Optional). Defaults to 5 minutes.
	RefreshInterval time.Duration
}

// TableSync keeps lookup tables identical across nodes: one node loads each
// table from its source and publishes it to the cluster map, and every node
// pulls published tables into its local copies.
type TableSync struct {
	coordinator coordinator.C
	policies    *Policies
	configs     map[string]TableConfig
	client      *http.Client
	logger      *zap.Logger
}

func NewTableSync(c coordinator.C, policies *Policies, configs map[string]TableConfig, client *http.Client, logger *zap.Logger) *TableSync {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	normalized := make(map[string]TableConfig, len(configs))
	for name, config := range configs {
		if config.RefreshInterval <= 0 {
			config.RefreshInterval = defaultTableRefresh
		}
		normalized[strings.ToLower(name)] = config
	}
	return &TableSync{
		coordinator: c,
		policies:    policies,
		configs:     normalized,
		client:      client,
		logger:      logger,
	}
}

// Sources lists the tables that have a source url, sorted by name.
func (s *TableSync) Sources() []string {
	names := make([]string, 0, len(s.configs))
	for name, config := range s.configs {
		if config.URL != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// RefreshInterval returns the reload period of the named table.
func (s *TableSync) RefreshInterval(name string) time.Duration {
	if config, ok := s.configs[strings.ToLower(name)]; ok {
		return config.RefreshInterval
	}
	return defaultTableRefresh
}

// Publish loads the named table from its source and stores it in the cluster
// map. It must only run on the node holding the table's lease.
func (s *TableSync) Publish(ctx context.Context, name string) error {
	name = strings.ToLower(name)
	config, ok := s.configs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	if config.URL == "" {
		return fmt.Errorf("%w: %s", ErrTableSourceMissing, name)
	}
	entries, err := s.load(ctx, config.URL)
	if err != nil {
		return err
	}
	data, err := msgpack.Marshal(entries)
	if err != nil {
		return err
	}
	if err := s.coordinator.MapPut(ctx, TablesMap, name, data, 0); err != nil {
		return err
	}
	s.apply(name, entries)
	s.logger.Info("published lookup table", zap.String("table", name), zap.Int("entries", len(entries)))
	return nil
}

// Pull copies every published table into the local tables.
func (s *TableSync) Pull(ctx context.Context) error {
	published, err := s.coordinator.MapEntries(ctx, TablesMap)
	if err != nil {
		return err
	}
	for name, data := range published {
		var entries map[string]string
		if err := msgpack.Unmarshal(data, &entries); err != nil {
			s.logger.Error("failed to decode published table", zap.String("table", name), zap.Error(err))
			continue
		}
		s.apply(name, entries)
	}
	return nil
}

func (s *TableSync) apply(name string, entries map[string]string) {
	if t := s.policies.Table(name); t != nil {
		t.Replace(entries)
	}
}

func (s *TableSync) load(ctx context.Context, url string) (map[string]string, error) {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(r)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: received status %v", errNonSuccessResponse, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var entries map[string]string
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decoding table from %s: %w", url, err)
	}
	return entries, nil
}
