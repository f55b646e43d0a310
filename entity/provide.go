// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package entity

import (
	"github.com/xmidt-org/sirihub/coordinator"
	"github.com/xmidt-org/sirihub/expiring"
	"github.com/xmidt-org/sirihub/model"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Repositories holds one repository per kind.
type Repositories struct {
	Situations *Repository[*model.PtSituationElement]
	Vehicles   *Repository[*model.VehicleActivity]
	Journeys   *Repository[*model.EstimatedVehicleJourney]
	Timetables *Repository[*model.DatedTimetableVersionFrame]
}

// All returns the repositories in a fixed order.
func (r *Repositories) All() []Collection {
	return []Collection{r.Situations, r.Vehicles, r.Journeys, r.Timetables}
}

// Collection returns the repository of the named kind.
func (r *Repositories) Collection(kind string) (Collection, bool) {
	for _, c := range r.All() {
		if c.Kind() == kind {
			return c, true
		}
	}
	return nil, false
}

// NewRepositories builds every repository on c.
func NewRepositories(config Config, c coordinator.C, storeConfig expiring.Config, measures *Measures, logger *zap.Logger) (*Repositories, error) {
	var (
		r   Repositories
		err error
	)
	if r.Situations, err = NewRepository(Situations(config), c, storeConfig, measures, logger); err != nil {
		return nil, err
	}
	if r.Vehicles, err = NewRepository(Vehicles(config), c, storeConfig, measures, logger); err != nil {
		return nil, err
	}
	if r.Journeys, err = NewRepository(Journeys(config), c, storeConfig, measures, logger); err != nil {
		return nil, err
	}
	if r.Timetables, err = NewRepository(Timetables(config), c, storeConfig, measures, logger); err != nil {
		return nil, err
	}
	return &r, nil
}

type RepositoriesIn struct {
	fx.In

	Config      Config
	StoreConfig expiring.Config
	Coordinator coordinator.C `name:"store"`
	Sweeper     *expiring.Sweeper
	Measures    Measures
	Logger      *zap.Logger
}

// Provide builds the repositories and registers them with the sweeper.
func Provide() fx.Option {
	return fx.Options(
		ProvideMetrics(),
		fx.Provide(
			func(in RepositoriesIn) (*Repositories, error) {
				r, err := NewRepositories(in.Config, in.Coordinator, in.StoreConfig, &in.Measures, in.Logger)
				if err != nil {
					return nil, err
				}
				for _, c := range r.All() {
					in.Sweeper.Register(c)
				}
				return r, nil
			},
		),
	)
}
