// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"net/http"

	"github.com/xmidt-org/sirihub/coordinator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type TableSyncIn struct {
	fx.In

	Config      Config
	Policies    *Policies
	Coordinator coordinator.C
	Logger      *zap.Logger
}

// Provide builds the mapping policies, the transformer and the table sync.
func Provide() fx.Option {
	return fx.Provide(
		NewPolicies,
		NewTransformer,
		func(in TableSyncIn) *TableSync {
			return NewTableSync(in.Coordinator, in.Policies, in.Config.Tables, &http.Client{}, in.Logger)
		},
	)
}
