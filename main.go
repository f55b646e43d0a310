// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/xmidt-org/arrange"
	"github.com/xmidt-org/candlelight"
	"github.com/xmidt-org/sirihub/admin"
	"github.com/xmidt-org/sirihub/coordinator"
	"github.com/xmidt-org/sirihub/coordinator/db"
	"github.com/xmidt-org/sirihub/entity"
	"github.com/xmidt-org/sirihub/ingest"
	"github.com/xmidt-org/sirihub/ingest/kafka"
	"github.com/xmidt-org/sirihub/poll"
	"github.com/xmidt-org/sirihub/scheduler"
	"github.com/xmidt-org/sirihub/subscription"
	"github.com/xmidt-org/sirihub/transform"
	"github.com/xmidt-org/touchstone"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

const (
	applicationName = "sirihub"
)

var (
	GitCommit = "undefined"
	Version   = "undefined"
	BuildTime = "undefined"
)

func main() {
	v, logger, err := setup(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	app := fx.New(
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger}
		}),
		arrange.ForViper(v),
		fx.Supply(logger, v),
		provideConfig(),
		touchstone.Provide(),
		db.Provide(),
		coordinator.Provide(),
		provideStore(),
		scheduler.Provide(),
		entity.Provide(),
		subscription.Provide(),
		transform.Provide(),
		ingest.Provide(),
		kafka.Provide(),
		poll.Provide(),
		admin.Provide(),
		fx.Provide(
			candlelight.New,
		),
		fx.Invoke(
			scheduleTasks,
		),
	)

	switch err := app.Err(); {
	case errors.Is(err, pflag.ErrHelp):
		return
	case err == nil:
		app.Run()
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}
