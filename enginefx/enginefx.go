// Package enginefx installs an inferpipe.Engine as a go.uber.org/fx managed
// component: the engine is provided via fx.Provide and its teardown hooked
// into fx.Lifecycle.
package enginefx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/net/metrics"
	"go.uber.org/zap"

	"github.com/cambricon/inferpipe"
	"github.com/cambricon/inferpipe/internal/transhelper"
)

// Module provides an *inferpipe.Engine built from Params, started and
// stopped alongside the host fx.App.
var Module = fx.Options(
	fx.Provide(NewEngine),
)

// Params are the dependencies NewEngine pulls from the fx graph. Only
// Config is required; Logger, Scope and Consumer are optional and fall
// back to the same defaults inferpipe.New itself uses.
type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    inferpipe.Config
	Logger    *zap.Logger          `optional:"true"`
	Scope     *metrics.Scope       `optional:"true"`
	Consumer  transhelper.Consumer `optional:"true"`
}

// NewEngine constructs an Engine from Params and registers an fx.Hook that
// closes it on the host application's shutdown. There is no OnStart hook;
// inferpipe.New already starts the engine.
func NewEngine(p Params) (*inferpipe.Engine, error) {
	opts := []inferpipe.Option{}
	if p.Logger != nil {
		opts = append(opts, inferpipe.WithLogger(p.Logger))
	}
	if p.Scope != nil {
		opts = append(opts, inferpipe.WithMetricsScope(p.Scope))
	}
	if p.Consumer != nil {
		opts = append(opts, inferpipe.WithConsumer(p.Consumer))
	}

	engine, err := inferpipe.New(p.Config, opts...)
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return engine.Close()
		},
	})
	return engine, nil
}
