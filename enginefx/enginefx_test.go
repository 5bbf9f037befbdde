package enginefx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"

	"github.com/cambricon/inferpipe"
)

func TestNewEngineStartsAndStopsWithLifecycle(t *testing.T) {
	lc := fxtest.NewLifecycle(t)

	engine, err := NewEngine(Params{
		Lifecycle: lc,
		Config:    inferpipe.DefaultConfig(),
	})
	require.NoError(t, err)
	require.NotNil(t, engine)

	card, err := engine.FeedData(inferpipe.Frame{ItemIndex: 0})
	require.NoError(t, err)
	assert.NotNil(t, card)

	lc.RequireStop()
}
