package headless

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/mapkit/pkg/widget"
)

func TestMap_FiresStyleLoad(t *testing.T) {
	mod := NewModule(ModuleConfig{StyleDelay: 5 * time.Millisecond})
	m, err := mod.NewMap(NewContainer("c", 400, 300), widget.Options{Style: "streets"})
	require.NoError(t, err)

	loaded := make(chan struct{}, 1)
	m.On(widget.EventStyleLoad, func(widget.Event) { loaded <- struct{}{} })

	select {
	case <-loaded:
	case <-time.After(time.Second):
		t.Fatal("style.load not fired")
	}
	assert.True(t, m.IsStyleLoaded())
}

func TestMap_NeverLoadStyle(t *testing.T) {
	mod := NewModule(ModuleConfig{NeverLoadStyle: true})
	m, err := mod.NewMap(NewContainer("c", 400, 300), widget.Options{})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	assert.False(t, m.IsStyleLoaded())
}

func TestMap_OffAndRemove(t *testing.T) {
	mod := NewModule(ModuleConfig{NeverLoadStyle: true})
	wm, err := mod.NewMap(NewContainer("c", 400, 300), widget.Options{})
	require.NoError(t, err)
	m := wm.(*Map)

	calls := 0
	off := m.On(widget.EventMoveEnd, func(widget.Event) { calls++ })
	m.MoveTo(widget.LngLat{Lng: 1, Lat: 2}, 3)
	off()
	m.MoveTo(widget.LngLat{}, 1)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, m.ListenerCount())

	m.Remove()
	m.Remove()
	assert.True(t, m.Removed())
}

func TestLoader_Failure(t *testing.T) {
	mod := NewModule(ModuleConfig{LoadError: errors.New("cdn down")})

	_, err := mod.Loader().Load(context.Background())

	assert.EqualError(t, err, "cdn down")
	assert.Equal(t, 1, mod.Loads())
}

func TestNewMap_DetachedContainer(t *testing.T) {
	c := NewContainer("c", 400, 300)
	c.Detach()

	_, err := NewModule(ModuleConfig{}).NewMap(c, widget.Options{})

	assert.Error(t, err)
}
