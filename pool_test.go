package mmal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/mmal"
	"github.com/thesyncim/mmal/mmaltest"
)

func TestCreatePool_UsesCurrentNegotiation(t *testing.T) {
	e := newEngine(t)
	p := output(t, newComponent(t, e, mmal.ComponentCamera), mmal.CameraVideoPort)

	p.SetBufferCount(5)
	p.SetBufferSize(3110400)
	pool, err := p.CreatePool()
	require.NoError(t, err)

	calls := e.CallsTo(mmaltest.OpPoolCreate)
	require.Len(t, calls, 1)
	assert.EqualValues(t, 5, calls[0].Count)
	assert.EqualValues(t, 3110400, calls[0].Size)
	assert.Equal(t, uintptr(p.Raw()), calls[0].Target)
	assert.Equal(t, 5, pool.Headers())
	assert.Equal(t, 5, pool.Len())
}

func TestCreatePoolWith_IgnoresNegotiation(t *testing.T) {
	e := newEngine(t)
	p := input(t, newComponent(t, e, mmal.ComponentVideoDecoder), 0)

	pool, err := p.CreatePoolWith(2, 512)
	require.NoError(t, err)

	call := e.CallsTo(mmaltest.OpPoolCreate)[0]
	assert.EqualValues(t, 2, call.Count)
	assert.EqualValues(t, 512, call.Size)
	assert.NotEqual(t, p.BufferCount(), call.Count)

	assert.True(t, pool.Handle().Owned())
	assert.Equal(t, p.Raw(), pool.Owner())
	buf, ok := pool.Get()
	require.True(t, ok)
	assert.Equal(t, 512, buf.Capacity())
	buf.Release()
}

func TestCreatePool_Failure(t *testing.T) {
	e := newEngine(t)
	c := newComponent(t, e, mmal.ComponentVideoDecoder)
	p := input(t, c, 0)

	e.Fail(mmaltest.OpPoolCreate, mmal.ENOMEM)
	pool, err := p.CreatePool()
	assert.Nil(t, pool)
	assert.ErrorIs(t, err, mmal.ErrPoolCreation)
	assert.Zero(t, c.Owned())
}

func TestPool_CloseBeforeComponent(t *testing.T) {
	e := newEngine(t)
	c := newComponent(t, e, mmal.ComponentVideoEncoder)

	pool, err := output(t, c, 0).CreatePool()
	require.NoError(t, err)
	assert.Equal(t, 1, c.Owned())

	require.NoError(t, pool.Close())
	assert.True(t, pool.Closed())
	assert.Zero(t, c.Owned())
	assert.Zero(t, e.Stats().Pools)

	require.NoError(t, pool.Close())
	assert.Len(t, e.CallsTo(mmaltest.OpPoolDestroy), 1)

	_, ok := pool.Get()
	assert.False(t, ok)
	assert.Zero(t, pool.Len())
	assert.Zero(t, pool.Headers())
}

func TestPool_ReleaseDisablesEnabledPort(t *testing.T) {
	e := newEngine(t)
	c, err := mmal.NewComponent(e, mmal.ComponentVideoEncoder)
	require.NoError(t, err)
	out := output(t, c, 0)

	returned := make(chan struct{}, 4)
	require.NoError(t, out.Enable(func(_ *mmal.Port, buf *mmal.Buffer) {
		buf.Release()
		returned <- struct{}{}
	}))
	pool, err := out.CreatePoolWith(2, 64)
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		buf, ok := pool.Get()
		require.True(t, ok)
		require.NoError(t, out.SendBuffer(buf))
	}

	// The component closes with the port still enabled; the pool's port is
	// disabled, returning its queued buffers, before the pool goes.
	require.NoError(t, c.Close())
	assert.Len(t, returned, 2)
	assert.True(t, pool.Closed())

	var order []mmaltest.Op
	for _, call := range e.Calls() {
		switch call.Op {
		case mmaltest.OpPortDisable, mmaltest.OpPoolDestroy, mmaltest.OpComponentDestroy:
			order = append(order, call.Op)
		}
	}
	assert.Equal(t, []mmaltest.Op{
		mmaltest.OpPortDisable,
		mmaltest.OpPoolDestroy,
		mmaltest.OpComponentDestroy,
	}, order)
	assert.Equal(t, mmaltest.Stats{}, e.Stats())
}

func TestPool_CloseKeepsPoolWhenPortWillNotDisable(t *testing.T) {
	e := newEngine(t)
	c := newComponent(t, e, mmal.ComponentVideoEncoder)
	out := output(t, c, 0)
	require.NoError(t, out.Enable(func(_ *mmal.Port, buf *mmal.Buffer) { buf.Release() }))
	pool, err := out.CreatePoolWith(1, 64)
	require.NoError(t, err)

	e.Fail(mmaltest.OpPortDisable, mmal.EIO)
	assert.ErrorIs(t, pool.Close(), mmal.EIO)
	assert.False(t, pool.Closed())
	assert.Equal(t, 1, c.Owned())
	assert.Empty(t, e.CallsTo(mmaltest.OpPoolDestroy))

	e.Fail(mmaltest.OpPortDisable, mmal.Success)
	require.NoError(t, pool.Close())
	assert.False(t, out.Enabled())
	assert.Zero(t, c.Owned())
}

func TestPool_OutlivesPortView(t *testing.T) {
	e := newEngine(t)
	c := newComponent(t, e, mmal.ComponentVideoEncoder)

	pool := func() *mmal.Pool {
		p, err := output(t, c, 0).CreatePoolWith(2, 64)
		require.NoError(t, err)
		return p
	}()

	// The view that created the pool is gone; teardown needs only the
	// pointers the pool captured.
	require.NoError(t, pool.Close())
	call := e.CallsTo(mmaltest.OpPoolDestroy)[0]
	assert.Equal(t, uintptr(pool.Raw()), call.Target)
	assert.Equal(t, uintptr(pool.Owner()), call.Peer)
}

func TestBuffer_FillAndReset(t *testing.T) {
	e := newEngine(t)
	pool, err := input(t, newComponent(t, e, mmal.ComponentVideoDecoder), 0).CreatePoolWith(1, 8)
	require.NoError(t, err)

	buf, ok := pool.Get()
	require.True(t, ok)
	_, ok = pool.Get()
	assert.False(t, ok, "pool of one handed out two buffers")

	n := buf.Fill([]byte("0123456789"), mmal.BufferFlagEOS|mmal.BufferFlagFrameEnd, 42)
	assert.Equal(t, 8, n)
	assert.Equal(t, []byte("01234567"), buf.Payload())
	assert.True(t, buf.Flags().Has(mmal.BufferFlagEOS))
	assert.False(t, buf.Flags().Has(mmal.BufferFlagFrame))
	assert.EqualValues(t, 42, buf.PTS())
	assert.Equal(t, mmal.TimeUnknown, buf.Header().DTS)
	assert.Zero(t, buf.Cmd())

	buf.Reset()
	assert.Empty(t, buf.Payload())
	assert.Zero(t, buf.Flags())

	buf.Release()
	assert.Equal(t, 1, pool.Len())
}
