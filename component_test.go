package mmal_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/thesyncim/mmal"
	"github.com/thesyncim/mmal/mmaltest"
)

func TestNewComponent(t *testing.T) {
	e := newEngine(t)
	c := newComponent(t, e, mmal.ComponentVideoEncoder)

	assert.Equal(t, mmal.ComponentVideoEncoder, c.Name())
	assert.True(t, c.Handle().Owned())
	assert.Equal(t, c.Raw(), c.Handle().Raw())
	assert.Equal(t, mmal.Disabled, c.State())
	assert.Equal(t, 1, c.Inputs())
	assert.Equal(t, 1, c.Outputs())
	assert.Equal(t, 0, c.Clocks())
	assert.Equal(t, 1, e.Stats().Components)
}

func TestNewComponent_Unknown(t *testing.T) {
	e := newEngine(t)

	c, err := mmal.NewComponent(e, "vc.ril.does_not_exist")
	require.Error(t, err)
	assert.Nil(t, c)

	var cce *mmal.ComponentCreationError
	require.True(t, errors.As(err, &cce))
	assert.Equal(t, "vc.ril.does_not_exist", cce.Name)
	assert.Equal(t, mmal.ENOSYS, cce.Status())
	assert.Equal(t, 0, e.Stats().Components)
}

func TestNewComponent_EngineFailure(t *testing.T) {
	e := newEngine(t)
	e.Fail(mmaltest.OpComponentCreate, mmal.ENOMEM)

	_, err := mmal.NewComponent(e, mmal.ComponentCamera)
	assert.ErrorIs(t, err, mmal.ENOMEM)
}

func TestComponent_EnableDisable(t *testing.T) {
	e := newEngine(t)
	c := newComponent(t, e, mmal.ComponentCamera)

	require.NoError(t, c.Enable())
	assert.Equal(t, mmal.Enabled, c.State())
	// Re-enabling is left to the engine, which accepts it.
	require.NoError(t, c.Enable())
	require.NoError(t, c.Disable())
	assert.Equal(t, mmal.Disabled, c.State())

	e.Fail(mmaltest.OpComponentEnable, mmal.ENOSPC)
	assert.ErrorIs(t, c.Enable(), mmal.ENOSPC)
	assert.Equal(t, mmal.Disabled, c.State())
}

func TestComponent_PortProbing(t *testing.T) {
	e := newEngine(t)
	camera := newComponent(t, e, mmal.ComponentCamera)
	sink := newComponent(t, e, mmal.ComponentNullSink)

	tests := []struct {
		name string
		get  func() (*mmal.Port, bool)
		ok   bool
	}{
		{"source has no input", func() (*mmal.Port, bool) { return camera.InputPort(0) }, false},
		{"source capture output", func() (*mmal.Port, bool) { return camera.OutputPort(mmal.CameraCapturePort) }, true},
		{"source output out of range", func() (*mmal.Port, bool) { return camera.OutputPort(3) }, false},
		{"negative index", func() (*mmal.Port, bool) { return camera.OutputPort(-1) }, false},
		{"sink has no output", func() (*mmal.Port, bool) { return sink.OutputPort(0) }, false},
		{"sink input", func() (*mmal.Port, bool) { return sink.InputPort(0) }, true},
		{"no clock", func() (*mmal.Port, bool) { return sink.ClockPort(0) }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := tt.get()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.ok, p != nil)
		})
	}
}

func TestComponent_ControlPort(t *testing.T) {
	e := newEngine(t)
	c := newComponent(t, e, mmal.ComponentCamera)

	ctrl := c.ControlPort()
	require.NotNil(t, ctrl)
	info := ctrl.Info()
	assert.Equal(t, mmal.PortTypeControl, info.Type)
	assert.Equal(t, "vc.ril.camera:ctr:0", info.Name)
	assert.False(t, ctrl.Handle().Owned())
}

func TestComponent_FreshPortViews(t *testing.T) {
	e := newEngine(t)
	c := newComponent(t, e, mmal.ComponentVideoEncoder)

	a, b := input(t, c, 0), input(t, c, 0)
	assert.NotSame(t, a, b)
	assert.True(t, a.SameEndpoint(b))
	assert.False(t, a.SameEndpoint(output(t, c, 0)))

	// Both views observe the same engine state.
	require.NoError(t, a.Enable(func(*mmal.Port, *mmal.Buffer) {}))
	assert.True(t, b.Enabled())
	require.NoError(t, b.Disable())
	assert.False(t, a.Enabled())
}

func TestComponent_CloseReleasesChildrenNewestFirst(t *testing.T) {
	e := newEngine(t)
	camera := newComponent(t, e, mmal.ComponentCamera)
	encoder := newComponent(t, e, mmal.ComponentVideoEncoder)

	pool, err := output(t, camera, mmal.CameraPreviewPort).CreatePool()
	require.NoError(t, err)
	conn, err := mmal.Connect(output(t, camera, mmal.CameraVideoPort), input(t, encoder, 0))
	require.NoError(t, err)
	pool2, err := output(t, camera, mmal.CameraCapturePort).CreatePoolWith(1, 1024)
	require.NoError(t, err)

	assert.Equal(t, 3, camera.Owned())
	assert.Equal(t, 1, encoder.Owned())

	require.NoError(t, camera.Close())
	assert.True(t, camera.Closed())
	assert.True(t, pool.Closed())
	assert.True(t, pool2.Closed())
	assert.True(t, conn.Closed())
	assert.Equal(t, 0, encoder.Owned(), "connection detached from its other owner")

	var order []mmaltest.Op
	var pools []uintptr
	for _, call := range e.Calls() {
		switch call.Op {
		case mmaltest.OpPoolDestroy:
			pools = append(pools, call.Target)
			order = append(order, call.Op)
		case mmaltest.OpConnectionDestroy, mmaltest.OpComponentDestroy:
			order = append(order, call.Op)
		}
	}
	assert.Equal(t, []mmaltest.Op{
		mmaltest.OpPoolDestroy,
		mmaltest.OpConnectionDestroy,
		mmaltest.OpPoolDestroy,
		mmaltest.OpComponentDestroy,
	}, order)
	assert.Equal(t, []uintptr{uintptr(pool2.Raw()), uintptr(pool.Raw())}, pools)

	// Closing children again is a no-op, not a double free.
	require.NoError(t, pool.Close())
	require.NoError(t, conn.Close())
	require.NoError(t, camera.Close())

	require.NoError(t, encoder.Close())
	assert.Equal(t, mmaltest.Stats{}, e.Stats())
}

func TestComponent_UseAfterClose(t *testing.T) {
	e := newEngine(t)
	c := newComponent(t, e, mmal.ComponentVideoDecoder)
	in := input(t, c, 0)

	require.NoError(t, c.Close())

	assert.ErrorIs(t, c.Enable(), mmal.ErrClosed)
	assert.ErrorIs(t, c.Disable(), mmal.ErrClosed)
	assert.Equal(t, mmal.Disabled, c.State())
	assert.Nil(t, c.ControlPort())
	_, ok := c.OutputPort(0)
	assert.False(t, ok)

	assert.ErrorIs(t, in.Enable(nil), mmal.ErrClosed)
	assert.ErrorIs(t, in.Disable(), mmal.ErrClosed)
	assert.ErrorIs(t, in.CommitFormat(), mmal.ErrClosed)
	assert.ErrorIs(t, in.SetParameter(mmal.Flag{ID: mmal.ParameterZeroCopy, Value: true}), mmal.ErrClosed)
	assert.Nil(t, in.Format())
	assert.Zero(t, in.BufferCount())
	_, err := in.CreatePool()
	assert.ErrorIs(t, err, mmal.ErrClosed)
}

func TestComponent_CloseContinuesPastFailures(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	mmal.SetLogger(zap.New(core))
	t.Cleanup(func() { mmal.SetLogger(nil) })

	// The engine keeps a connection it failed to destroy, so this test
	// expects teardown violations and checks them itself.
	e := mmaltest.New()
	t.Cleanup(e.Close)

	camera, err := mmal.NewComponent(e, mmal.ComponentCamera)
	require.NoError(t, err)
	render, err := mmal.NewComponent(e, mmal.ComponentVideoRenderer)
	require.NoError(t, err)
	_, err = mmal.Connect(output(t, camera, mmal.CameraPreviewPort), input(t, render, 0))
	require.NoError(t, err)

	e.Fail(mmaltest.OpConnectionDestroy, mmal.EIO)
	err = camera.Close()
	e.Fail(mmaltest.OpConnectionDestroy, mmal.Success)

	assert.ErrorIs(t, err, mmal.EIO)
	assert.True(t, camera.Closed())
	assert.Len(t, e.CallsTo(mmaltest.OpComponentDestroy), 1)
	require.Equal(t, 1, logs.FilterMessage("release failed").Len())
	assert.Equal(t, "mmal", logs.All()[0].LoggerName)

	require.NoError(t, render.Close())
	assert.Len(t, e.Violations(), 2)
	assert.Contains(t, e.Violations()[0], "live connection")
}
