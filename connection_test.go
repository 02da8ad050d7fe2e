package mmal_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/mmal"
	"github.com/thesyncim/mmal/mmaltest"
)

func TestConnect_DefaultFlags(t *testing.T) {
	e := newEngine(t)
	camera := newComponent(t, e, mmal.ComponentCamera)
	encoder := newComponent(t, e, mmal.ComponentVideoEncoder)

	conn, err := mmal.Connect(output(t, camera, mmal.CameraVideoPort), input(t, encoder, 0))
	require.NoError(t, err)

	calls := e.CallsTo(mmaltest.OpConnectionCreate)
	require.Len(t, calls, 1)
	assert.Equal(t, mmal.Tunnelling|mmal.AllocationOnInput, calls[0].Flags)
	assert.Equal(t, mmal.DefaultConnectionFlags, conn.Flags())
	assert.Equal(t, mmal.Disabled, conn.State())
	assert.True(t, conn.Handle().Owned())
	assert.Equal(t, 1, camera.Owned())
	assert.Equal(t, 1, encoder.Owned())
}

func TestConnectWithFlags_PassThrough(t *testing.T) {
	flagSets := []mmal.ConnectionFlags{
		0,
		mmal.AllocationOnOutput,
		mmal.Tunnelling | mmal.KeepBufferRequirements,
		mmal.Direct | mmal.KeepPortFormats | mmal.AllocationOnInput,
	}

	for _, flags := range flagSets {
		t.Run(flags.String(), func(t *testing.T) {
			e := newEngine(t)
			dec := newComponent(t, e, mmal.ComponentVideoDecoder)
			render := newComponent(t, e, mmal.ComponentVideoRenderer)

			conn, err := mmal.ConnectWithFlags(output(t, dec, 0), input(t, render, 0), flags)
			require.NoError(t, err)
			assert.Equal(t, flags, e.CallsTo(mmaltest.OpConnectionCreate)[0].Flags)
			assert.Equal(t, flags, conn.Flags())
		})
	}
}

func TestConnect_Errors(t *testing.T) {
	e := newEngine(t)
	camera := newComponent(t, e, mmal.ComponentCamera)
	encoder := newComponent(t, e, mmal.ComponentVideoEncoder)
	render := newComponent(t, e, mmal.ComponentVideoRenderer)

	_, err := mmal.Connect(nil, input(t, encoder, 0))
	assert.ErrorIs(t, err, mmal.ErrInvalidHandle)

	// Wrong direction is the engine's call.
	_, err = mmal.Connect(input(t, encoder, 0), output(t, camera, 0))
	assert.ErrorIs(t, err, mmal.EINVAL)

	_, err = mmal.Connect(output(t, camera, 0), input(t, render, 0))
	require.NoError(t, err)
	_, err = mmal.Connect(output(t, camera, 0), input(t, encoder, 0))
	assert.ErrorIs(t, err, mmal.EISCONN)

	e.Fail(mmaltest.OpConnectionCreate, mmal.ENOSPC)
	_, err = mmal.Connect(output(t, camera, 1), input(t, encoder, 0))
	assert.ErrorIs(t, err, mmal.ENOSPC)
	e.Fail(mmaltest.OpConnectionCreate, mmal.Success)

	assert.Equal(t, 1, camera.Owned())
	assert.Zero(t, encoder.Owned())
}

func TestConnect_ClosedComponent(t *testing.T) {
	e := newEngine(t)
	camera := newComponent(t, e, mmal.ComponentCamera)
	encoder := newComponent(t, e, mmal.ComponentVideoEncoder)
	in := input(t, encoder, 0)

	require.NoError(t, encoder.Close())
	_, err := mmal.Connect(output(t, camera, 1), in)
	assert.ErrorIs(t, err, mmal.ErrClosed)
}

func TestConnection_Lifecycle(t *testing.T) {
	e := newEngine(t)
	dec := newComponent(t, e, mmal.ComponentVideoDecoder)
	render := newComponent(t, e, mmal.ComponentVideoRenderer)
	out, in := output(t, dec, 0), input(t, render, 0)

	conn, err := mmal.Connect(out, in)
	require.NoError(t, err)

	require.NoError(t, conn.Enable())
	assert.Equal(t, mmal.Enabled, conn.State())
	assert.True(t, out.Enabled())
	assert.True(t, in.Enabled())

	require.NoError(t, e.Emit(out.Raw(), []byte("picture"), mmal.BufferFlagFrame, 0))
	assert.Equal(t, [][]byte{[]byte("picture")}, e.Consumed(in.Raw()))

	require.NoError(t, conn.Disable())
	assert.Equal(t, mmal.Disabled, conn.State())
	assert.False(t, out.Enabled())

	require.NoError(t, conn.Close())
	assert.True(t, conn.Closed())
	assert.ErrorIs(t, conn.Enable(), mmal.ErrClosed)
	assert.ErrorIs(t, conn.Disable(), mmal.ErrClosed)
	assert.Equal(t, mmal.Disabled, conn.State())
	assert.Zero(t, dec.Owned())
	assert.Zero(t, render.Owned())

	require.NoError(t, conn.Close())
	assert.Len(t, e.CallsTo(mmaltest.OpConnectionDestroy), 1)
}

func TestConnection_SameComponent(t *testing.T) {
	e := newEngine(t)
	e.Register("test.loopback", mmaltest.ComponentSpec{Inputs: 1, Outputs: 1})
	c := newComponent(t, e, "test.loopback")

	_, err := mmal.Connect(output(t, c, 0), input(t, c, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Owned())

	require.NoError(t, c.Close())
	assert.Len(t, e.CallsTo(mmaltest.OpConnectionDestroy), 1)
}

func TestConnectionFlags_String(t *testing.T) {
	tests := []struct {
		flags mmal.ConnectionFlags
		want  string
	}{
		{0, "none"},
		{mmal.DefaultConnectionFlags, "tunnelling|allocation-on-input"},
		{mmal.Direct, "direct"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.flags.String())
	}
	assert.True(t, mmal.DefaultConnectionFlags.Has(mmal.Tunnelling))
	assert.False(t, mmal.DefaultConnectionFlags.Has(mmal.AllocationOnOutput))
}
