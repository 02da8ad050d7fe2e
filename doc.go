// Package mmal wraps the Raspberry Pi Multi-Media Abstraction Layer
// (libmmal) with explicit ownership and lifecycle rules.
//
// Key pieces include:
//   - Component: one engine pipeline stage (camera, encoder, decoder,
//     renderer), created by name
//   - Port: a borrowed view onto a component endpoint for buffer and format
//     negotiation, parameters and buffer flow
//   - Pool and Connection: buffers for one port, and a tunnel between two
//     ports, both owned by the components whose ports created them
//   - Engine: the native collaborator, loaded from libmmal with purego or
//     simulated in memory by package mmaltest
//
// # Ownership
//
// Every wrapper carries a Handle whose Ownership says whether the wrapper
// releases the native resource. Components are Owned. Port views are
// Borrowed and never release anything; each accessor call returns a fresh
// view, so compare ports with SameEndpoint rather than ==.
//
// A Component records every Pool and Connection created through its ports.
// Component.Close releases the ones still open, newest first, before
// destroying the stage, so closing a component never leaves a pool to be
// destroyed through a dead port. Closing a Pool or Connection earlier is
// fine; the later Component.Close skips it.
//
//	camera, _ := mmal.NewComponent(engine, mmal.ComponentCamera)
//	encoder, _ := mmal.NewComponent(engine, mmal.ComponentVideoEncoder)
//	defer camera.Close()
//	defer encoder.Close()
//
//	video, _ := camera.OutputPort(mmal.CameraVideoPort)
//	in, _ := encoder.InputPort(0)
//	conn, err := mmal.Connect(video, in)
//
// # Threading
//
// Control operations are synchronous and unsynchronized: serialize calls on
// one component yourself. Buffer handlers run on the engine's dispatch
// context, concurrently with the caller and possibly with each other for
// different ports. They must not block.
//
// # Native Libraries
//
// OpenEngine loads libvcos, libmmal_core, libmmal_util and
// libmmal_vc_client. Set MMAL_LIB_DIR (or MMAL_SDK_LIB_PATH) to the
// directory holding them, or MMAL_LIBS to a comma separated list of
// libraries to load instead. The VideoCore host must be initialized
// (bcm_host_init) before the first component is created.
//
// # Logging
//
// The package logs through a zap.Logger that discards everything until
// SetLogger installs one.
package mmal
