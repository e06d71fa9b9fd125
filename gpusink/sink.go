// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpusink uploads packer buffers to GPU memory through the wgpu HAL.
//
// A [UniformSink] owns a uniform buffer and forwards each region with
// queue.WriteBuffer. A [TextureSink] owns an RGBA32F texture with one row per
// member and forwards member ranges as row writes with queue.WriteTexture.
package gpusink

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/stage/packer"
)

var (
	// ErrNilDevice is returned when a target has no device or queue.
	ErrNilDevice = errors.New("gpusink: device or queue is nil")

	// ErrInvalidSize is returned for empty buffers or textures.
	ErrInvalidSize = errors.New("gpusink: invalid size")

	// ErrNoHAL is returned when a provider does not expose HAL handles.
	ErrNoHAL = errors.New("gpusink: provider does not expose HAL device and queue")
)

// texelBytes is the size of one RGBA32F texel.
const texelBytes = 16

// Target is the device and queue that sinks allocate on and write through.
type Target struct {
	Device hal.Device
	Queue  hal.Queue
}

func (t Target) check() error {
	if t.Device == nil || t.Queue == nil {
		return ErrNilDevice
	}
	return nil
}

// FromProvider extracts HAL handles from a device provider. The provider
// must also implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func FromProvider(provider gpucontext.DeviceProvider) (Target, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return Target{}, ErrNoHAL
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return Target{}, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoHAL)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return Target{}, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoHAL)
	}
	return Target{Device: device, Queue: queue}, nil
}

// Sink is a packer.Sink that owns GPU memory.
type Sink interface {
	packer.Sink
	Close()
}

// Attach creates the sink matching the buffer's mode, attaches it and
// uploads the initial contents.
func Attach(t Target, b *packer.Buffer) (Sink, error) {
	var (
		s   Sink
		err error
	)
	switch b.Mode() {
	case packer.ModeUniformBlock:
		s, err = NewUniformSink(t, b.Name(), b.Bytes())
	case packer.ModeDataTexture:
		s, err = NewTextureSink(t, b.Name(), b.Texels(), b.Len())
	default:
		err = fmt.Errorf("gpusink: unsupported mode %v", b.Mode())
	}
	if err != nil {
		return nil, err
	}
	b.Attach(s)
	b.WriteWhole()
	return s, nil
}

// UniformSink writes packer regions into a uniform buffer.
type UniformSink struct {
	device  hal.Device
	queue   hal.Queue
	buffer  hal.Buffer
	label   string
	size    int
	uploads int
}

// NewUniformSink allocates a uniform buffer of size bytes.
func NewUniformSink(t Target, label string, size int) (*UniformSink, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSize, size)
	}
	buf, err := t.Device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(size),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpusink: create uniform buffer %q: %w", label, err)
	}
	logger.Load().Debug("gpusink: uniform buffer created", "label", label, "bytes", size)
	return &UniformSink{
		device: t.Device,
		queue:  t.Queue,
		buffer: buf,
		label:  label,
		size:   size,
	}, nil
}

// Upload implements packer.Sink.
func (s *UniformSink) Upload(r packer.Region, data []byte) {
	if s.buffer == nil || len(data) == 0 {
		return
	}
	if r.Offset < 0 || r.Offset+len(data) > s.size {
		logger.Load().Warn("gpusink: region outside buffer",
			"label", s.label, "offset", r.Offset, "bytes", len(data), "size", s.size)
		return
	}
	if err := s.queue.WriteBuffer(s.buffer, uint64(r.Offset), data); err != nil {
		logger.Load().Error("gpusink: write buffer", "label", s.label, "err", err)
		return
	}
	s.uploads++
}

// Buffer returns the GPU buffer, nil after Close.
func (s *UniformSink) Buffer() hal.Buffer { return s.buffer }

// Size returns the buffer size in bytes.
func (s *UniformSink) Size() int { return s.size }

// Uploads returns the number of writes issued.
func (s *UniformSink) Uploads() int { return s.uploads }

// Close destroys the buffer. Safe to call more than once.
func (s *UniformSink) Close() {
	if s.buffer == nil {
		return
	}
	s.device.DestroyBuffer(s.buffer)
	s.buffer = nil
}

// TextureSink writes member rows into an RGBA32F texture.
type TextureSink struct {
	device  hal.Device
	queue   hal.Queue
	texture hal.Texture
	label   string
	width   uint32
	height  uint32
	uploads int
}

// NewTextureSink allocates a texels x rows RGBA32F texture.
func NewTextureSink(t Target, label string, texels, rows int) (*TextureSink, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if texels <= 0 || rows <= 0 {
		return nil, fmt.Errorf("%w: %dx%d texels", ErrInvalidSize, texels, rows)
	}
	tex, err := t.Device.CreateTexture(&hal.TextureDescriptor{
		Label: label,
		Size: hal.Extent3D{
			Width:              uint32(texels),
			Height:             uint32(rows),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA32Float,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("gpusink: create data texture %q: %w", label, err)
	}
	logger.Load().Debug("gpusink: data texture created", "label", label, "width", texels, "height", rows)
	return &TextureSink{
		device:  t.Device,
		queue:   t.Queue,
		texture: tex,
		label:   label,
		width:   uint32(texels),
		height:  uint32(rows),
	}, nil
}

// Upload implements packer.Sink. Each member region maps to whole rows.
func (s *TextureSink) Upload(r packer.Region, data []byte) {
	if s.texture == nil || len(data) == 0 {
		return
	}
	if r.IsMetadata() {
		logger.Load().Debug("gpusink: metadata region ignored by data texture", "label", s.label)
		return
	}
	rowBytes := s.width * texelBytes
	if r.First < 0 || uint32(r.First+r.Count) > s.height || uint32(len(data)) != rowBytes*uint32(r.Count) {
		logger.Load().Warn("gpusink: region outside texture",
			"label", s.label, "first", r.First, "count", r.Count, "bytes", len(data))
		return
	}
	err := s.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  s.texture,
			MipLevel: 0,
			Origin:   hal.Origin3D{X: 0, Y: uint32(r.First), Z: 0},
			Aspect:   gputypes.TextureAspectAll,
		},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  rowBytes,
			RowsPerImage: uint32(r.Count),
		},
		&hal.Extent3D{Width: s.width, Height: uint32(r.Count), DepthOrArrayLayers: 1},
	)
	if err != nil {
		logger.Load().Error("gpusink: write texture", "label", s.label, "err", err)
		return
	}
	s.uploads++
}

// Texture returns the GPU texture, nil after Close.
func (s *TextureSink) Texture() hal.Texture { return s.texture }

// Uploads returns the number of writes issued.
func (s *TextureSink) Uploads() int { return s.uploads }

// Close destroys the texture. Safe to call more than once.
func (s *TextureSink) Close() {
	if s.texture == nil {
		return
	}
	s.device.DestroyTexture(s.texture)
	s.texture = nil
}
