// Package encoder captures rendered frames from the renderer and appends them to an output
// stream.
//
// Each frame is copied out of its swapchain image on the graphics queue after rendering and
// before presentation, into a host-visible buffer. The buffer is mapped only after the copy's
// fence has signalled, and exactly the copied bytes are written as one record.
package encoder

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/vkencoder/internal/config"
	"github.com/vkngwrapper/vkencoder/internal/logging"
	"github.com/vkngwrapper/vkencoder/internal/renderer"
	"github.com/vkngwrapper/vkencoder/internal/scope"
	"github.com/vkngwrapper/vkencoder/internal/vkerr"
)

type Encoder struct {
	log    *logging.Logger
	cfg    config.Encoder
	device *renderer.DeviceContext
	scope  *scope.Scope

	commandPool   core1_0.CommandPool
	commandBuffer core1_0.CommandBuffer
	fence         core1_0.Fence
	buffer        core1_0.Buffer
	memory        core1_0.DeviceMemory

	session uuid.UUID
	output  *stream
	extent  core1_0.Extent2D
	// pending is the size of a submitted copy that has not been written yet, zero if none.
	pending int
	frames  int
	written int64
	ready   bool
	done    bool
}

var _ renderer.Capturer = (*Encoder)(nil)

// findMemoryType returns the first memory type allowed by typeBits that has every flag in
// properties.
func findMemoryType(memoryTypes []core1_0.MemoryType, typeBits uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	for i, memoryType := range memoryTypes {
		typeBit := uint32(1 << i)

		if (typeBits&typeBit) != 0 && (memoryType.PropertyFlags&properties) == properties {
			return i, nil
		}
	}

	return 0, vkerr.Creation(errors.Newf("no memory type in mask %#x has flags %v", typeBits, properties), "encoder output memory")
}

// bytesPerPixel covers the 8-bit four-channel formats a swapchain may hand out.
func bytesPerPixel(format core1_0.Format) (int, error) {
	switch format {
	case core1_0.FormatB8G8R8A8SRGB, core1_0.FormatB8G8R8A8UnsignedNormalized,
		core1_0.FormatR8G8B8A8SRGB, core1_0.FormatR8G8B8A8UnsignedNormalized:
		return 4, nil
	}
	return 0, vkerr.Configurationf("cannot capture frames in format %v", format)
}

// New allocates the capture resources on device. Everything it creates lives in a child of
// the device scope, so it is released before the device even if Close is never called.
func New(device *renderer.DeviceContext, cfg config.Encoder, log *logging.Logger) (*Encoder, error) {
	if device == nil {
		return nil, vkerr.NullResource("logical device")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = config.DefaultEncoderBufferSize
	}
	if _, err := codecID(cfg.Codec); err != nil {
		return nil, err
	}

	e := &Encoder{
		log:     log,
		cfg:     cfg,
		device:  device,
		scope:   device.Scope.Child("encoder"),
		session: uuid.New(),
	}

	if err := e.init(); err != nil {
		e.Close()
		return nil, err
	}

	e.ready = true
	e.log.With(logging.Fields{"session": e.session}).Infof("Encoder ready, writing %s to %s", cfg.Codec, cfg.OutputPath)
	return e, nil
}

func (e *Encoder) init() error {
	deviceDriver := e.device.Driver

	// Registered first so the stream is closed after the native resources are gone
	e.scope.Defer("output stream", func() {
		if _, err := e.Finish(); err != nil {
			e.log.Errorf("%v", err)
		}
	})

	pool, err := deviceDriver.CreateCommandPool(core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: e.device.GraphicsFamily(),
	})
	if err != nil {
		return vkerr.Creation(err, "encoder command pool")
	}
	e.scope.Defer("command pool", func() { deviceDriver.DestroyCommandPool(pool) })
	e.commandPool = pool

	buffers, err := deviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return vkerr.Creation(err, "encoder command buffer")
	}
	e.commandBuffer = buffers[0]

	fence, err := deviceDriver.CreateFence(core1_0.FenceCreateInfo{})
	if err != nil {
		return vkerr.Creation(err, "encoder fence")
	}
	e.scope.Defer("fence", func() { deviceDriver.DestroyFence(fence) })
	e.fence = fence

	return e.createOutputBuffer()
}

func (e *Encoder) createOutputBuffer() error {
	deviceDriver := e.device.Driver

	buffer, err := deviceDriver.CreateBuffer(core1_0.BufferCreateInfo{
		Size:        e.cfg.BufferSize,
		Usage:       core1_0.BufferUsageTransferDst,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return vkerr.Creation(err, "encoder output buffer")
	}

	size, typeBits := deviceDriver.BufferMemoryRequirements(buffer)
	memoryTypeIndex, err := findMemoryType(deviceDriver.MemoryTypes(), typeBits,
		core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
	if err != nil {
		deviceDriver.DestroyBuffer(buffer)
		return err
	}

	memory, err := deviceDriver.AllocateMemory(core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		deviceDriver.DestroyBuffer(buffer)
		return vkerr.Creation(err, "encoder output memory")
	}
	// Released after the buffer
	e.scope.Defer("memory", func() { deviceDriver.FreeMemory(memory) })
	e.scope.Defer("buffer", func() { deviceDriver.DestroyBuffer(buffer) })
	e.buffer, e.memory = buffer, memory

	err = deviceDriver.BindBufferMemory(buffer, memory)
	if err != nil {
		return vkerr.Failed(err, "encoder output memory binding")
	}
	return nil
}

// frameSize is the number of bytes a tightly packed copy of frame occupies.
func frameSize(frame renderer.Frame) (int, error) {
	bpp, err := bytesPerPixel(frame.Format)
	if err != nil {
		return 0, err
	}
	return frame.Extent.Width * frame.Extent.Height * bpp, nil
}

func colorBarrier(image core1_0.Image, oldLayout, newLayout core1_0.ImageLayout, srcAccess, dstAccess core1_0.AccessFlags) core1_0.ImageMemoryBarrier {
	return core1_0.ImageMemoryBarrier{
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: -1,
		DstQueueFamilyIndex: -1,
		Image:               image,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectColor,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		SrcAccessMask: srcAccess,
		DstAccessMask: dstAccess,
	}
}

// CaptureFrame submits a copy of frame into the output buffer. The copy waits on rendered and
// signals captured, so the image is read while the application still owns it. A capture that
// was never encoded is written out first. Empty frames and frames whose extent differs from
// the stream's are skipped.
func (e *Encoder) CaptureFrame(frame renderer.Frame, rendered, captured core1_0.Semaphore) (bool, error) {
	if e.done || e.scope.Closed() {
		return false, vkerr.NullResource("encoder")
	}

	size, err := frameSize(frame)
	if err != nil {
		return false, err
	}
	if size == 0 {
		return false, nil
	}
	if size > e.cfg.BufferSize {
		return false, vkerr.Configurationf("frame of %d bytes does not fit the %d byte encoder buffer", size, e.cfg.BufferSize)
	}

	if err := e.EncodeFrame(); err != nil && !errors.Is(err, vkerr.ErrNullResource) {
		return false, err
	}

	if e.output == nil {
		if err := e.openOutput(frame); err != nil {
			return false, err
		}
	} else if frame.Extent != e.extent {
		e.log.Warnf("skipping %dx%d frame in a %dx%d stream", frame.Extent.Width, frame.Extent.Height, e.extent.Width, e.extent.Height)
		return false, nil
	}

	if err := e.submitCopy(frame, rendered, captured); err != nil {
		return false, err
	}
	e.pending = size
	return true, nil
}

// Pending reports whether a captured frame is waiting for EncodeFrame.
func (e *Encoder) Pending() bool {
	return e.pending > 0
}

// EncodeFrame waits for the last captured copy, then appends the copied bytes to the stream.
func (e *Encoder) EncodeFrame() error {
	if e.done || e.scope.Closed() {
		return vkerr.NullResource("encoder")
	}
	if e.pending == 0 {
		return vkerr.NullResource("captured frame")
	}
	deviceDriver := e.device.Driver

	err := deviceDriver.WaitForFences(e.fence)
	if err != nil {
		return vkerr.Failed(err, "encoder fence wait")
	}
	err = deviceDriver.ResetFences(e.fence)
	if err != nil {
		return vkerr.Failed(err, "encoder fence reset")
	}

	size := e.pending
	e.pending = 0

	payload, err := e.readOutput(size)
	if err != nil {
		return err
	}
	if err := e.output.WriteFrame(payload); err != nil {
		return err
	}
	e.frames++
	return nil
}

func (e *Encoder) openOutput(frame renderer.Frame) error {
	codec, err := codecID(e.cfg.Codec)
	if err != nil {
		return err
	}

	e.output, err = createStream(e.cfg.OutputPath, FileHeader{
		Codec:   codec,
		Width:   uint32(frame.Extent.Width),
		Height:  uint32(frame.Extent.Height),
		Format:  uint32(frame.Format),
		Session: e.session,
	})
	if err != nil {
		return err
	}
	e.extent = frame.Extent
	return nil
}

// submitCopy records present-src -> transfer-src, image -> buffer, and back, and submits it
// between the render and present semaphores with the encoder fence.
func (e *Encoder) submitCopy(frame renderer.Frame, rendered, captured core1_0.Semaphore) error {
	deviceDriver := e.device.Driver
	cb := e.commandBuffer

	err := deviceDriver.ResetCommandBuffer(cb)
	if err != nil {
		return vkerr.Failed(err, "encoder command buffer reset")
	}

	err = deviceDriver.BeginCommandBuffer(cb, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	if err != nil {
		return vkerr.Failed(err, "encoder command buffer recording")
	}

	err = deviceDriver.CmdPipelineBarrier(cb, core1_0.PipelineStageTransfer, core1_0.PipelineStageTransfer,
		colorBarrier(frame.Image, khr_swapchain.ImageLayoutPresentSrc, core1_0.ImageLayoutTransferSrcOptimal,
			0, core1_0.AccessTransferRead))
	if err != nil {
		return vkerr.Failed(err, "encoder layout transition")
	}

	err = deviceDriver.CmdCopyImageToBuffer(cb, frame.Image, core1_0.ImageLayoutTransferSrcOptimal, e.buffer,
		core1_0.BufferImageCopy{
			BufferOffset:      0,
			BufferRowLength:   0,
			BufferImageHeight: 0,

			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask:     core1_0.ImageAspectColor,
				MipLevel:       0,
				BaseArrayLayer: 0,
				LayerCount:     1,
			},
			ImageOffset: core1_0.Offset3D{X: 0, Y: 0, Z: 0},
			ImageExtent: core1_0.Extent3D{Width: frame.Extent.Width, Height: frame.Extent.Height, Depth: 1},
		},
	)
	if err != nil {
		return vkerr.Failed(err, "encoder image copy")
	}

	err = deviceDriver.CmdPipelineBarrier(cb, core1_0.PipelineStageTransfer, core1_0.PipelineStageBottomOfPipe,
		colorBarrier(frame.Image, core1_0.ImageLayoutTransferSrcOptimal, khr_swapchain.ImageLayoutPresentSrc,
			core1_0.AccessTransferRead, 0))
	if err != nil {
		return vkerr.Failed(err, "encoder layout transition")
	}

	err = deviceDriver.EndCommandBuffer(cb)
	if err != nil {
		return vkerr.Failed(err, "encoder command buffer recording")
	}

	err = deviceDriver.QueueSubmit(e.device.GraphicsQueue, &e.fence, core1_0.SubmitInfo{
		WaitSemaphores:   []core1_0.Semaphore{rendered},
		WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageTransfer},
		CommandBuffers:   []core1_0.CommandBuffer{cb},
		SignalSemaphores: []core1_0.Semaphore{captured},
	})
	if err != nil {
		return vkerr.Failed(err, "encoder submission")
	}
	return nil
}

// readOutput copies size bytes out of the mapped output buffer.
func (e *Encoder) readOutput(size int) ([]byte, error) {
	deviceDriver := e.device.Driver

	memoryPtr, err := deviceDriver.MapMemory(e.memory, size)
	if err != nil {
		return nil, vkerr.Failed(err, "encoder output mapping")
	}
	defer deviceDriver.UnmapMemory(e.memory)

	payload := make([]byte, size)
	copy(payload, unsafe.Slice((*byte)(memoryPtr), size))
	return payload, nil
}

// Frames is the number of frames appended so far.
func (e *Encoder) Frames() int {
	return e.frames
}

func (e *Encoder) Session() uuid.UUID {
	return e.session
}

// Finish writes any captured frame, then flushes and closes the output stream and returns the
// number of bytes written. Later calls return the same count.
func (e *Encoder) Finish() (int64, error) {
	if e.done {
		return e.written, nil
	}

	var pendingErr error
	if e.Pending() {
		if e.scope.Closed() {
			e.log.Warnf("dropping a captured frame, the encoder was released before it was written")
		} else {
			pendingErr = e.EncodeFrame()
		}
	}
	e.done = true

	if e.output == nil {
		if e.ready {
			e.log.Warnf("encoder finished without any frames, nothing written to %s", e.cfg.OutputPath)
		}
		return 0, pendingErr
	}

	var err error
	e.written, err = e.output.Close()
	if err = errors.CombineErrors(pendingErr, err); err != nil {
		return e.written, err
	}
	e.log.With(logging.Fields{"session": e.session}).Infof("Encoded %d frames, %d bytes to %s", e.frames, e.written, e.cfg.OutputPath)
	return e.written, nil
}

// Close finishes the stream if that has not happened yet, then releases the buffer, memory,
// fence and command pool. The device must be idle with respect to the encoder.
func (e *Encoder) Close() {
	if e.ready && !e.done {
		if _, err := e.Finish(); err != nil {
			e.log.Errorf("%v", err)
		}
	}
	e.scope.Close()
}
