package renderer

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/vkencoder/internal/scope"
	"github.com/vkngwrapper/vkencoder/internal/vkerr"
)

const MaxFramesInFlight = 2

// Frame is a swapchain image that has been rendered. Until it is presented it still belongs
// to the application.
type Frame struct {
	Image  core1_0.Image
	Index  int
	Format core1_0.Format
	Extent core1_0.Extent2D
}

// Capturer copies a rendered frame out of its swapchain image before the image is presented.
// The copy must wait on rendered and signal captured, which presentation then waits on.
// CaptureFrame returns false when it skipped the frame without submitting anything.
type Capturer interface {
	CaptureFrame(frame Frame, rendered, captured core1_0.Semaphore) (bool, error)
}

type FrameContext struct {
	Framebuffers   []core1_0.Framebuffer
	CommandPool    core1_0.CommandPool
	CommandBuffers []core1_0.CommandBuffer

	imageAvailable []core1_0.Semaphore
	renderFinished []core1_0.Semaphore
	// captureFinished is only created when frames are captured.
	captureFinished []core1_0.Semaphore
	inFlight        []core1_0.Fence
	imagesInFlight  []core1_0.Fence
	currentFrame    int

	Scope *scope.Scope
}

func (r *Renderer) createFrames() error {
	deviceDriver := r.device.Driver
	sc := r.swapchain

	framesScope := r.pipeline.Scope.Child("frames")
	f := &FrameContext{Scope: framesScope}
	r.frames = f

	for _, imageView := range sc.Views {
		framebuffer, err := deviceDriver.CreateFramebuffer(core1_0.FramebufferCreateInfo{
			RenderPass:  r.pipeline.RenderPass,
			Layers:      1,
			Attachments: []core1_0.ImageView{imageView},
			Width:       sc.Extent.Width,
			Height:      sc.Extent.Height,
		})
		if err != nil {
			return vkerr.Creation(err, "framebuffer")
		}

		framesScope.Defer("framebuffer", func() { deviceDriver.DestroyFramebuffer(framebuffer) })
		f.Framebuffers = append(f.Framebuffers, framebuffer)
	}

	pool, err := deviceDriver.CreateCommandPool(core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: r.device.GraphicsFamily(),
	})
	if err != nil {
		return vkerr.Creation(err, "command pool")
	}
	framesScope.Defer("command pool", func() { deviceDriver.DestroyCommandPool(pool) })
	f.CommandPool = pool

	if err := r.recordCommandBuffers(); err != nil {
		return err
	}

	return r.createSyncObjects()
}

// recordCommandBuffers records one reusable draw per swapchain image.
func (r *Renderer) recordCommandBuffers() error {
	deviceDriver := r.device.Driver
	f := r.frames
	extent := r.swapchain.Extent

	buffers, err := deviceDriver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        f.CommandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: len(r.swapchain.Images),
	})
	if err != nil {
		return vkerr.Creation(err, "command buffers")
	}
	f.Scope.Defer("command buffers", func() { deviceDriver.FreeCommandBuffers(buffers...) })
	f.CommandBuffers = buffers

	for bufferIdx, buffer := range buffers {
		err = deviceDriver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{})
		if err != nil {
			return vkerr.Failed(err, "command buffer recording")
		}

		err = deviceDriver.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
			core1_0.RenderPassBeginInfo{
				RenderPass:  r.pipeline.RenderPass,
				Framebuffer: f.Framebuffers[bufferIdx],
				RenderArea: core1_0.Rect2D{
					Offset: core1_0.Offset2D{X: 0, Y: 0},
					Extent: extent,
				},
				ClearValues: []core1_0.ClearValue{
					core1_0.ClearValueFloat{0, 0, 0, 1},
				},
			})
		if err != nil {
			return vkerr.Failed(err, "render pass recording")
		}

		deviceDriver.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, r.pipeline.Pipeline)
		deviceDriver.CmdSetViewport(buffer, core1_0.Viewport{
			X:        0,
			Y:        0,
			Width:    float32(extent.Width),
			Height:   float32(extent.Height),
			MinDepth: 0,
			MaxDepth: 1,
		})
		deviceDriver.CmdSetScissor(buffer, core1_0.Rect2D{
			Offset: core1_0.Offset2D{X: 0, Y: 0},
			Extent: extent,
		})
		deviceDriver.CmdDraw(buffer, 3)
		deviceDriver.CmdEndRenderPass(buffer)

		err = deviceDriver.EndCommandBuffer(buffer)
		if err != nil {
			return vkerr.Failed(err, "command buffer recording")
		}
	}

	return nil
}

func (r *Renderer) createSyncObjects() error {
	deviceDriver := r.device.Driver
	f := r.frames

	newSemaphore := func() (core1_0.Semaphore, error) {
		semaphore, err := deviceDriver.CreateSemaphore()
		if err != nil {
			return semaphore, vkerr.Creation(err, "semaphore")
		}
		f.Scope.Defer("semaphore", func() { deviceDriver.DestroySemaphore(semaphore) })
		return semaphore, nil
	}

	for i := 0; i < MaxFramesInFlight; i++ {
		semaphore, err := newSemaphore()
		if err != nil {
			return err
		}
		f.imageAvailable = append(f.imageAvailable, semaphore)

		fence, err := deviceDriver.CreateFence(core1_0.FenceCreateInfo{
			Flags: core1_0.FenceCreateSignaled,
		})
		if err != nil {
			return vkerr.Creation(err, "fence")
		}
		f.Scope.Defer("fence", func() { deviceDriver.DestroyFence(fence) })
		f.inFlight = append(f.inFlight, fence)
	}

	for i := 0; i < len(r.swapchain.Images); i++ {
		semaphore, err := newSemaphore()
		if err != nil {
			return err
		}
		f.renderFinished = append(f.renderFinished, semaphore)
		f.imagesInFlight = append(f.imagesInFlight, core1_0.Fence{})

		if !r.cfg.CaptureFrames {
			continue
		}
		semaphore, err = newSemaphore()
		if err != nil {
			return err
		}
		f.captureFinished = append(f.captureFinished, semaphore)
	}

	return nil
}

// DrawFrame renders and presents one frame. It does nothing when headless. An out-of-date or
// suboptimal swapchain is rebuilt and the frame is skipped. With a capturer set, the frame is
// captured after rendering and before presentation.
func (r *Renderer) DrawFrame() error {
	if r.frames == nil {
		return nil
	}

	deviceDriver := r.device.Driver
	sc := r.swapchain
	f := r.frames
	fences := []core1_0.Fence{f.inFlight[f.currentFrame]}

	err := deviceDriver.WaitForFences(fences...)
	if err != nil {
		return vkerr.Failed(err, "frame fence wait")
	}

	imageIndex, res, err := deviceDriver.AcquireNextImage(sc.Swapchain, &f.imageAvailable[f.currentFrame])
	if res == khr_swapchain.VKErrorOutOfDate {
		r.lastFrame = nil
		return r.recreateSwapchain()
	} else if err != nil {
		return vkerr.Failed(err, "swapchain image acquisition")
	}

	if f.imagesInFlight[imageIndex].Initialized() {
		err := deviceDriver.WaitForFences(f.imagesInFlight[imageIndex])
		if err != nil {
			return vkerr.Failed(err, "image fence wait")
		}
	}
	f.imagesInFlight[imageIndex] = f.inFlight[f.currentFrame]

	err = deviceDriver.ResetFences(fences...)
	if err != nil {
		return vkerr.Failed(err, "frame fence reset")
	}

	err = deviceDriver.QueueSubmit(r.device.GraphicsQueue, &f.inFlight[f.currentFrame],
		core1_0.SubmitInfo{
			WaitSemaphores:   []core1_0.Semaphore{f.imageAvailable[f.currentFrame]},
			WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
			CommandBuffers:   []core1_0.CommandBuffer{f.CommandBuffers[imageIndex]},
			SignalSemaphores: []core1_0.Semaphore{f.renderFinished[imageIndex]},
		},
	)
	if err != nil {
		return vkerr.Failed(err, "draw submission")
	}

	frame := Frame{
		Image:  sc.Images[imageIndex],
		Index:  imageIndex,
		Format: sc.Format,
		Extent: sc.Extent,
	}

	presentWait := f.renderFinished[imageIndex]
	if r.capturer != nil {
		captured, err := r.capturer.CaptureFrame(frame, f.renderFinished[imageIndex], f.captureFinished[imageIndex])
		if err != nil {
			return err
		}
		if captured {
			presentWait = f.captureFinished[imageIndex]
		}
	}

	res, err = deviceDriver.QueuePresent(r.device.PresentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{presentWait},
		Swapchains:     []khr_swapchain.Swapchain{sc.Swapchain},
		ImageIndices:   []int{imageIndex},
	})
	if res == khr_swapchain.VKErrorOutOfDate || res == khr_swapchain.VKSuboptimal {
		r.lastFrame = nil
		return r.recreateSwapchain()
	} else if err != nil {
		return vkerr.Failed(err, "presentation")
	}

	r.lastFrame = &frame
	f.currentFrame = (f.currentFrame + 1) % MaxFramesInFlight

	return nil
}

// SetCapturer routes every rendered frame through c before it is presented. The swapchain
// must have been created for capture.
func (r *Renderer) SetCapturer(c Capturer) error {
	if r.frames == nil {
		return vkerr.NullResource("swapchain")
	}
	if !r.cfg.CaptureFrames {
		return vkerr.Configurationf("frame capture is disabled for this renderer")
	}
	r.capturer = c
	return nil
}

// LastFrame returns the most recently presented frame, if any.
func (r *Renderer) LastFrame() (Frame, bool) {
	if r.lastFrame == nil {
		return Frame{}, false
	}
	return *r.lastFrame, true
}

// WaitIdle blocks until the device has finished all submitted work.
func (r *Renderer) WaitIdle() error {
	if r.device == nil {
		return nil
	}
	if err := r.device.Driver.DeviceWaitIdle(); err != nil {
		return vkerr.Failed(err, "device idle wait")
	}
	return nil
}
