// Package gpu narrows the vkngwrapper device driver to the calls the renderer and encoder
// make, with allocation callbacks and infinite timeouts filled in.
//
// Everything above this package talks to a Device, so the bring-up, draw and capture paths
// can be driven by gputest.Device instead of a GPU.
package gpu

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// ErrNoSwapchainExtension is returned by the swapchain calls of a device created without
// VK_KHR_swapchain.
var ErrNoSwapchainExtension = errors.New("device was created without " + khr_swapchain.ExtensionName)

type Device interface {
	GetQueue(family int) core1_0.Queue
	QueueSubmit(queue core1_0.Queue, fence *core1_0.Fence, submits ...core1_0.SubmitInfo) error
	DeviceWaitIdle() error
	DestroyDevice()

	CreateCommandPool(info core1_0.CommandPoolCreateInfo) (core1_0.CommandPool, error)
	DestroyCommandPool(pool core1_0.CommandPool)
	AllocateCommandBuffers(info core1_0.CommandBufferAllocateInfo) ([]core1_0.CommandBuffer, error)
	FreeCommandBuffers(buffers ...core1_0.CommandBuffer)
	ResetCommandBuffer(buffer core1_0.CommandBuffer) error
	BeginCommandBuffer(buffer core1_0.CommandBuffer, info core1_0.CommandBufferBeginInfo) error
	EndCommandBuffer(buffer core1_0.CommandBuffer) error

	CmdBeginRenderPass(buffer core1_0.CommandBuffer, contents core1_0.SubpassContents, info core1_0.RenderPassBeginInfo) error
	CmdEndRenderPass(buffer core1_0.CommandBuffer)
	CmdBindPipeline(buffer core1_0.CommandBuffer, bindPoint core1_0.PipelineBindPoint, pipeline core1_0.Pipeline)
	CmdSetViewport(buffer core1_0.CommandBuffer, viewports ...core1_0.Viewport)
	CmdSetScissor(buffer core1_0.CommandBuffer, scissors ...core1_0.Rect2D)
	// CmdDraw draws one instance of vertexCount vertices.
	CmdDraw(buffer core1_0.CommandBuffer, vertexCount int)
	CmdPipelineBarrier(buffer core1_0.CommandBuffer, src, dst core1_0.PipelineStageFlags, barriers ...core1_0.ImageMemoryBarrier) error
	CmdCopyImageToBuffer(buffer core1_0.CommandBuffer, image core1_0.Image, layout core1_0.ImageLayout, dst core1_0.Buffer, regions ...core1_0.BufferImageCopy) error

	CreateFence(info core1_0.FenceCreateInfo) (core1_0.Fence, error)
	DestroyFence(fence core1_0.Fence)
	// WaitForFences blocks until every fence has signalled.
	WaitForFences(fences ...core1_0.Fence) error
	ResetFences(fences ...core1_0.Fence) error
	CreateSemaphore() (core1_0.Semaphore, error)
	DestroySemaphore(semaphore core1_0.Semaphore)

	CreateBuffer(info core1_0.BufferCreateInfo) (core1_0.Buffer, error)
	DestroyBuffer(buffer core1_0.Buffer)
	BufferMemoryRequirements(buffer core1_0.Buffer) (size int, typeBits uint32)
	// MemoryTypes lists the memory types of the physical device the device was created on.
	MemoryTypes() []core1_0.MemoryType
	AllocateMemory(info core1_0.MemoryAllocateInfo) (core1_0.DeviceMemory, error)
	FreeMemory(memory core1_0.DeviceMemory)
	BindBufferMemory(buffer core1_0.Buffer, memory core1_0.DeviceMemory) error
	MapMemory(memory core1_0.DeviceMemory, size int) (unsafe.Pointer, error)
	UnmapMemory(memory core1_0.DeviceMemory)

	CreateImageView(info core1_0.ImageViewCreateInfo) (core1_0.ImageView, error)
	DestroyImageView(view core1_0.ImageView)
	CreateFramebuffer(info core1_0.FramebufferCreateInfo) (core1_0.Framebuffer, error)
	DestroyFramebuffer(framebuffer core1_0.Framebuffer)
	CreateRenderPass(info core1_0.RenderPassCreateInfo) (core1_0.RenderPass, error)
	DestroyRenderPass(renderPass core1_0.RenderPass)
	CreatePipelineLayout(info core1_0.PipelineLayoutCreateInfo) (core1_0.PipelineLayout, error)
	DestroyPipelineLayout(layout core1_0.PipelineLayout)
	CreateShaderModule(info core1_0.ShaderModuleCreateInfo) (core1_0.ShaderModule, error)
	DestroyShaderModule(module core1_0.ShaderModule)
	CreateGraphicsPipeline(info core1_0.GraphicsPipelineCreateInfo) (core1_0.Pipeline, error)
	DestroyPipeline(pipeline core1_0.Pipeline)

	CreateSwapchain(info khr_swapchain.SwapchainCreateInfo) (khr_swapchain.Swapchain, error)
	DestroySwapchain(swapchain khr_swapchain.Swapchain)
	SwapchainImages(swapchain khr_swapchain.Swapchain) ([]core1_0.Image, error)
	// AcquireNextImage waits without a timeout and signals semaphore once the image is free.
	AcquireNextImage(swapchain khr_swapchain.Swapchain, semaphore *core1_0.Semaphore) (int, common.VkResult, error)
	QueuePresent(queue core1_0.Queue, info khr_swapchain.PresentInfo) (common.VkResult, error)
}

type vkDevice struct {
	instance  core1_0.CoreInstanceDriver
	physical  core1_0.PhysicalDevice
	driver    core1_0.CoreDeviceDriver
	swapchain khr_swapchain.ExtensionDriver
}

var _ Device = (*vkDevice)(nil)

// Open creates a logical device on physical. The swapchain calls work only when info enables
// VK_KHR_swapchain.
func Open(instance core1_0.CoreInstanceDriver, physical core1_0.PhysicalDevice, info core1_0.DeviceCreateInfo) (Device, error) {
	driver, _, err := instance.CreateDevice(physical, nil, info)
	if err != nil {
		return nil, err
	}

	d := &vkDevice{instance: instance, physical: physical, driver: driver}
	for _, name := range info.EnabledExtensionNames {
		if name == khr_swapchain.ExtensionName {
			d.swapchain = khr_swapchain.CreateExtensionDriverFromCoreDriver(driver)
		}
	}
	return d, nil
}

func (d *vkDevice) GetQueue(family int) core1_0.Queue {
	return d.driver.GetQueue(family, 0)
}

func (d *vkDevice) QueueSubmit(queue core1_0.Queue, fence *core1_0.Fence, submits ...core1_0.SubmitInfo) error {
	_, err := d.driver.QueueSubmit(queue, fence, submits...)
	return err
}

func (d *vkDevice) DeviceWaitIdle() error {
	_, err := d.driver.DeviceWaitIdle()
	return err
}

func (d *vkDevice) DestroyDevice() {
	d.driver.DestroyDevice(nil)
}

func (d *vkDevice) CreateCommandPool(info core1_0.CommandPoolCreateInfo) (core1_0.CommandPool, error) {
	pool, _, err := d.driver.CreateCommandPool(nil, info)
	return pool, err
}

func (d *vkDevice) DestroyCommandPool(pool core1_0.CommandPool) {
	d.driver.DestroyCommandPool(pool, nil)
}

func (d *vkDevice) AllocateCommandBuffers(info core1_0.CommandBufferAllocateInfo) ([]core1_0.CommandBuffer, error) {
	buffers, _, err := d.driver.AllocateCommandBuffers(info)
	return buffers, err
}

func (d *vkDevice) FreeCommandBuffers(buffers ...core1_0.CommandBuffer) {
	d.driver.FreeCommandBuffers(buffers...)
}

func (d *vkDevice) ResetCommandBuffer(buffer core1_0.CommandBuffer) error {
	_, err := d.driver.ResetCommandBuffer(buffer, 0)
	return err
}

func (d *vkDevice) BeginCommandBuffer(buffer core1_0.CommandBuffer, info core1_0.CommandBufferBeginInfo) error {
	_, err := d.driver.BeginCommandBuffer(buffer, info)
	return err
}

func (d *vkDevice) EndCommandBuffer(buffer core1_0.CommandBuffer) error {
	_, err := d.driver.EndCommandBuffer(buffer)
	return err
}

func (d *vkDevice) CmdBeginRenderPass(buffer core1_0.CommandBuffer, contents core1_0.SubpassContents, info core1_0.RenderPassBeginInfo) error {
	return d.driver.CmdBeginRenderPass(buffer, contents, info)
}

func (d *vkDevice) CmdEndRenderPass(buffer core1_0.CommandBuffer) {
	d.driver.CmdEndRenderPass(buffer)
}

func (d *vkDevice) CmdBindPipeline(buffer core1_0.CommandBuffer, bindPoint core1_0.PipelineBindPoint, pipeline core1_0.Pipeline) {
	d.driver.CmdBindPipeline(buffer, bindPoint, pipeline)
}

func (d *vkDevice) CmdSetViewport(buffer core1_0.CommandBuffer, viewports ...core1_0.Viewport) {
	d.driver.CmdSetViewport(buffer, viewports...)
}

func (d *vkDevice) CmdSetScissor(buffer core1_0.CommandBuffer, scissors ...core1_0.Rect2D) {
	d.driver.CmdSetScissor(buffer, scissors...)
}

func (d *vkDevice) CmdDraw(buffer core1_0.CommandBuffer, vertexCount int) {
	d.driver.CmdDraw(buffer, vertexCount, 1, 0, 0)
}

func (d *vkDevice) CmdPipelineBarrier(buffer core1_0.CommandBuffer, src, dst core1_0.PipelineStageFlags, barriers ...core1_0.ImageMemoryBarrier) error {
	return d.driver.CmdPipelineBarrier(buffer, src, dst, 0, nil, nil, barriers)
}

func (d *vkDevice) CmdCopyImageToBuffer(buffer core1_0.CommandBuffer, image core1_0.Image, layout core1_0.ImageLayout, dst core1_0.Buffer, regions ...core1_0.BufferImageCopy) error {
	return d.driver.CmdCopyImageToBuffer(buffer, image, layout, dst, regions...)
}

func (d *vkDevice) CreateFence(info core1_0.FenceCreateInfo) (core1_0.Fence, error) {
	fence, _, err := d.driver.CreateFence(nil, info)
	return fence, err
}

func (d *vkDevice) DestroyFence(fence core1_0.Fence) {
	d.driver.DestroyFence(fence, nil)
}

func (d *vkDevice) WaitForFences(fences ...core1_0.Fence) error {
	_, err := d.driver.WaitForFences(true, common.NoTimeout, fences...)
	return err
}

func (d *vkDevice) ResetFences(fences ...core1_0.Fence) error {
	_, err := d.driver.ResetFences(fences...)
	return err
}

func (d *vkDevice) CreateSemaphore() (core1_0.Semaphore, error) {
	semaphore, _, err := d.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	return semaphore, err
}

func (d *vkDevice) DestroySemaphore(semaphore core1_0.Semaphore) {
	d.driver.DestroySemaphore(semaphore, nil)
}

func (d *vkDevice) CreateBuffer(info core1_0.BufferCreateInfo) (core1_0.Buffer, error) {
	buffer, _, err := d.driver.CreateBuffer(nil, info)
	return buffer, err
}

func (d *vkDevice) DestroyBuffer(buffer core1_0.Buffer) {
	d.driver.DestroyBuffer(buffer, nil)
}

func (d *vkDevice) BufferMemoryRequirements(buffer core1_0.Buffer) (int, uint32) {
	memRequirements := d.driver.GetBufferMemoryRequirements(buffer)
	return memRequirements.Size, memRequirements.MemoryTypeBits
}

func (d *vkDevice) MemoryTypes() []core1_0.MemoryType {
	return d.instance.GetPhysicalDeviceMemoryProperties(d.physical).MemoryTypes
}

func (d *vkDevice) AllocateMemory(info core1_0.MemoryAllocateInfo) (core1_0.DeviceMemory, error) {
	memory, _, err := d.driver.AllocateMemory(nil, info)
	return memory, err
}

func (d *vkDevice) FreeMemory(memory core1_0.DeviceMemory) {
	d.driver.FreeMemory(memory, nil)
}

func (d *vkDevice) BindBufferMemory(buffer core1_0.Buffer, memory core1_0.DeviceMemory) error {
	_, err := d.driver.BindBufferMemory(buffer, memory, 0)
	return err
}

func (d *vkDevice) MapMemory(memory core1_0.DeviceMemory, size int) (unsafe.Pointer, error) {
	memoryPtr, _, err := d.driver.MapMemory(memory, 0, size, 0)
	return memoryPtr, err
}

func (d *vkDevice) UnmapMemory(memory core1_0.DeviceMemory) {
	d.driver.UnmapMemory(memory)
}

func (d *vkDevice) CreateImageView(info core1_0.ImageViewCreateInfo) (core1_0.ImageView, error) {
	view, _, err := d.driver.CreateImageView(nil, info)
	return view, err
}

func (d *vkDevice) DestroyImageView(view core1_0.ImageView) {
	d.driver.DestroyImageView(view, nil)
}

func (d *vkDevice) CreateFramebuffer(info core1_0.FramebufferCreateInfo) (core1_0.Framebuffer, error) {
	framebuffer, _, err := d.driver.CreateFramebuffer(nil, info)
	return framebuffer, err
}

func (d *vkDevice) DestroyFramebuffer(framebuffer core1_0.Framebuffer) {
	d.driver.DestroyFramebuffer(framebuffer, nil)
}

func (d *vkDevice) CreateRenderPass(info core1_0.RenderPassCreateInfo) (core1_0.RenderPass, error) {
	renderPass, _, err := d.driver.CreateRenderPass(nil, info)
	return renderPass, err
}

func (d *vkDevice) DestroyRenderPass(renderPass core1_0.RenderPass) {
	d.driver.DestroyRenderPass(renderPass, nil)
}

func (d *vkDevice) CreatePipelineLayout(info core1_0.PipelineLayoutCreateInfo) (core1_0.PipelineLayout, error) {
	layout, _, err := d.driver.CreatePipelineLayout(nil, info)
	return layout, err
}

func (d *vkDevice) DestroyPipelineLayout(layout core1_0.PipelineLayout) {
	d.driver.DestroyPipelineLayout(layout, nil)
}

func (d *vkDevice) CreateShaderModule(info core1_0.ShaderModuleCreateInfo) (core1_0.ShaderModule, error) {
	module, _, err := d.driver.CreateShaderModule(nil, info)
	return module, err
}

func (d *vkDevice) DestroyShaderModule(module core1_0.ShaderModule) {
	d.driver.DestroyShaderModule(module, nil)
}

func (d *vkDevice) CreateGraphicsPipeline(info core1_0.GraphicsPipelineCreateInfo) (core1_0.Pipeline, error) {
	pipelines, _, err := d.driver.CreateGraphicsPipelines(nil, nil, info)
	if err != nil {
		return core1_0.Pipeline{}, err
	}
	return pipelines[0], nil
}

func (d *vkDevice) DestroyPipeline(pipeline core1_0.Pipeline) {
	d.driver.DestroyPipeline(pipeline, nil)
}

func (d *vkDevice) CreateSwapchain(info khr_swapchain.SwapchainCreateInfo) (khr_swapchain.Swapchain, error) {
	if d.swapchain == nil {
		return khr_swapchain.Swapchain{}, ErrNoSwapchainExtension
	}
	swapchain, _, err := d.swapchain.CreateSwapchain(nil, info)
	return swapchain, err
}

func (d *vkDevice) DestroySwapchain(swapchain khr_swapchain.Swapchain) {
	if d.swapchain != nil {
		d.swapchain.DestroySwapchain(swapchain, nil)
	}
}

func (d *vkDevice) SwapchainImages(swapchain khr_swapchain.Swapchain) ([]core1_0.Image, error) {
	if d.swapchain == nil {
		return nil, ErrNoSwapchainExtension
	}
	images, _, err := d.swapchain.GetSwapchainImages(swapchain)
	return images, err
}

func (d *vkDevice) AcquireNextImage(swapchain khr_swapchain.Swapchain, semaphore *core1_0.Semaphore) (int, common.VkResult, error) {
	if d.swapchain == nil {
		return 0, 0, ErrNoSwapchainExtension
	}
	return d.swapchain.AcquireNextImage(swapchain, common.NoTimeout, semaphore, nil)
}

func (d *vkDevice) QueuePresent(queue core1_0.Queue, info khr_swapchain.PresentInfo) (common.VkResult, error) {
	if d.swapchain == nil {
		return 0, ErrNoSwapchainExtension
	}
	return d.swapchain.QueuePresent(queue, info)
}
