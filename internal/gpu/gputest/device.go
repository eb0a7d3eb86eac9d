// Package gputest provides a gpu.Device that records calls instead of driving a GPU.
package gputest

import (
	"fmt"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/vkencoder/internal/gpu"
)

// Device records every call by method name, in order. Handles it returns are zero values.
type Device struct {
	// Calls is the call log. Tests may append their own entries with Record to interleave
	// them with the device's.
	Calls []string
	// Fail makes the named method return the error.
	Fail map[string]error

	// SwapchainImageCount is how many images SwapchainImages returns. Zero means three.
	SwapchainImageCount int
	// AcquireIndex is the image AcquireNextImage hands out.
	AcquireIndex int
	// AcquireResults and PresentResults are consumed one per call; success once empty.
	AcquireResults []common.VkResult
	PresentResults []common.VkResult

	Types    []core1_0.MemoryType
	TypeBits uint32
	// Memory backs every mapping.
	Memory []byte
	Mapped []int

	Queues         []int
	Submits        []core1_0.SubmitInfo
	Presents       []khr_swapchain.PresentInfo
	Swapchains     []khr_swapchain.SwapchainCreateInfo
	Views          []core1_0.ImageViewCreateInfo
	Pipelines      []core1_0.GraphicsPipelineCreateInfo
	Buffers        []core1_0.BufferCreateInfo
	Allocations    []core1_0.MemoryAllocateInfo
	DrawnVertices  []int
	Copies         []core1_0.BufferImageCopy
	Barriers       []core1_0.ImageMemoryBarrier
	BufferRequests []core1_0.CommandBufferAllocateInfo
}

var _ gpu.Device = (*Device)(nil)

// NewDevice returns a device with one host-visible, host-coherent memory type and 1 MiB of
// mappable memory.
func NewDevice() *Device {
	return &Device{
		Fail: map[string]error{},
		Types: []core1_0.MemoryType{
			{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
		},
		TypeBits: 1,
		Memory:   make([]byte, 1<<20),
	}
}

func (d *Device) Record(call string) {
	d.Calls = append(d.Calls, call)
}

func (d *Device) call(name string) error {
	d.Record(name)
	return d.Fail[name]
}

// Count is how many times the named call was made.
func (d *Device) Count(name string) int {
	n := 0
	for _, call := range d.Calls {
		if call == name {
			n++
		}
	}
	return n
}

// Filter is the call log restricted to names.
func (d *Device) Filter(names ...string) []string {
	keep := make(map[string]bool, len(names))
	for _, name := range names {
		keep[name] = true
	}

	var calls []string
	for _, call := range d.Calls {
		if keep[call] {
			calls = append(calls, call)
		}
	}
	return calls
}

func (d *Device) String() string {
	return fmt.Sprint(d.Calls)
}

func (d *Device) GetQueue(family int) core1_0.Queue {
	d.Record("GetQueue")
	d.Queues = append(d.Queues, family)
	return core1_0.Queue{}
}

func (d *Device) QueueSubmit(queue core1_0.Queue, fence *core1_0.Fence, submits ...core1_0.SubmitInfo) error {
	d.Submits = append(d.Submits, submits...)
	return d.call("QueueSubmit")
}

func (d *Device) DeviceWaitIdle() error { return d.call("DeviceWaitIdle") }

func (d *Device) DestroyDevice() { d.Record("DestroyDevice") }

func (d *Device) CreateCommandPool(core1_0.CommandPoolCreateInfo) (core1_0.CommandPool, error) {
	return core1_0.CommandPool{}, d.call("CreateCommandPool")
}

func (d *Device) DestroyCommandPool(core1_0.CommandPool) { d.Record("DestroyCommandPool") }

func (d *Device) AllocateCommandBuffers(info core1_0.CommandBufferAllocateInfo) ([]core1_0.CommandBuffer, error) {
	d.BufferRequests = append(d.BufferRequests, info)
	if err := d.call("AllocateCommandBuffers"); err != nil {
		return nil, err
	}
	return make([]core1_0.CommandBuffer, info.CommandBufferCount), nil
}

func (d *Device) FreeCommandBuffers(...core1_0.CommandBuffer) { d.Record("FreeCommandBuffers") }

func (d *Device) ResetCommandBuffer(core1_0.CommandBuffer) error {
	return d.call("ResetCommandBuffer")
}

func (d *Device) BeginCommandBuffer(core1_0.CommandBuffer, core1_0.CommandBufferBeginInfo) error {
	return d.call("BeginCommandBuffer")
}

func (d *Device) EndCommandBuffer(core1_0.CommandBuffer) error {
	return d.call("EndCommandBuffer")
}

func (d *Device) CmdBeginRenderPass(core1_0.CommandBuffer, core1_0.SubpassContents, core1_0.RenderPassBeginInfo) error {
	return d.call("CmdBeginRenderPass")
}

func (d *Device) CmdEndRenderPass(core1_0.CommandBuffer) { d.Record("CmdEndRenderPass") }

func (d *Device) CmdBindPipeline(core1_0.CommandBuffer, core1_0.PipelineBindPoint, core1_0.Pipeline) {
	d.Record("CmdBindPipeline")
}

func (d *Device) CmdSetViewport(core1_0.CommandBuffer, ...core1_0.Viewport) {
	d.Record("CmdSetViewport")
}

func (d *Device) CmdSetScissor(core1_0.CommandBuffer, ...core1_0.Rect2D) {
	d.Record("CmdSetScissor")
}

func (d *Device) CmdDraw(_ core1_0.CommandBuffer, vertexCount int) {
	d.Record("CmdDraw")
	d.DrawnVertices = append(d.DrawnVertices, vertexCount)
}

func (d *Device) CmdPipelineBarrier(_ core1_0.CommandBuffer, _, _ core1_0.PipelineStageFlags, barriers ...core1_0.ImageMemoryBarrier) error {
	d.Barriers = append(d.Barriers, barriers...)
	return d.call("CmdPipelineBarrier")
}

func (d *Device) CmdCopyImageToBuffer(_ core1_0.CommandBuffer, _ core1_0.Image, _ core1_0.ImageLayout, _ core1_0.Buffer, regions ...core1_0.BufferImageCopy) error {
	d.Copies = append(d.Copies, regions...)
	return d.call("CmdCopyImageToBuffer")
}

func (d *Device) CreateFence(core1_0.FenceCreateInfo) (core1_0.Fence, error) {
	return core1_0.Fence{}, d.call("CreateFence")
}

func (d *Device) DestroyFence(core1_0.Fence) { d.Record("DestroyFence") }

func (d *Device) WaitForFences(...core1_0.Fence) error { return d.call("WaitForFences") }

func (d *Device) ResetFences(...core1_0.Fence) error { return d.call("ResetFences") }

func (d *Device) CreateSemaphore() (core1_0.Semaphore, error) {
	return core1_0.Semaphore{}, d.call("CreateSemaphore")
}

func (d *Device) DestroySemaphore(core1_0.Semaphore) { d.Record("DestroySemaphore") }

func (d *Device) CreateBuffer(info core1_0.BufferCreateInfo) (core1_0.Buffer, error) {
	d.Buffers = append(d.Buffers, info)
	return core1_0.Buffer{}, d.call("CreateBuffer")
}

func (d *Device) DestroyBuffer(core1_0.Buffer) { d.Record("DestroyBuffer") }

func (d *Device) BufferMemoryRequirements(core1_0.Buffer) (int, uint32) {
	d.Record("BufferMemoryRequirements")
	size := 0
	if len(d.Buffers) > 0 {
		size = d.Buffers[len(d.Buffers)-1].Size
	}
	return size, d.TypeBits
}

func (d *Device) MemoryTypes() []core1_0.MemoryType {
	return d.Types
}

func (d *Device) AllocateMemory(info core1_0.MemoryAllocateInfo) (core1_0.DeviceMemory, error) {
	d.Allocations = append(d.Allocations, info)
	return core1_0.DeviceMemory{}, d.call("AllocateMemory")
}

func (d *Device) FreeMemory(core1_0.DeviceMemory) { d.Record("FreeMemory") }

func (d *Device) BindBufferMemory(core1_0.Buffer, core1_0.DeviceMemory) error {
	return d.call("BindBufferMemory")
}

func (d *Device) MapMemory(_ core1_0.DeviceMemory, size int) (unsafe.Pointer, error) {
	d.Mapped = append(d.Mapped, size)
	if err := d.call("MapMemory"); err != nil {
		return nil, err
	}
	if size > len(d.Memory) {
		return nil, errors.Newf("mapping %d bytes of %d", size, len(d.Memory))
	}
	return unsafe.Pointer(&d.Memory[0]), nil
}

func (d *Device) UnmapMemory(core1_0.DeviceMemory) { d.Record("UnmapMemory") }

func (d *Device) CreateImageView(info core1_0.ImageViewCreateInfo) (core1_0.ImageView, error) {
	d.Views = append(d.Views, info)
	return core1_0.ImageView{}, d.call("CreateImageView")
}

func (d *Device) DestroyImageView(core1_0.ImageView) { d.Record("DestroyImageView") }

func (d *Device) CreateFramebuffer(core1_0.FramebufferCreateInfo) (core1_0.Framebuffer, error) {
	return core1_0.Framebuffer{}, d.call("CreateFramebuffer")
}

func (d *Device) DestroyFramebuffer(core1_0.Framebuffer) { d.Record("DestroyFramebuffer") }

func (d *Device) CreateRenderPass(core1_0.RenderPassCreateInfo) (core1_0.RenderPass, error) {
	return core1_0.RenderPass{}, d.call("CreateRenderPass")
}

func (d *Device) DestroyRenderPass(core1_0.RenderPass) { d.Record("DestroyRenderPass") }

func (d *Device) CreatePipelineLayout(core1_0.PipelineLayoutCreateInfo) (core1_0.PipelineLayout, error) {
	return core1_0.PipelineLayout{}, d.call("CreatePipelineLayout")
}

func (d *Device) DestroyPipelineLayout(core1_0.PipelineLayout) { d.Record("DestroyPipelineLayout") }

func (d *Device) CreateShaderModule(core1_0.ShaderModuleCreateInfo) (core1_0.ShaderModule, error) {
	return core1_0.ShaderModule{}, d.call("CreateShaderModule")
}

func (d *Device) DestroyShaderModule(core1_0.ShaderModule) { d.Record("DestroyShaderModule") }

func (d *Device) CreateGraphicsPipeline(info core1_0.GraphicsPipelineCreateInfo) (core1_0.Pipeline, error) {
	d.Pipelines = append(d.Pipelines, info)
	return core1_0.Pipeline{}, d.call("CreateGraphicsPipeline")
}

func (d *Device) DestroyPipeline(core1_0.Pipeline) { d.Record("DestroyPipeline") }

func (d *Device) CreateSwapchain(info khr_swapchain.SwapchainCreateInfo) (khr_swapchain.Swapchain, error) {
	d.Swapchains = append(d.Swapchains, info)
	return khr_swapchain.Swapchain{}, d.call("CreateSwapchain")
}

func (d *Device) DestroySwapchain(khr_swapchain.Swapchain) { d.Record("DestroySwapchain") }

func (d *Device) SwapchainImages(khr_swapchain.Swapchain) ([]core1_0.Image, error) {
	if err := d.call("SwapchainImages"); err != nil {
		return nil, err
	}
	count := d.SwapchainImageCount
	if count == 0 {
		count = 3
	}
	return make([]core1_0.Image, count), nil
}

func (d *Device) AcquireNextImage(khr_swapchain.Swapchain, *core1_0.Semaphore) (int, common.VkResult, error) {
	err := d.call("AcquireNextImage")
	var res common.VkResult
	if len(d.AcquireResults) > 0 {
		res, d.AcquireResults = d.AcquireResults[0], d.AcquireResults[1:]
	}
	return d.AcquireIndex, res, err
}

func (d *Device) QueuePresent(_ core1_0.Queue, info khr_swapchain.PresentInfo) (common.VkResult, error) {
	d.Presents = append(d.Presents, info)
	err := d.call("QueuePresent")
	var res common.VkResult
	if len(d.PresentResults) > 0 {
		res, d.PresentResults = d.PresentResults[0], d.PresentResults[1:]
	}
	return res, err
}
