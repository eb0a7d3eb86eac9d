package renderer

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	"golang.org/x/sync/errgroup"

	"github.com/vkngwrapper/vkencoder/internal/scope"
	"github.com/vkngwrapper/vkencoder/internal/vkerr"
)

const (
	vertexShaderFile   = "vert.spv"
	fragmentShaderFile = "frag.spv"
)

// bytesToBytecode reinterprets little-endian SPIR-V bytes as words.
func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}

	return byteCode
}

func readShader(path string) ([]uint32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, vkerr.IO(err, "failed to read shader %s", path)
	}
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, vkerr.IO(errors.Newf("%d bytes is not a whole number of SPIR-V words", len(b)), "invalid shader %s", path)
	}
	return bytesToBytecode(b), nil
}

type shaderCode struct {
	Vertex   []uint32
	Fragment []uint32
}

// loadShaders reads both stages of the triangle pipeline from dir concurrently.
func loadShaders(dir string) (shaderCode, error) {
	var code shaderCode
	var g errgroup.Group

	g.Go(func() error {
		var err error
		code.Vertex, err = readShader(filepath.Join(dir, vertexShaderFile))
		return err
	})
	g.Go(func() error {
		var err error
		code.Fragment, err = readShader(filepath.Join(dir, fragmentShaderFile))
		return err
	})

	return code, g.Wait()
}

func renderPassCreateInfo(format core1_0.Format) core1_0.RenderPassCreateInfo {
	return core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         format,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass: core1_0.SubpassExternal,
				DstSubpass: 0,

				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: 0,

				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				DstAccessMask: core1_0.AccessColorAttachmentWrite,
			},
		},
	}
}

// graphicsPipelineCreateInfo describes the fixed-function state of the triangle pipeline.
// Viewport and scissor are dynamic so the pipeline survives a resize.
func graphicsPipelineCreateInfo(vertShader, fragShader core1_0.ShaderModule, layout core1_0.PipelineLayout, renderPass core1_0.RenderPass) core1_0.GraphicsPipelineCreateInfo {
	return core1_0.GraphicsPipelineCreateInfo{
		Stages: []core1_0.PipelineShaderStageCreateInfo{
			{
				Stage:  core1_0.StageVertex,
				Module: vertShader,
				Name:   "main",
			},
			{
				Stage:  core1_0.StageFragment,
				Module: fragShader,
				Name:   "main",
			},
		},
		VertexInputState: &core1_0.PipelineVertexInputStateCreateInfo{},
		InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
			Topology:               core1_0.PrimitiveTopologyTriangleList,
			PrimitiveRestartEnable: false,
		},
		ViewportState: &core1_0.PipelineViewportStateCreateInfo{
			Viewports: []core1_0.Viewport{{}},
			Scissors:  []core1_0.Rect2D{{}},
		},
		RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
			DepthClampEnable:        false,
			RasterizerDiscardEnable: false,

			PolygonMode: core1_0.PolygonModeFill,
			CullMode:    core1_0.CullModeBack,
			FrontFace:   core1_0.FrontFaceClockwise,

			DepthBiasEnable: false,

			LineWidth: 1.0,
		},
		MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
			SampleShadingEnable:  false,
			RasterizationSamples: core1_0.Samples1,
			MinSampleShading:     1.0,
		},
		ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
			LogicOpEnabled: false,
			LogicOp:        core1_0.LogicOpCopy,

			BlendConstants: [4]float32{0, 0, 0, 0},
			Attachments: []core1_0.PipelineColorBlendAttachmentState{
				{
					BlendEnabled:   false,
					ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
				},
			},
		},
		DynamicState: &core1_0.PipelineDynamicStateCreateInfo{
			DynamicStates: []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor},
		},
		Layout:            layout,
		RenderPass:        renderPass,
		Subpass:           0,
		BasePipelineIndex: -1,
	}
}

type PipelineContext struct {
	RenderPass core1_0.RenderPass
	Layout     core1_0.PipelineLayout
	Pipeline   core1_0.Pipeline

	Scope *scope.Scope
}

func (r *Renderer) createPipeline() error {
	code, err := loadShaders(r.cfg.ShaderDir)
	if err != nil {
		return err
	}

	deviceDriver := r.device.Driver
	pipelineScope := r.swapchain.Scope.Child("pipeline")
	p := &PipelineContext{Scope: pipelineScope}
	r.pipeline = p

	p.RenderPass, err = deviceDriver.CreateRenderPass(renderPassCreateInfo(r.swapchain.Format))
	if err != nil {
		return vkerr.Creation(err, "render pass")
	}
	renderPass := p.RenderPass
	pipelineScope.Defer("render pass", func() { deviceDriver.DestroyRenderPass(renderPass) })

	p.Layout, err = deviceDriver.CreatePipelineLayout(core1_0.PipelineLayoutCreateInfo{})
	if err != nil {
		return vkerr.Creation(err, "pipeline layout")
	}
	layout := p.Layout
	pipelineScope.Defer("pipeline layout", func() { deviceDriver.DestroyPipelineLayout(layout) })

	vertShader, err := deviceDriver.CreateShaderModule(core1_0.ShaderModuleCreateInfo{Code: code.Vertex})
	if err != nil {
		return vkerr.Creation(err, "vertex shader module")
	}
	defer deviceDriver.DestroyShaderModule(vertShader)

	fragShader, err := deviceDriver.CreateShaderModule(core1_0.ShaderModuleCreateInfo{Code: code.Fragment})
	if err != nil {
		return vkerr.Creation(err, "fragment shader module")
	}
	defer deviceDriver.DestroyShaderModule(fragShader)

	p.Pipeline, err = deviceDriver.CreateGraphicsPipeline(graphicsPipelineCreateInfo(vertShader, fragShader, layout, renderPass))
	if err != nil {
		return vkerr.Creation(err, "graphics pipeline")
	}
	pipelineHandle := p.Pipeline
	pipelineScope.Defer("graphics pipeline", func() { deviceDriver.DestroyPipeline(pipelineHandle) })

	return nil
}
