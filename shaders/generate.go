// Package shaders holds the GLSL sources of the triangle pipeline. The renderer loads the
// compiled vert.spv and frag.spv from this directory at runtime.
package shaders

//go:generate glslc shader.vert -o vert.spv
//go:generate glslc shader.frag -o frag.spv
