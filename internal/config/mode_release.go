//go:build release

package config

// DebugBuild enables diagnostics and validation layers by default.
const DebugBuild = false
