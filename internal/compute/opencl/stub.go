//go:build !opencl

// Package opencl registers the OpenCL compute backend when built with
// -tags opencl. Without the tag nothing is registered and the host platform
// serves every dispatch.
package opencl

// Enabled reports whether the OpenCL backend was compiled in.
const Enabled = false
