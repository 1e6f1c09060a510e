// Copyright ©2024 The GUDA Authors. All rights reserved.
// Copyright ©2026 The paraprof Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package paraprof provides a CUDA-style offload runtime executed on CPU cores.
//
// It backs the accelerator tutorials in this module: device memory with a
// per-device budget, host/device copies, grid/block kernel launches, per-block
// shared memory with block barriers, device reductions, and several virtual
// devices for multi-rank programs.
//
// Example usage:
//
//	ctx, _ := paraprof.NewContext(0)
//	defer ctx.Destroy()
//
//	// Allocate device memory
//	d_a, _ := ctx.Malloc(n * 4) // n float32s
//	d_b, _ := ctx.Malloc(n * 4)
//
//	// Copy data to device
//	ctx.Memcpy(d_a, h_a, n*4, paraprof.MemcpyHostToDevice)
//	ctx.Memcpy(d_b, h_b, n*4, paraprof.MemcpyHostToDevice)
//
//	// Launch kernel
//	grid := paraprof.Dim3{X: (n + 255) / 256, Y: 1, Z: 1}
//	block := paraprof.Dim3{X: 256, Y: 1, Z: 1}
//	ctx.LaunchFunc(myKernel, grid, block)
//	ctx.Synchronize()
//
// The number of virtual devices, their memory and the host allocation limit
// come from internal/config (PARAPROF_DEVICES, PARAPROF_DEVICE_MEM,
// PARAPROF_HOST_MEM).
package paraprof
