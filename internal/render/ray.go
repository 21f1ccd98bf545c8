package render

import "unsafe"

// Ray is the record uploaded to the device, one per pixel. Its layout matches
// the Ray struct in kernels/raytracer.cl: two float4 followed by five ints,
// padded to the float4 alignment.
type Ray struct {
	Pos        [4]float32 // t, x, y, z
	Vel        [4]float32 // d/dλ of Pos
	SX, SY     int32
	Terminated int32
	Padding1   int32
	Padding2   int32
	_          [3]int32
}

// RaySize is the size of one Ray in device memory.
const RaySize = 64

var _ [RaySize - unsafe.Sizeof(Ray{})]struct{}
var _ [unsafe.Sizeof(Ray{}) - RaySize]struct{}

// rayBytes views rays as raw bytes for upload.
func rayBytes(rays []Ray) []byte {
	if len(rays) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&rays[0])), len(rays)*RaySize)
}

// raysFromBytes is the inverse of rayBytes.
func raysFromBytes(b []byte) []Ray {
	n := len(b) / RaySize
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*Ray)(unsafe.Pointer(&b[0])), n)
}
