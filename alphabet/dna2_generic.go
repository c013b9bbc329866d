// +build !amd64 appengine

package alphabet

import "strings"

// HasAccel reports whether this build of the codec uses the batch
// (hardware-friendly) code path rather than the byte-at-a-time scalar one.
const HasAccel = false

// dna2Pack packs s into dst one symbol at a time. It is identical in
// behavior to the amd64 unrolled path; there is simply no quad-symbol loop
// worth unrolling without knowing the target has fast unaligned access.
func dna2Pack(dst []byte, s string, posOffset int) error {
	return dna2PackScalar(dst, s, posOffset)
}

func dna2Unpack(b *strings.Builder, raw []byte, n int) {
	dna2UnpackScalar(b, raw, n)
}
