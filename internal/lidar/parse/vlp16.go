package parse

// SensorOrder16 lists VLP-16 laser IDs sorted by vertical angle, from -15° to +15°.
// Within a firing sequence the returns arrive by laser ID, which interleaves the
// two halves of the field of view (0:-15°, 1:+1°, 2:-13°, ...).
var SensorOrder16 = [VLP16_FIRING_SIZE]int{0, 2, 4, 6, 8, 10, 12, 14, 1, 3, 5, 7, 9, 11, 13, 15}

// InverseSensorOrder16 maps a laser ID back to its position in SensorOrder16.
var InverseSensorOrder16 = invertOrder(SensorOrder16)

func invertOrder(order [VLP16_FIRING_SIZE]int) [VLP16_FIRING_SIZE]int {
	var inv [VLP16_FIRING_SIZE]int
	for pos, id := range order {
		inv[id] = pos
	}
	return inv
}

// ReorderVLP16 writes the values of one firing sequence, indexed by laser ID, into
// dst in ascending vertical-angle order.
func ReorderVLP16[T any](dst, byLaser *[VLP16_FIRING_SIZE]T) {
	for pos, id := range SensorOrder16 {
		dst[pos] = byLaser[id]
	}
}

// RestoreVLP16 undoes ReorderVLP16.
func RestoreVLP16[T any](dst, byAngle *[VLP16_FIRING_SIZE]T) {
	for id, pos := range InverseSensorOrder16 {
		dst[id] = byAngle[pos]
	}
}

// AzimuthInterpolator derives the azimuth of both VLP-16 firing sequences in a block.
// The sensor reports one azimuth per block; the second sequence fires half way to
// the next block's azimuth. The last block of a packet has no successor and reuses
// the delta of the block before it, which is why the interpolator keeps state.
type AzimuthInterpolator struct {
	halfDelta float64
}

// Block returns the azimuths of the first and second firing sequence of block i.
// Both values are in [0, 360).
func (a *AzimuthInterpolator) Block(pkt *Packet, i int) (first, second float64) {
	first = pkt.Blocks[i].AzimuthDegrees()
	if i < BLOCKS_PER_PACKET-1 {
		next := pkt.Blocks[i+1].AzimuthDegrees()
		if next < first {
			next += 360.0
		}
		a.halfDelta = (next - first) / 2.0
	}

	second = first + a.halfDelta
	if second >= 360.0 {
		second -= 360.0
	}
	return first, second
}

// HalfDelta returns the most recent half inter-block delta in degrees.
func (a *AzimuthInterpolator) HalfDelta() float64 {
	return a.halfDelta
}

// Reset forgets the carried delta.
func (a *AzimuthInterpolator) Reset() {
	a.halfDelta = 0
}
