package mpi

import (
	"encoding/binary"
	"fmt"
	"math"
)

// OpReduce folds in into inout elementwise. Buffers hold count elements of
// the given datatype in little-endian layout; unsupported combinations fail
// before touching either buffer.
func OpReduce(op Op, dt Datatype, count int32, in []byte, inout []byte) error {
	switch op {
	case SUM, MAX, MIN:
	default:
		return fmt.Errorf("%w: op %d", UnsupportedOpErr, op)
	}

	switch dt {
	case INT:
		for i := int32(0); i < count; i++ {
			a := int32(binary.LittleEndian.Uint32(in[i*4:]))
			b := int32(binary.LittleEndian.Uint32(inout[i*4:]))
			binary.LittleEndian.PutUint32(inout[i*4:], uint32(combineInt(op, a, b)))
		}
	case LONG_LONG:
		for i := int32(0); i < count; i++ {
			a := int64(binary.LittleEndian.Uint64(in[i*8:]))
			b := int64(binary.LittleEndian.Uint64(inout[i*8:]))
			binary.LittleEndian.PutUint64(inout[i*8:], uint64(combineLong(op, a, b)))
		}
	case DOUBLE:
		for i := int32(0); i < count; i++ {
			a := math.Float64frombits(binary.LittleEndian.Uint64(in[i*8:]))
			b := math.Float64frombits(binary.LittleEndian.Uint64(inout[i*8:]))
			binary.LittleEndian.PutUint64(inout[i*8:], math.Float64bits(combineDouble(op, a, b)))
		}
	default:
		return fmt.Errorf("%w: datatype %d", UnsupportedOpErr, dt)
	}

	return nil
}

func combineInt(op Op, a int32, b int32) int32 {
	switch op {
	case SUM:
		return a + b
	case MAX:
		if a > b {
			return a
		}
		return b
	default:
		if a < b {
			return a
		}
		return b
	}
}

func combineLong(op Op, a int64, b int64) int64 {
	switch op {
	case SUM:
		return a + b
	case MAX:
		if a > b {
			return a
		}
		return b
	default:
		if a < b {
			return a
		}
		return b
	}
}

func combineDouble(op Op, a float64, b float64) float64 {
	switch op {
	case SUM:
		return a + b
	case MAX:
		return math.Max(a, b)
	default:
		return math.Min(a, b)
	}
}
