package mpi

import "fmt"

// Cartesian topology support. Ranks map onto the grid in row-major order;
// shifts wrap around every axis (fully periodic).

const MaxCartDims = 3

// GetCartesianRank translates a rank into grid coordinates and remembers the
// grid dimensions for later coordinate lookups.
func (w *World) GetCartesianRank(rank int32, maxDims int, dims []int, periods []int, coords []int) error {
	if rank < 0 || rank >= w.size {
		return fmt.Errorf("%w: rank %d of %d", InvalidRankErr, rank, w.size)
	}
	if maxDims < MaxCartDims {
		return fmt.Errorf("cartesian communicator needs %d dims, got %d", MaxCartDims, maxDims)
	}

	w.mu.Lock()
	w.cartDims = append([]int{}, dims[:MaxCartDims]...)
	w.mu.Unlock()

	coords[0] = int(rank) / (dims[1] * dims[2])
	coords[1] = (int(rank) / dims[2]) % dims[1]
	coords[2] = int(rank) % dims[2]
	return nil
}

// GetRankFromCoords is the inverse of GetCartesianRank over the remembered
// grid.
func (w *World) GetRankFromCoords(coords []int) (int32, error) {
	w.mu.RLock()
	dims := w.cartDims
	w.mu.RUnlock()

	if len(dims) < MaxCartDims {
		return 0, fmt.Errorf("no cartesian grid set for world %d", w.id)
	}

	rank := coords[0]*dims[1]*dims[2] + coords[1]*dims[2] + coords[2]
	return int32(rank), nil
}

// ShiftCartesianCoords returns the source and destination ranks of a shift by
// disp units along the given axis, wrapping at the grid edges.
func (w *World) ShiftCartesianCoords(rank int32, direction int, disp int) (int32, int32, error) {
	w.mu.RLock()
	dims := w.cartDims
	w.mu.RUnlock()

	if len(dims) < MaxCartDims {
		return 0, 0, fmt.Errorf("no cartesian grid set for world %d", w.id)
	}
	if direction < 0 || direction >= MaxCartDims {
		return 0, 0, fmt.Errorf("invalid cartesian direction %d", direction)
	}

	coords := make([]int, MaxCartDims)
	if err := w.GetCartesianRank(rank, MaxCartDims, dims, nil, coords); err != nil {
		return 0, 0, err
	}

	shifted := func(offset int) []int {
		c := append([]int{}, coords...)
		c[direction] = wrap(c[direction]+offset, dims[direction])
		return c
	}

	source, err := w.GetRankFromCoords(shifted(-disp))
	if err != nil {
		return 0, 0, err
	}
	destination, err := w.GetRankFromCoords(shifted(disp))
	if err != nil {
		return 0, 0, err
	}
	return source, destination, nil
}

func wrap(value int, bound int) int {
	return ((value % bound) + bound) % bound
}
