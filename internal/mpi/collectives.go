package mpi

import (
	"github.com/faasmesh/faasmesh/internal/messages"
)

// Collectives are state machines over the point-to-point primitive. Each one
// tags its traffic with a dedicated delivery type so interleaved NORMAL
// receives cannot consume collective messages.

// Barrier completes only once every rank has entered: rank zero collects a
// token from everyone, then releases them all.
func (w *World) Barrier(thisRank int32) error {
	if thisRank == 0 {
		for rank := int32(1); rank < w.size; rank++ {
			if err := w.RecvOfType(rank, 0, nil, INT, 0, nil, messages.BARRIER); err != nil {
				return err
			}
		}
		for rank := int32(1); rank < w.size; rank++ {
			if err := w.SendOfType(0, rank, nil, INT, 0, messages.BARRIER); err != nil {
				return err
			}
		}
		return nil
	}

	if err := w.SendOfType(thisRank, 0, nil, INT, 0, messages.BARRIER); err != nil {
		return err
	}
	return w.RecvOfType(0, thisRank, nil, INT, 0, nil, messages.BARRIER)
}

// Broadcast sends the root's buffer to every other rank. Receivers pick it up
// with a BCAST-typed receive.
func (w *World) Broadcast(sendRank int32, buffer []byte, dt Datatype, count int32) error {
	return w.broadcastOfType(sendRank, buffer, dt, count, messages.BCAST)
}

func (w *World) broadcastOfType(sendRank int32, buffer []byte, dt Datatype, count int32,
	msgType messages.MPIMessageType) error {
	for rank := int32(0); rank < w.size; rank++ {
		if rank == sendRank {
			continue
		}
		if err := w.SendOfType(sendRank, rank, buffer, dt, count, msgType); err != nil {
			return err
		}
	}
	return nil
}

// Scatter splits the root's send buffer into equal slices and hands slice i
// to rank i; the root keeps its own slice via memcpy. Every rank calls
// Scatter with its own recvRank.
func (w *World) Scatter(sendRank int32, recvRank int32,
	sendBuffer []byte, sendType Datatype, sendCount int32,
	recvBuffer []byte, recvType Datatype, recvCount int32) error {
	sliceSize := int(sendCount) * sendType.Size()

	if recvRank == sendRank {
		for rank := int32(0); rank < w.size; rank++ {
			offset := int(rank) * sliceSize
			slice := sendBuffer[offset : offset+sliceSize]
			if rank == sendRank {
				copy(recvBuffer, slice)
				continue
			}
			if err := w.SendOfType(sendRank, rank, slice, sendType, sendCount, messages.SCATTER); err != nil {
				return err
			}
		}
		return nil
	}

	return w.RecvOfType(sendRank, recvRank, recvBuffer, recvType, recvCount, nil, messages.SCATTER)
}

// Gather is the inverse of Scatter: the root assembles slice i of its receive
// buffer from rank i. Non-root callers leave recvBuffer nil.
func (w *World) Gather(sendRank int32, recvRank int32,
	sendBuffer []byte, sendType Datatype, sendCount int32,
	recvBuffer []byte, recvType Datatype, recvCount int32) error {
	sliceSize := int(sendCount) * sendType.Size()

	if sendRank == recvRank {
		// Root: keep our slice, then collect everyone else's
		offset := int(recvRank) * sliceSize
		copy(recvBuffer[offset:offset+sliceSize], sendBuffer[:sliceSize])

		for rank := int32(0); rank < w.size; rank++ {
			if rank == recvRank {
				continue
			}
			offset := int(rank) * sliceSize
			err := w.RecvOfType(rank, recvRank, recvBuffer[offset:offset+sliceSize],
				recvType, recvCount, nil, messages.GATHER)
			if err != nil {
				return err
			}
		}
		return nil
	}

	return w.SendOfType(sendRank, recvRank, sendBuffer, sendType, sendCount, messages.GATHER)
}

// AllGather gathers at rank zero and broadcasts the assembled buffer back
// out, leaving every rank with the full picture.
func (w *World) AllGather(rank int32,
	sendBuffer []byte, sendType Datatype, sendCount int32,
	recvBuffer []byte, recvType Datatype, recvCount int32) error {
	const root = int32(0)
	fullCount := recvCount * w.size

	if err := w.Gather(rank, root, sendBuffer, sendType, sendCount,
		recvBuffer, recvType, recvCount); err != nil {
		return err
	}

	if rank == root {
		return w.broadcastOfType(root, recvBuffer, recvType, fullCount, messages.ALLGATHER)
	}
	return w.RecvOfType(root, rank, recvBuffer, recvType, fullCount, nil, messages.ALLGATHER)
}

// Reduce folds every rank's buffer into the root's receive buffer, applying
// the operator in receive order (the supported operators don't care). The
// root may reduce in place.
func (w *World) Reduce(sendRank int32, recvRank int32,
	sendBuffer []byte, recvBuffer []byte, dt Datatype, count int32, op Op) error {
	n := int(count) * dt.Size()

	if sendRank == recvRank {
		if len(sendBuffer) > 0 && &sendBuffer[0] != &recvBuffer[0] {
			copy(recvBuffer[:n], sendBuffer[:n])
		}

		operand := make([]byte, n)
		for rank := int32(0); rank < w.size; rank++ {
			if rank == recvRank {
				continue
			}
			if err := w.RecvOfType(rank, recvRank, operand, dt, count, nil, messages.REDUCE); err != nil {
				return err
			}
			if err := OpReduce(op, dt, count, operand, recvBuffer); err != nil {
				return err
			}
		}
		return nil
	}

	return w.SendOfType(sendRank, recvRank, sendBuffer, dt, count, messages.REDUCE)
}

// AllReduce reduces at rank zero then broadcasts the folded buffer. Ranks may
// run this from concurrent threads; they synchronize externally.
func (w *World) AllReduce(rank int32, sendBuffer []byte, recvBuffer []byte,
	dt Datatype, count int32, op Op) error {
	const root = int32(0)

	if rank == root {
		if err := w.Reduce(root, root, sendBuffer, recvBuffer, dt, count, op); err != nil {
			return err
		}
		return w.broadcastOfType(root, recvBuffer, dt, count, messages.ALLREDUCE)
	}

	if err := w.Reduce(rank, root, sendBuffer, recvBuffer, dt, count, op); err != nil {
		return err
	}
	return w.RecvOfType(root, rank, recvBuffer, dt, count, nil, messages.ALLREDUCE)
}

// Scan leaves rank r holding the inclusive prefix fold over ranks 0..r,
// pipelining the partial result down the rank order.
func (w *World) Scan(rank int32, sendBuffer []byte, recvBuffer []byte,
	dt Datatype, count int32, op Op) error {
	n := int(count) * dt.Size()

	if len(sendBuffer) > 0 && &sendBuffer[0] != &recvBuffer[0] {
		copy(recvBuffer[:n], sendBuffer[:n])
	}

	if rank > 0 {
		prior := make([]byte, n)
		if err := w.RecvOfType(rank-1, rank, prior, dt, count, nil, messages.SCAN); err != nil {
			return err
		}
		if err := OpReduce(op, dt, count, prior, recvBuffer); err != nil {
			return err
		}
	}

	if rank < w.size-1 {
		return w.SendOfType(rank, rank+1, recvBuffer, dt, count, messages.SCAN)
	}
	return nil
}

// AllToAll sends this rank's j-th slice to rank j and collects the slice each
// rank addressed to us at the sender's position.
func (w *World) AllToAll(rank int32,
	sendBuffer []byte, sendType Datatype, sendCount int32,
	recvBuffer []byte, recvType Datatype, recvCount int32) error {
	sliceSize := int(sendCount) * sendType.Size()

	for r := int32(0); r < w.size; r++ {
		offset := int(r) * sliceSize
		slice := sendBuffer[offset : offset+sliceSize]
		if r == rank {
			copy(recvBuffer[offset:offset+sliceSize], slice)
			continue
		}
		if err := w.SendOfType(rank, r, slice, sendType, sendCount, messages.ALLTOALL); err != nil {
			return err
		}
	}

	for r := int32(0); r < w.size; r++ {
		if r == rank {
			continue
		}
		offset := int(r) * sliceSize
		err := w.RecvOfType(r, rank, recvBuffer[offset:offset+sliceSize],
			recvType, recvCount, nil, messages.ALLTOALL)
		if err != nil {
			return err
		}
	}
	return nil
}
