package snapshot

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

var SnapshotNotFoundErr = errors.New("snapshot does not exist")
var NotPageAlignedErr = errors.New("snapshot mapping target is not page-aligned")

// SnapshotData references one named immutable byte image. The registry owns
// the memfd behind Fd but only borrows Data; callers may free the original
// buffer without invalidating the registry.
type SnapshotData struct {
	Data []byte
	Size int
	Fd   int
}

// Registry is the process-global table of snapshots. Every snapshot is
// duplicated into a sealed anonymous in-memory file so it can later be mapped
// copy-on-write into a restoring process.
type Registry struct {
	mu        sync.Mutex
	snapshots map[string]*SnapshotData
}

var registry *Registry
var registryOnce sync.Once

func GetRegistry() *Registry {
	registryOnce.Do(func() {
		registry = &Registry{snapshots: make(map[string]*SnapshotData)}
	})
	return registry
}

// Take copies data into a fresh memfd and records it under key, replacing any
// previous snapshot with that key.
func (r *Registry) Take(key string, data []byte) error {
	fd, err := unix.MemfdCreate(key, unix.MFD_ALLOW_SEALING)
	if err != nil {
		return fmt.Errorf("memfd_create failed for %s: %v", key, err)
	}

	if err := unix.Ftruncate(fd, int64(len(data))); err != nil {
		unix.Close(fd)
		return fmt.Errorf("ftruncate failed for %s: %v", key, err)
	}

	written := 0
	for written < len(data) {
		n, err := unix.Write(fd, data[written:])
		if err != nil {
			unix.Close(fd)
			return fmt.Errorf("writing snapshot %s failed: %v", key, err)
		}
		written += n
	}

	seals := unix.F_SEAL_SHRINK | unix.F_SEAL_GROW | unix.F_SEAL_WRITE | unix.F_SEAL_SEAL
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, seals); err != nil {
		unix.Close(fd)
		return fmt.Errorf("sealing snapshot %s failed: %v", key, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.snapshots[key]; ok && old.Fd > 0 {
		unix.Close(old.Fd)
	}
	r.snapshots[key] = &SnapshotData{Data: data, Size: len(data), Fd: fd}

	return nil
}

func (r *Registry) Get(key string) (*SnapshotData, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, ok := r.snapshots[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", SnapshotNotFoundErr, key)
	}
	return snap, nil
}

// Map maps the snapshot's memfd over target as a private fixed writable
// mapping: the caller sees the snapshot bytes and any writes stay private to
// it (copy-on-write). target must be page-aligned and at least as large as
// the snapshot; AllocatePages yields suitable buffers.
func (r *Registry) Map(key string, target []byte) error {
	snap, err := r.Get(key)
	if err != nil {
		return err
	}

	if len(target) < snap.Size {
		return fmt.Errorf("mapping target too small for %s: %d < %d", key, len(target), snap.Size)
	}

	addr := uintptr(unsafe.Pointer(&target[0]))
	if addr%uintptr(unix.Getpagesize()) != 0 {
		return NotPageAlignedErr
	}

	_, _, errno := unix.Syscall6(unix.SYS_MMAP,
		addr,
		uintptr(snap.Size),
		uintptr(unix.PROT_READ|unix.PROT_WRITE),
		uintptr(unix.MAP_PRIVATE|unix.MAP_FIXED),
		uintptr(snap.Fd),
		0)
	if errno != 0 {
		return fmt.Errorf("mmapping snapshot %s failed: %v", key, errno)
	}

	return nil
}

func (r *Registry) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, ok := r.snapshots[key]
	if !ok {
		return
	}
	if snap.Fd > 0 {
		unix.Close(snap.Fd)
	}
	delete(r.snapshots, key)
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}

func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, snap := range r.snapshots {
		if snap.Fd > 0 {
			unix.Close(snap.Fd)
		}
	}
	r.snapshots = make(map[string]*SnapshotData)
}

// AllocatePages returns a page-aligned anonymous mapping rounded up to whole
// pages, suitable as a Map target.
func AllocatePages(size int) ([]byte, error) {
	pageSize := unix.Getpagesize()
	rounded := ((size + pageSize - 1) / pageSize) * pageSize

	buf, err := unix.Mmap(-1, 0, rounded,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("anonymous mmap failed: %v", err)
	}
	return buf, nil
}

// FreePages releases a buffer obtained from AllocatePages.
func FreePages(buf []byte) error {
	return unix.Munmap(buf)
}
