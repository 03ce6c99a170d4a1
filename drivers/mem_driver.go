package drivers

import (
	"context"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const memDriverName = "mem"
const defaultMemDevice = "/dev/mem"

// MemDriver maps the FPGA register blocks from a memory device.
type MemDriver struct {
	Device string

	fd      int
	regions map[Block]*memRegion
	isReady bool
}

type memRegion struct {
	mem []byte
}

func (r *memRegion) Read32(offset uint32) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&r.mem[offset])))
}

func (r *memRegion) Write32(offset uint32, value uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&r.mem[offset])), value)
}

func (md *MemDriver) Setup(ctx context.Context) (err error) {
	device := md.Device
	if len(device) == 0 {
		device = defaultMemDevice
	}

	md.fd, err = unix.Open(device, unix.O_RDWR|unix.O_SYNC, 0)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", device)
	}

	md.regions = make(map[Block]*memRegion)
	for _, block := range AllBlocks() {
		mem, mapErr := unix.Mmap(md.fd, int64(block.PhysAddr()), int(block.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if mapErr != nil {
			md.unmap()
			unix.Close(md.fd)
			return errors.Wrapf(mapErr, "failed to map %s block at 0x%08x", block, block.PhysAddr())
		}
		md.regions[block] = &memRegion{mem: mem}
	}

	md.isReady = true
	return nil
}

func (md *MemDriver) unmap() (err error) {
	for block, region := range md.regions {
		unmapErr := unix.Munmap(region.mem)
		if unmapErr != nil && err == nil {
			err = errors.Wrapf(unmapErr, "failed to unmap %s block", block)
		}
		delete(md.regions, block)
	}
	return
}

func (md *MemDriver) Close() error {
	if !md.isReady {
		return nil
	}
	md.isReady = false

	err := md.unmap()
	closeErr := unix.Close(md.fd)
	if err == nil && closeErr != nil {
		err = errors.Wrap(closeErr, "failed to close memory device")
	}
	return err
}

func (md *MemDriver) String() string {
	return memDriverName
}

func (md *MemDriver) IsReady() bool {
	return md.isReady
}

func (md *MemDriver) Region(block Block) (Region, error) {
	region, found := md.regions[block]
	if !md.isReady || !found {
		return nil, errors.Errorf("%s block not mapped", block)
	}
	return region, nil
}
