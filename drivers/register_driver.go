package drivers

import (
	"context"
	"fmt"
)

// Region is a window of 32-bit control/status registers addressed by byte
// offset from the start of a block.
type Region interface {
	Read32(offset uint32) uint32
	Write32(offset uint32, value uint32)
}

// RegisterDriver owns the register handle of the board. It is created once
// at start-up and handed to the controllers that need register access.
type RegisterDriver interface {
	Setup(ctx context.Context) error
	Close() error
	String() string
	IsReady() bool
	Region(block Block) (Region, error)
}

// Block is one FPGA register block.
type Block int

const (
	Housekeeping Block = iota
	PID
	AnalogMixedSignals
)

const fpgaBaseAddr = 0x40000000

type blockDef struct {
	name   string
	offset uint32
	size   uint32
}

var blocks = map[Block]blockDef{
	Housekeeping:       {"housekeeping", 0x00000000, 0x1000},
	PID:                {"pid", 0x00300000, 0x1000},
	AnalogMixedSignals: {"ams", 0x00400000, 0x1000},
}

// AllBlocks lists the blocks a driver maps on Setup.
func AllBlocks() []Block {
	return []Block{Housekeeping, PID, AnalogMixedSignals}
}

func (b Block) String() string {
	if def, ok := blocks[b]; ok {
		return def.name
	}
	return fmt.Sprintf("Block(%d)", int(b))
}

// PhysAddr is the physical address of the block's first register.
func (b Block) PhysAddr() uint32 {
	return fpgaBaseAddr + blocks[b].offset
}

// Size is the length of the mapped window.
func (b Block) Size() uint32 {
	return blocks[b].size
}

func MapAllRegisterDrivers() map[string]RegisterDriver {
	drivers := []RegisterDriver{
		&MemDriver{},
		&MockRegisters{},
	}

	mapped := make(map[string]RegisterDriver)
	for _, driver := range drivers {
		mapped[driver.String()] = driver
	}
	return mapped
}
