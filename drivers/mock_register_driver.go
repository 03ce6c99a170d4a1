package drivers

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

const mockDriverName = "mock_registers"

// MockRegion is an in-memory register window. Unwritten registers read 0.
type MockRegion struct {
	block  Block
	regs   map[uint32]uint32
	writes int
	parent *MockRegisters
}

func (mr *MockRegion) Read32(offset uint32) uint32 {
	return mr.regs[offset]
}

func (mr *MockRegion) Write32(offset uint32, value uint32) {
	p := mr.parent
	if p != nil && p.writeStateChange && mr.regs[offset] != value {
		fmt.Fprintf(p.writeTo, "[%s 0x%02x] 0x%08x -> 0x%08x\n", mr.block, offset, mr.regs[offset], value)
	}
	mr.regs[offset] = value
	mr.writes++
}

// Writes counts every Write32 call since Setup.
func (mr *MockRegion) Writes() int {
	return mr.writes
}

// MockRegisters stands in for the memory device in tests and in the mock
// binary.
type MockRegisters struct {
	regions map[Block]*MockRegion
	ready   bool

	writeTo          io.Writer
	writeStateChange bool
}

func (mr *MockRegisters) Setup(ctx context.Context) error {
	mr.regions = make(map[Block]*MockRegion)
	for _, block := range AllBlocks() {
		mr.regions[block] = &MockRegion{block: block, regs: make(map[uint32]uint32), parent: mr}
	}
	mr.ready = true
	return nil
}

func (mr *MockRegisters) Close() error {
	mr.ready = false
	return nil
}

func (mr *MockRegisters) String() string {
	return mockDriverName
}

func (mr *MockRegisters) IsReady() bool {
	return mr.ready
}

func (mr *MockRegisters) Region(block Block) (Region, error) {
	return mr.Mock(block)
}

// Mock returns the concrete region so tests can poke registers directly.
func (mr *MockRegisters) Mock(block Block) (*MockRegion, error) {
	if !mr.ready {
		return nil, errors.Errorf("mock registers not set up")
	}
	region, found := mr.regions[block]
	if !found {
		return nil, errors.Errorf("mock %s block not found", block)
	}
	return region, nil
}

// MonitorStateChanges prints every register write that changes a value.
func (mr *MockRegisters) MonitorStateChanges(writer io.Writer) {
	mr.writeTo = writer
	mr.writeStateChange = true
}
