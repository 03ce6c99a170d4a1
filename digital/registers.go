package digital

import "github.com/hubertat/lockbox/pins"

// Housekeeping register offsets.
const (
	regID          = uint32(0x00)
	regDNALow      = uint32(0x04)
	regDNAHigh     = uint32(0x08)
	regDigitalLoop = uint32(0x0C)
	regDirP        = uint32(0x10)
	regDirN        = uint32(0x14)
	regOutP        = uint32(0x18)
	regOutN        = uint32(0x1C)
	regInP         = uint32(0x20)
	regInN         = uint32(0x24)
	regLED         = uint32(0x30)

	bankMask = uint32(1<<pins.BankWidth - 1)
	dnaMask  = uint64(1<<57 - 1)
)

type bankRegisters struct {
	direction uint32
	output    uint32
	input     uint32
}

var expansionBanks = map[pins.Bank]bankRegisters{
	pins.BankPositive: {direction: regDirP, output: regOutP, input: regInP},
	pins.BankNegative: {direction: regDirN, output: regOutN, input: regInN},
}
