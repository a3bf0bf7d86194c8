package memory

import "github.com/aidanmarlow/pocketcore/jeebie/bit"

const titleLength = 11

const (
	entryPointAddress       = 0x100
	logoAddress             = 0x104
	titleAddress            = 0x134
	manufacturerCodeAddress = 0x13F
	cgbFlagAddress          = 0x143
	newLicenseCodeAddress   = 0x144
	sgbFlagAddress          = 0x146
	cartridgeTypeAddress    = 0x147
	romSizeAddress          = 0x148
	ramSizeAddress          = 0x149
	destinationCodeAddress  = 0x14A
	oldLicenseCodeAddress   = 0x14B
	versionNumberAddress    = 0x14C
	headerChecksumAddress   = 0x14D
	globalChecksumAddress   = 0x14E
)

// MBCKind identifies which memory bank controller a cartridge header
// requests, derived from the cartridge type byte at 0x147.
type MBCKind uint8

const (
	NoMBCType MBCKind = iota
	MBC1Type
	MBC1MultiType
	MBC2Type
	MBC3Type
	MBC5Type
	MBCUnknownType
)

// CGBSupport describes how a cartridge declares CGB compatibility, read
// from the CGB flag byte at 0x143.
type CGBSupport uint8

const (
	CGBUnsupported CGBSupport = iota
	CGBEnhanced               // runs on DMG too, uses CGB features when available
	CGBOnly
)

// Cartridge holds a raw ROM image plus the header fields the MMU and MBC
// constructors need to pick a controller and size its RAM.
type Cartridge struct {
	data []byte

	title          string
	version        uint8
	cartType       uint8
	headerChecksum uint16
	globalChecksum uint16

	mbcType      MBCKind
	romBankCount uint16
	ramBankCount uint8
	hasBattery   bool
	hasRTC       bool
	hasRumble    bool

	cgbSupport CGBSupport
}

// NewCartridge creates an empty cartridge, useful only for debugging and
// for running the MMU without anything inserted.
func NewCartridge() *Cartridge {
	return &Cartridge{
		data:    make([]byte, 0x10000),
		mbcType: NoMBCType,
	}
}

// NewCartridgeWithData initializes a new Cartridge from a ROM image,
// parsing the header fields needed to pick an MBC and size its RAM.
func NewCartridgeWithData(data []byte) *Cartridge {
	cart := &Cartridge{
		data:           make([]byte, len(data)),
		title:          cleanGameboyTitle(data[titleAddress : titleAddress+titleLength]),
		version:        data[versionNumberAddress],
		cartType:       data[cartridgeTypeAddress],
		headerChecksum: bit.Combine(0, data[headerChecksumAddress]),
		globalChecksum: bit.Combine(data[globalChecksumAddress], data[globalChecksumAddress+1]),
	}
	copy(cart.data, data)

	cart.mbcType, cart.hasBattery, cart.hasRTC, cart.hasRumble = decodeCartType(cart.cartType)
	cart.romBankCount = decodeROMBankCount(data[romSizeAddress])
	cart.ramBankCount = decodeRAMBankCount(data[ramSizeAddress])
	cart.cgbSupport = decodeCGBSupport(data[cgbFlagAddress])

	return cart
}

func decodeCartType(t uint8) (kind MBCKind, battery, rtc, rumble bool) {
	switch t {
	case 0x00, 0x08, 0x09:
		return NoMBCType, t == 0x09, false, false
	case 0x01, 0x02, 0x03:
		return MBC1Type, t == 0x03, false, false
	case 0x05, 0x06:
		return MBC2Type, t == 0x06, false, false
	case 0x0F, 0x10, 0x11, 0x12, 0x13:
		return MBC3Type, t == 0x0F || t == 0x10 || t == 0x13, t == 0x0F || t == 0x10, false
	case 0x19, 0x1A, 0x1B:
		return MBC5Type, t == 0x1B, false, false
	case 0x1C, 0x1D, 0x1E:
		return MBC5Type, t == 0x1E, false, true
	default:
		return MBCUnknownType, false, false, false
	}
}

func decodeROMBankCount(sizeByte uint8) uint16 {
	// 32KB (2 banks), doubling for every increment, is the documented
	// encoding for every official cartridge.
	return 2 << sizeByte
}

func decodeRAMBankCount(sizeByte uint8) uint8 {
	switch sizeByte {
	case 0x02:
		return 1
	case 0x03:
		return 4
	case 0x04:
		return 16
	case 0x05:
		return 8
	default:
		return 0
	}
}

func decodeCGBSupport(flag uint8) CGBSupport {
	switch flag {
	case 0x80:
		return CGBEnhanced
	case 0xC0:
		return CGBOnly
	default:
		return CGBUnsupported
	}
}

// Title returns the cartridge's ASCII title, trimmed of padding bytes.
func (c *Cartridge) Title() string {
	return c.title
}

// IsCGB reports whether the cartridge declares CGB support or requirement.
func (c *Cartridge) IsCGB() bool {
	return c.cgbSupport != CGBUnsupported
}

// ReadByte reads a byte at the specified address, bypassing any MBC. Used
// only for the debug-only empty cartridge returned by NewCartridge.
func (c *Cartridge) ReadByte(addr uint16) uint8 {
	return c.data[addr]
}

// WriteByte writes a byte directly to the backing image, bypassing any
// MBC. Used only for the debug-only empty cartridge returned by NewCartridge.
func (c *Cartridge) WriteByte(addr uint16, value uint8) uint8 {
	c.data[addr] = value
	return value
}
