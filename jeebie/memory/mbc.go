package memory

import "fmt"

// MBC represents a Memory Bank Controller interface that all MBC types must implement
type MBC interface {
	// Read reads a byte from the specified address
	Read(addr uint16) uint8
	// Write writes a byte to the specified address, returns the written value
	Write(addr uint16, value uint8) uint8
}

// NoMBC represents cartridges with no memory banking capabilities.
// These are typically smaller games (32KB or less) that fit entirely in the
// base memory region. The cartridge ROM is directly mapped to 0x0000-0x7FFF
// and cannot be banked/switched. These cartridges cannot have external RAM.
type NoMBC struct {
	rom []uint8 // ROM data
}

// NewNoMBC creates a new NoMBC controller
func NewNoMBC(romData []uint8) *NoMBC {
	return &NoMBC{
		rom: romData,
	}
}

func (m *NoMBC) Read(addr uint16) uint8 {
	// For NoMBC, we just read directly from ROM
	return m.rom[addr]
}

func (m *NoMBC) Write(addr uint16, value uint8) uint8 {
	// NoMBC doesn't support writing to ROM
	return 0
}

// MBC1 is the first and most common MBC chip. Features include:
// - Supports up to 2MB ROM (125 16KB banks)
// - Up to 32KB RAM (4 8KB banks)
// - Bank 0 always mapped to 0x0000-0x3FFF
// - Switchable ROM bank at 0x4000-0x7FFF
// - Optional RAM banking at 0xA000-0xBFFF
// - Two banking modes:
//   - Mode 0 (ROM): Allows access to full ROM but only 8KB RAM
//   - Mode 1 (RAM): Restricts ROM banking but allows full RAM access
// - Optional battery backup for RAM persistence
type MBC1 struct {
	rom          []uint8
	ram          []uint8
	romBank      uint8
	ramBank      uint8
	ramEnabled   bool
	bankingMode  uint8
	hasBattery   bool
	ramBankCount uint8
}

// NewMBC1 creates a new MBC1 controller
func NewMBC1(romData []uint8, hasBattery bool, ramBankCount uint8) *MBC1 {
	ramSize := uint32(ramBankCount) * 0x2000 // 8KB per RAM bank
	return &MBC1{
		rom:          romData,
		ram:          make([]uint8, ramSize),
		romBank:      1,
		ramBank:      0,
		ramEnabled:   false,
		bankingMode:  0,
		hasBattery:   hasBattery,
		ramBankCount: ramBankCount,
	}
}

func (m *MBC1) Read(addr uint16) uint8 {
	switch {
	case addr <= 0x3FFF:
		// ROM Bank 0
		return m.rom[addr]
	case addr >= 0x4000 && addr <= 0x7FFF:
		// Switchable ROM Bank
		offset := uint32(m.romBank) * 0x4000
		if offset >= uint32(len(m.rom)) {
			// If bank would be out of bounds, wrap around
			offset = offset % uint32(len(m.rom))
		}
		return m.rom[offset+uint32(addr-0x4000)]
	case addr >= 0xA000 && addr <= 0xBFFF:
		// RAM Bank
		if !m.ramEnabled {
			return 0xFF
		}
		offset := uint32(m.ramBank) * 0x2000
		if offset >= uint32(len(m.ram)) {
			// If bank would be out of bounds, wrap around
			offset = offset % uint32(len(m.ram))
		}
		return m.ram[offset+uint32(addr-0xA000)]
	default:
		return 0xFF
	}
}

func (m *MBC1) Write(addr uint16, value uint8) uint8 {
	switch {
	case addr <= 0x1FFF:
		// RAM Enable
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr >= 0x2000 && addr <= 0x3FFF:
		// ROM Bank Number (lower 5 bits)
		bank := value & 0x1F
		if bank == 0 {
			bank = 1
		}
		m.romBank = (m.romBank & 0x60) | bank
	case addr >= 0x4000 && addr <= 0x5FFF:
		// RAM Bank Number or Upper ROM Bank Number
		if m.bankingMode == 0 {
			// ROM Banking mode - value goes to upper bits of ROM bank
			m.romBank = (m.romBank & 0x1F) | ((value & 0x03) << 5)
		} else {
			// RAM Banking mode - value goes to RAM bank
			m.ramBank = value & 0x03
		}
	case addr >= 0x6000 && addr <= 0x7FFF:
		// Banking Mode Select
		m.bankingMode = value & 0x01
		if m.bankingMode == 1 {
			// When switching to RAM banking mode, clear the upper bits of ROM bank
			m.romBank &= 0x1F
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		// RAM Bank
		if !m.ramEnabled {
			return 0xFF
		}
		offset := uint32(m.ramBank) * 0x2000
		if offset >= uint32(len(m.ram)) {
			offset = (offset % uint32(len(m.ram)))
		}
		m.ram[offset+uint32(addr-0xA000)] = value
	}
	return value
}

// MBC2 is a simpler MBC chip with built-in RAM. Features include:
// - Supports up to 256KB ROM (16 16KB banks)
// - Built-in 512x4 bits RAM (not external)
// - RAM must be enabled (0x0A) before reads and writes take effect
// - ROM banking similar to MBC1 but simpler
// - The least significant bit of the upper address byte selects between
//   ROM banking and RAM access
// - RAM is limited to 4-bit values (upper 4 bits are ignored)
// - Optional battery backup for the built-in RAM
type MBC2 struct {
	rom        []uint8
	ram        []uint8 // 512x4 bits RAM
	romBank    uint8
	ramEnabled bool
}

// NewMBC2 creates a new MBC2 controller
func NewMBC2(romData []uint8) *MBC2 {
	return &MBC2{
		rom:        romData,
		ram:        make([]uint8, 512),
		romBank:    1,
		ramEnabled: false,
	}
}

func (m *MBC2) Read(addr uint16) uint8 {
	switch {
	case addr <= 0x3FFF:
		return m.rom[addr]
	case addr >= 0x4000 && addr <= 0x7FFF:
		offset := uint32(m.romBank) * 0x4000
		if offset >= uint32(len(m.rom)) {
			offset %= uint32(len(m.rom))
		}
		return m.rom[offset+uint32(addr-0x4000)]
	case addr >= 0xA000 && addr <= 0xA1FF:
		if !m.ramEnabled {
			return 0xFF
		}
		// Only the low nibble is wired; the upper nibble always reads as 1s.
		return m.ram[addr-0xA000] | 0xF0
	default:
		return 0xFF
	}
}

func (m *MBC2) Write(addr uint16, value uint8) uint8 {
	switch {
	case addr <= 0x3FFF:
		// Bit 8 of the address selects RAM-enable vs ROM-bank-select.
		if addr&0x100 == 0 {
			m.ramEnabled = (value & 0x0F) == 0x0A
		} else {
			bank := value & 0x0F
			if bank == 0 {
				bank = 1
			}
			m.romBank = bank
		}
	case addr >= 0xA000 && addr <= 0xA1FF:
		if m.ramEnabled {
			m.ram[addr-0xA000] = value & 0x0F
		}
	}
	return value
}

// RTCState holds the five latched real-time-clock registers MBC3 exposes
// at 0xA000-0xA004 once the 0x08-0x0C bank-select range is written.
type RTCState struct {
	Seconds, Minutes, Hours uint8
	DaysLow                 uint8
	// DaysHigh bit 0 is the day counter bit 8, bit 6 is the halt flag,
	// bit 7 is the day-counter-overflow carry.
	DaysHigh uint8
}

const (
	rtcHaltBit    = 1 << 6
	rtcCarryBit   = 1 << 7
	rtcDayHighBit = 1 << 0
)

// MBC3 is an advanced MBC chip with RTC support. Features include:
// - Supports up to 2MB ROM (128 16KB banks)
// - Up to 32KB RAM (4 8KB banks)
// - Real-Time Clock (RTC) functionality
// - RTC has 5 registers: Seconds, Minutes, Hours, Days (lower), Days (upper)/Flags
// - Similar banking to MBC1 but with different register layout
// - RAM and RTC can be battery backed
// - Used in games that needed to track real time (e.g. Pokémon Gold/Silver)
type MBC3 struct {
	rom        []uint8
	ram        []uint8
	romBank    uint8
	ramBank    uint8
	ramEnabled bool
	hasRTC     bool

	rtc          RTCState
	rtcLatched   RTCState
	latchPending bool
	cycles       int64
}

// NewMBC3 creates a new MBC3 controller. initial seeds the RTC registers
// (e.g. from a save file); a nil initial starts the clock at zero.
func NewMBC3(romData []uint8, ramBankCount uint8, hasRTC bool, initial *RTCState) *MBC3 {
	ramSize := uint32(ramBankCount) * 0x2000
	m := &MBC3{
		rom:        romData,
		ram:        make([]uint8, ramSize),
		romBank:    1,
		ramEnabled: false,
		hasRTC:     hasRTC,
	}
	if initial != nil {
		m.rtc = *initial
	}
	return m
}

func (m *MBC3) Read(addr uint16) uint8 {
	switch {
	case addr <= 0x3FFF:
		return m.rom[addr]
	case addr >= 0x4000 && addr <= 0x7FFF:
		offset := uint32(m.romBank) * 0x4000
		if offset >= uint32(len(m.rom)) {
			offset %= uint32(len(m.rom))
		}
		return m.rom[offset+uint32(addr-0x4000)]
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.hasRTC && m.ramBank >= 0x08 && m.ramBank <= 0x0C {
			return m.readRTCRegister()
		}
		if len(m.ram) == 0 {
			return 0xFF
		}
		offset := uint32(m.ramBank) * 0x2000
		if offset >= uint32(len(m.ram)) {
			offset %= uint32(len(m.ram))
		}
		return m.ram[offset+uint32(addr-0xA000)]
	default:
		return 0xFF
	}
}

func (m *MBC3) readRTCRegister() uint8 {
	switch m.ramBank {
	case 0x08:
		return m.rtcLatched.Seconds
	case 0x09:
		return m.rtcLatched.Minutes
	case 0x0A:
		return m.rtcLatched.Hours
	case 0x0B:
		return m.rtcLatched.DaysLow
	case 0x0C:
		return m.rtcLatched.DaysHigh
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value uint8) uint8 {
	switch {
	case addr <= 0x1FFF:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr >= 0x2000 && addr <= 0x3FFF:
		bank := value & 0x7F
		if bank == 0 {
			bank = 1
		}
		m.romBank = bank
	case addr >= 0x4000 && addr <= 0x5FFF:
		// 0x00-0x03 select a RAM bank, 0x08-0x0C select an RTC register.
		m.ramBank = value
	case addr >= 0x6000 && addr <= 0x7FFF:
		if m.hasRTC {
			if m.latchPending && value == 0x01 {
				m.rtcLatched = m.rtc
			}
			m.latchPending = value == 0x00
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return value
		}
		if m.hasRTC && m.ramBank >= 0x08 && m.ramBank <= 0x0C {
			m.writeRTCRegister(value)
			return value
		}
		if len(m.ram) == 0 {
			return value
		}
		offset := uint32(m.ramBank) * 0x2000
		if offset >= uint32(len(m.ram)) {
			offset %= uint32(len(m.ram))
		}
		m.ram[offset+uint32(addr-0xA000)] = value
	}
	return value
}

func (m *MBC3) writeRTCRegister(value uint8) {
	switch m.ramBank {
	case 0x08:
		m.rtc.Seconds = value
	case 0x09:
		m.rtc.Minutes = value
	case 0x0A:
		m.rtc.Hours = value
	case 0x0B:
		m.rtc.DaysLow = value
	case 0x0C:
		m.rtc.DaysHigh = value
	}
}

// Tick advances the RTC by the given number of T-cycles. It is invoked by
// the MMU (via a type assertion, since plain MBC implementations have no
// concept of time) once per call to MMU.Tick.
func (m *MBC3) Tick(cycles int) {
	if !m.hasRTC || m.rtc.DaysHigh&rtcHaltBit != 0 {
		return
	}

	m.cycles += int64(cycles)
	const cyclesPerSecond = 1 << 22 // 4,194,304 Hz DMG clock
	for m.cycles >= cyclesPerSecond {
		m.cycles -= cyclesPerSecond
		m.tickSecond()
	}
}

func (m *MBC3) tickSecond() {
	m.rtc.Seconds++
	if m.rtc.Seconds < 60 {
		return
	}
	m.rtc.Seconds = 0

	m.rtc.Minutes++
	if m.rtc.Minutes < 60 {
		return
	}
	m.rtc.Minutes = 0

	m.rtc.Hours++
	if m.rtc.Hours < 24 {
		return
	}
	m.rtc.Hours = 0

	days := uint16(m.rtc.DaysLow) | uint16(m.rtc.DaysHigh&rtcDayHighBit)<<8
	days++
	if days > 0x1FF {
		days = 0
		m.rtc.DaysHigh |= rtcCarryBit
	}
	m.rtc.DaysLow = uint8(days)
	m.rtc.DaysHigh = (m.rtc.DaysHigh &^ rtcDayHighBit) | uint8(days>>8)&rtcDayHighBit
}

// MBC5 is the most advanced MBC chip. Features include:
// - Supports up to 8MB ROM (512 16KB banks)
// - Up to 128KB RAM (16 8KB banks)
// - Simple ROM/RAM banking with no quirks (unlike MBC1)
// - 9-bit ROM bank number (allows all 512 banks to be directly accessed)
// - Optional rumble motor support
// - Used in Game Boy Color games that needed more ROM/RAM
// - Backwards compatible with Game Boy
type MBC5 struct {
	rom        []uint8
	ram        []uint8
	romBank    uint16 // MBC5 supports up to 512 ROM banks
	ramBank    uint8
	ramEnabled bool
	hasRumble  bool
}

// NewMBC5 creates a new MBC5 controller
func NewMBC5(romData []uint8, hasRumble bool, ramBankCount uint8) *MBC5 {
	ramSize := uint32(ramBankCount) * 0x2000
	return &MBC5{
		rom:        romData,
		ram:        make([]uint8, ramSize),
		romBank:    1,
		ramEnabled: false,
		hasRumble:  hasRumble,
	}
}

func (m *MBC5) Read(addr uint16) uint8 {
	switch {
	case addr <= 0x3FFF:
		return m.rom[addr]
	case addr >= 0x4000 && addr <= 0x7FFF:
		offset := uint32(m.romBank) * 0x4000
		if offset >= uint32(len(m.rom)) {
			offset %= uint32(len(m.rom))
		}
		return m.rom[offset+uint32(addr-0x4000)]
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		offset := uint32(m.ramBank) * 0x2000
		if offset >= uint32(len(m.ram)) {
			offset %= uint32(len(m.ram))
		}
		return m.ram[offset+uint32(addr-0xA000)]
	default:
		return 0xFF
	}
}

func (m *MBC5) Write(addr uint16, value uint8) uint8 {
	switch {
	case addr <= 0x1FFF:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr >= 0x2000 && addr <= 0x2FFF:
		// Low 8 bits of the 9-bit ROM bank number.
		m.romBank = (m.romBank & 0x100) | uint16(value)
	case addr >= 0x3000 && addr <= 0x3FFF:
		// Bit 8 of the ROM bank number. Unlike MBC1/MBC3, bank 0 is a
		// valid selection here - there is no 0-to-1 promotion.
		m.romBank = (m.romBank & 0x0FF) | (uint16(value&0x01) << 8)
	case addr >= 0x4000 && addr <= 0x5FFF:
		// The rumble motor is wired to bit 3 of this register on
		// cartridges that have one, leaving only the low 3 bits for
		// RAM bank selection.
		if m.hasRumble {
			m.ramBank = value & 0x07
		} else {
			m.ramBank = value & 0x0F
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return value
		}
		offset := uint32(m.ramBank) * 0x2000
		if offset >= uint32(len(m.ram)) {
			offset %= uint32(len(m.ram))
		}
		m.ram[offset+uint32(addr-0xA000)] = value
	}
	return value
}

// UnsupportedMBC stands in for cartridge type bytes real hardware defines
// but this controller doesn't decode into a working implementation
// (MBC6/7, MMM01, HUC1/3, TAMA5, camera cartridges). Every access reports
// the bus condition through the crash hook the MMU wires in, the same way
// an undefined opcode or an echo-RAM access does, instead of panicking the
// host process on ROM load.
type UnsupportedMBC struct {
	cartType uint8
	crash    func(reason string)
}

// NewUnsupportedMBC returns a stub MBC for a cartridge type byte that
// didn't decode into a known MBCKind.
func NewUnsupportedMBC(cartType uint8, crash func(string)) *UnsupportedMBC {
	return &UnsupportedMBC{cartType: cartType, crash: crash}
}

func (m *UnsupportedMBC) Read(addr uint16) uint8 {
	if m.crash != nil {
		m.crash(fmt.Sprintf("read at 0x%04X on unsupported cartridge type 0x%02X", addr, m.cartType))
	}
	return 0xFF
}

func (m *UnsupportedMBC) Write(addr uint16, value uint8) uint8 {
	if m.crash != nil {
		m.crash(fmt.Sprintf("write at 0x%04X on unsupported cartridge type 0x%02X", addr, m.cartType))
	}
	return value
}
