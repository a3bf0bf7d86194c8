package memory

import (
	"fmt"
	"log/slog"

	"github.com/aidanmarlow/pocketcore/jeebie/addr"
	"github.com/aidanmarlow/pocketcore/jeebie/audio"
	"github.com/aidanmarlow/pocketcore/jeebie/bit"
	"github.com/aidanmarlow/pocketcore/jeebie/serial"
)

type memRegion uint8

const (
	regionROM memRegion = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM
	regionUnused
	regionIO
	regionHRAM
)

// JoypadKey represents a key on the Gameboy joypad
type JoypadKey uint8

const (
	JoypadRight JoypadKey = iota
	JoypadLeft
	JoypadUp
	JoypadDown
	JoypadA
	JoypadB
	JoypadSelect
	JoypadStart
)

// SerialPort is the minimal interface for a serial device connected to SB/SC.
// Implementations MUST only accept reads/writes to addr.SB and addr.SC.
type SerialPort interface {
	Write(address uint16, value byte)
	Read(address uint16) byte
	Tick(cycles int)
	Reset()
}

// SpeedSwitcher is implemented by the CPU so the MMU can forward a KEY1
// double-speed switch request, and read back the current speed, without
// importing the cpu package.
type SpeedSwitcher interface {
	SetSpeedSwitchRequested(bool)
	IsDoubleSpeed() bool
	SpeedSwitchPending() bool
}

// MMU allows access to all memory mapped I/O and data/registers
type MMU struct {
	cart      *Cartridge
	mbc       MBC
	memory    []byte
	APU       *audio.APU
	regionMap [256]memRegion

	joypadButtons uint8 // Actual state of buttons A/B/Start/Select, mapped to low bits of P1
	joypadDpad    uint8 // Actual state of d-pad directions, mapped to low bits of P1

	serial SerialPort
	timer  Timer

	crashHook     func(reason string)
	speedSwitcher SpeedSwitcher

	// CGB VRAM/WRAM banking. Bank 0 of each mirrors what a DMG sees;
	// banks beyond that only become reachable when the cartridge
	// declares CGB support and switches VBK/SVBK.
	vram    [2][0x2000]byte
	vbk     uint8
	wram    [8][0x1000]byte
	svbk    uint8
	cgbMode bool

	// HDMA1-4 hold the pending transfer's source/destination; HDMA5
	// holds length and mode and starts the transfer on write.
	hdmaSrc, hdmaDst uint16
	hdmaActive       bool
	hdmaLength       uint16

	// CGB palette RAM: 8 palettes x 4 colors x 2 bytes (RGB555), for
	// both the background and object palette sets.
	bgPaletteRAM   [64]byte
	bgPaletteIdx   uint8
	bgPaletteAuto  bool
	objPaletteRAM  [64]byte
	objPaletteIdx  uint8
	objPaletteAuto bool
}

// New creates a new memory unity with default data, i.e. nothing cartridge loaded.
// Equivalent to turning on a Gameboy without a cartridge in.
func New() *MMU {
	mmu := &MMU{
		memory:        make([]byte, 0x10000),
		cart:          NewCartridge(),
		APU:           audio.New(),
		joypadButtons: 0x0F,
		joypadDpad:    0x0F,
	}
	mmu.serial = serial.NewLogSink(func() { mmu.RequestInterrupt(addr.SerialInterrupt) })
	mmu.timer.TimerInterruptHandler = func() { mmu.RequestInterrupt(addr.TimerInterrupt) }
	initRegionMap(mmu)
	return mmu
}

// Tick advances any i/o that needs it, if any.
func (m *MMU) Tick(cycles int) {
	m.timer.Tick(cycles)
	if m.serial != nil {
		m.serial.Tick(cycles)
	}
	if m.APU != nil {
		m.APU.Tick(cycles)
	}
	if rtc, ok := m.mbc.(interface{ Tick(int) }); ok {
		rtc.Tick(cycles)
	}
}

// SetTimerSeed initializes the internal timer divider seed and DIV register.
func (m *MMU) SetTimerSeed(seed uint16) {
	m.timer.SetSeed(seed)
}

// SetCrashHook installs the callback invoked when a bus-level condition
// (an echo-RAM access, a cartridge type this controller doesn't support)
// hits a state real hardware has no recovery from. The CPU installs its
// own TriggerCrash as this hook in cpu.New. A nil hook is a silent no-op,
// which keeps MMU usable standalone in tests that don't construct a CPU.
func (m *MMU) SetCrashHook(hook func(reason string)) {
	m.crashHook = hook
}

func (m *MMU) crash(reason string) {
	if m.crashHook != nil {
		m.crashHook(reason)
	}
}

// SetSpeedSwitcher installs the CPU as the target of KEY1 double-speed
// switch requests.
func (m *MMU) SetSpeedSwitcher(s SpeedSwitcher) {
	m.speedSwitcher = s
}

// NewWithCartridge creates a new memory unit with the provided cartridge data loaded.
// Equivalent to turning on a Gameboy with a cartridge in.
func NewWithCartridge(cart *Cartridge) *MMU {
	mmu := New()
	mmu.cart = cart
	mmu.cgbMode = cart.IsCGB()

	switch cart.mbcType {
	case NoMBCType:
		mmu.mbc = NewNoMBC(cart.data)
	case MBC1Type:
		mmu.mbc = NewMBC1(cart.data, cart.hasBattery, cart.ramBankCount)
	case MBC1MultiType:
		mmu.mbc = NewMBC1(cart.data, cart.hasBattery, cart.ramBankCount) // FIXME: add support for multicart
	case MBC2Type:
		mmu.mbc = NewMBC2(cart.data)
	case MBC3Type:
		mmu.mbc = NewMBC3(cart.data, cart.ramBankCount, cart.hasRTC, nil)
	case MBC5Type:
		mmu.mbc = NewMBC5(cart.data, cart.hasRumble, cart.ramBankCount)
	default:
		// MBC6/7, MMM01, HUC1/3, TAMA5 and camera cartridges all collapse
		// to MBCUnknownType in decodeCartType; stub them out instead of
		// refusing to boot, and let the crash hook report the condition
		// once code actually touches ROM/external RAM.
		mmu.mbc = NewUnsupportedMBC(cart.cartType, mmu.crash)
	}

	return mmu
}

func initRegionMap(m *MMU) {
	// ROM: 0x0000-0x7FFF
	for i := 0x00; i <= 0x7F; i++ {
		m.regionMap[i] = regionROM
	}
	// VRAM: 0x8000-0x9FFF
	for i := 0x80; i <= 0x9F; i++ {
		m.regionMap[i] = regionVRAM
	}
	// External RAM: 0xA000-0xBFFF
	for i := 0xA0; i <= 0xBF; i++ {
		m.regionMap[i] = regionExtRAM
	}
	// Work RAM: 0xC000-0xDFFF
	for i := 0xC0; i <= 0xDF; i++ {
		m.regionMap[i] = regionWRAM
	}
	// Echo RAM: 0xE000-0xFDFF
	for i := 0xE0; i <= 0xFD; i++ {
		m.regionMap[i] = regionEcho
	}
	// OAM: 0xFE00-0xFE9F, Unused: 0xFEA0-0xFEFF
	m.regionMap[0xFE] = regionOAM
	// IO + HRAM: 0xFF00-0xFFFF
	m.regionMap[0xFF] = regionIO
}

// RequestInterrupt sets the interrupt flag (IF register) of the chosen interrupt to 1.
func (m *MMU) RequestInterrupt(interrupt addr.Interrupt) {
	interruptFlags := m.Read(addr.IF)

	var bitPos uint8
	switch interrupt {
	case addr.VBlankInterrupt:
		bitPos = 0
	case addr.LCDSTATInterrupt:
		bitPos = 1
	case addr.TimerInterrupt:
		bitPos = 2
	case addr.SerialInterrupt:
		bitPos = 3
	case addr.JoypadInterrupt:
		bitPos = 4
	default:
		panic(fmt.Sprintf("Unknown interrupt: 0x%02X", uint8(interrupt)))
	}

	newFlags := bit.Set(bitPos, interruptFlags)

	m.Write(addr.IF, newFlags)
}

func (m *MMU) ReadBit(index uint8, address uint16) bool {
	return bit.IsSet(index, m.Read(address))
}

func (m *MMU) SetBit(index uint8, address uint16, set bool) {
	value := m.Read(address)
	if set {
		value = bit.Set(index, value)
	} else {
		value = bit.Reset(index, value)
	}
	m.Write(address, value)
}

// ppuMode returns the PPU's current mode (bits 1-0 of STAT), which
// GPU.setMode keeps in sync on every mode transition. Reading it back out
// of STAT avoids MMU needing a reference to the GPU itself: video already
// imports memory, so the dependency can't run the other way.
func (m *MMU) ppuMode() uint8 {
	return m.memory[addr.STAT] & 0x03
}

func (m *MMU) lcdEnabled() bool {
	return bit.IsSet(7, m.memory[addr.LCDC])
}

// vramAccessible mirrors real hardware: the PPU owns the VRAM bus during
// mode 3 (pixel transfer), locking the CPU out. An LCD that's off can't be
// in any PPU mode, so VRAM is always open then.
func (m *MMU) vramAccessible() bool {
	return !m.lcdEnabled() || m.ppuMode() != 3
}

// oamAccessible mirrors real hardware: the PPU owns the OAM bus during
// mode 2 (OAM scan) and mode 3 (pixel transfer). DMA transfers bypass this
// check by writing the backing array directly.
func (m *MMU) oamAccessible() bool {
	if !m.lcdEnabled() {
		return true
	}
	mode := m.ppuMode()
	return mode != 2 && mode != 3
}

func (m *MMU) Read(address uint16) byte {
	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		if m.mbc == nil {
			slog.Warn("Reading from ROM/external RAM with no cartridge", "addr", fmt.Sprintf("0x%04X", address))
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionVRAM:
		if !m.vramAccessible() {
			return 0xFF
		}
		return m.vram[m.vbk][address-0x8000]
	case regionWRAM:
		return m.readWRAM(address)
	case regionEcho:
		// Echo RAM isn't a real region on hardware and isn't wired to
		// anything; real games never address it deliberately, so any
		// access here means a pointer computation went wrong.
		m.crash(fmt.Sprintf("read from echo RAM at 0x%04X", address))
		return 0xFF
	case regionOAM:
		if address > 0xFE9F {
			// Unused area 0xFEA0-0xFEFF
			return 0xFF
		}
		if !m.oamAccessible() {
			return 0xFF
		}
		return m.memory[address]
	case regionIO:
		return m.readIO(address)
	default:
		panic(fmt.Sprintf("Attempted read at unmapped address: 0x%X", address))
	}
}

func (m *MMU) readWRAM(address uint16) byte {
	if address < 0xD000 {
		return m.wram[0][address-0xC000]
	}
	return m.wram[m.wramBank()][address-0xD000]
}

func (m *MMU) wramBank() uint8 {
	bank := m.svbk & 0x07
	if bank == 0 {
		bank = 1
	}
	return bank
}

func (m *MMU) readIO(address uint16) byte {
	if address == addr.SB || address == addr.SC {
		return m.serial.Read(address)
	}
	if address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC {
		return m.timer.Read(address)
	}
	if address >= 0xFF10 && address <= 0xFF3F {
		return m.APU.ReadRegister(address)
	}
	// Just in case, we always read the upper 3 bits of IF as 1.
	// They're not used, but have caused me some headaches when checking for
	// when the halt bug triggers (IF != 0).
	if address == addr.IF {
		return m.memory[address] | 0xE0
	}
	switch address {
	case addr.KEY1:
		var speed, pending uint8
		if m.speedSwitcher != nil {
			if m.speedSwitcher.IsDoubleSpeed() {
				speed = 0x80
			}
			if m.speedSwitcher.SpeedSwitchPending() {
				pending = 0x01
			}
		}
		return speed | pending | 0x7E
	case addr.VBK:
		return m.vbk | 0xFE
	case addr.SVBK:
		return m.svbk | 0xF8
	case addr.HDMA5:
		if m.hdmaActive {
			return byte((m.hdmaLength/0x10 - 1) & 0x7F)
		}
		return 0xFF
	case addr.BCPS:
		return m.bgPaletteIndexRegister()
	case addr.BCPD:
		return m.bgPaletteRAM[m.bgPaletteIdx]
	case addr.OCPS:
		return m.objPaletteIndexRegister()
	case addr.OCPD:
		return m.objPaletteRAM[m.objPaletteIdx]
	}
	if address >= 0xFF80 {
		// HRAM
		return m.memory[address]
	}
	// Other IO registers
	return m.memory[address]
}

func (m *MMU) bgPaletteIndexRegister() byte {
	v := m.bgPaletteIdx
	if m.bgPaletteAuto {
		v |= 0x80
	}
	return v
}

func (m *MMU) objPaletteIndexRegister() byte {
	v := m.objPaletteIdx
	if m.objPaletteAuto {
		v |= 0x80
	}
	return v
}

func (m *MMU) Write(address uint16, value byte) {
	switch m.regionMap[address>>8] {
	case regionROM:
		if m.mbc == nil {
			slog.Warn("Writing to ROM with no cartridge", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionVRAM:
		if !m.vramAccessible() {
			return
		}
		m.vram[m.vbk][address-0x8000] = value
	case regionExtRAM:
		if m.mbc == nil {
			slog.Warn("Writing to external RAM with no cartridge", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionWRAM:
		m.writeWRAM(address, value)
	case regionEcho:
		m.crash(fmt.Sprintf("write to echo RAM at 0x%04X", address))
	case regionOAM:
		if address > 0xFE9F {
			// Unused area 0xFEA0-0xFEFF
			return
		}
		if !m.oamAccessible() {
			return
		}
		m.memory[address] = value
	case regionIO:
		m.writeIO(address, value)
	default:
		panic(fmt.Sprintf("Attempted write at unmapped address: 0x%X", address))
	}
}

func (m *MMU) writeWRAM(address uint16, value byte) {
	if address < 0xD000 {
		m.wram[0][address-0xC000] = value
		return
	}
	m.wram[m.wramBank()][address-0xD000] = value
}

func (m *MMU) writeIO(address uint16, value byte) {
	if address == addr.P1 {
		m.writeJoypad(value)
		return
	}
	if address == addr.SB || address == addr.SC {
		m.serial.Write(address, value)
		return
	}
	if address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC {
		m.timer.Write(address, value)
		return
	}
	if address >= 0xFF10 && address <= 0xFF3F {
		m.APU.WriteRegister(address, value)
		return
	}
	if address == addr.IF {
		// This goddamn register has its upper 3 bits always set as 1...
		// Beware if you're trying to match halt bug behavior.
		m.memory[address] = value | 0xE0
		return
	}
	if address == addr.DMA {
		sourceAddr := uint16(value) << 8
		// DMA transfer copies 160 bytes from source to OAM, bypassing the
		// mode-gating that regionOAM applies to CPU-issued writes: on real
		// hardware the DMA unit drives the OAM bus directly.
		for i := range uint16(160) {
			m.memory[0xFE00+i] = m.Read(sourceAddr + i)
		}
		m.memory[address] = value
		return
	}
	switch address {
	case addr.KEY1:
		if m.speedSwitcher != nil {
			m.speedSwitcher.SetSpeedSwitchRequested(value&0x01 != 0)
		}
		return
	case addr.VBK:
		if m.cgbMode {
			m.vbk = value & 0x01
		}
		return
	case addr.SVBK:
		if m.cgbMode {
			m.svbk = value & 0x07
		}
		return
	case addr.HDMA1:
		m.hdmaSrc = (m.hdmaSrc & 0x00FF) | uint16(value)<<8
		return
	case addr.HDMA2:
		m.hdmaSrc = (m.hdmaSrc & 0xFF00) | uint16(value&0xF0)
		return
	case addr.HDMA3:
		m.hdmaDst = (m.hdmaDst & 0x00FF) | uint16(value&0x1F)<<8
		return
	case addr.HDMA4:
		m.hdmaDst = (m.hdmaDst & 0xFF00) | uint16(value&0xF0)
		return
	case addr.HDMA5:
		m.startHDMA(value)
		return
	case addr.BCPS:
		m.bgPaletteIdx = value & 0x3F
		m.bgPaletteAuto = value&0x80 != 0
		return
	case addr.BCPD:
		m.bgPaletteRAM[m.bgPaletteIdx] = value
		if m.bgPaletteAuto {
			m.bgPaletteIdx = (m.bgPaletteIdx + 1) & 0x3F
		}
		return
	case addr.OCPS:
		m.objPaletteIdx = value & 0x3F
		m.objPaletteAuto = value&0x80 != 0
		return
	case addr.OCPD:
		m.objPaletteRAM[m.objPaletteIdx] = value
		if m.objPaletteAuto {
			m.objPaletteIdx = (m.objPaletteIdx + 1) & 0x3F
		}
		return
	}
	if address >= 0xFF80 {
		// HRAM
		m.memory[address] = value
		return
	}
	// Other IO registers
	m.memory[address] = value
}

// startHDMA begins a VRAM DMA transfer triggered by an HDMA5 write. General
// purpose transfers (bit 7 clear) run to completion immediately, since
// nothing in this emulator models stealing bus cycles from the CPU mid
// transfer. H-blank transfers (bit 7 set) are approximated the same way:
// the whole block moves on the triggering write rather than 0x10 bytes per
// h-blank, which is close enough for games that only use HDMA to stream
// tile data between frames without relying on its precise pacing.
func (m *MMU) startHDMA(value byte) {
	length := (uint16(value&0x7F) + 1) * 0x10
	src := m.hdmaSrc & 0xFFF0
	dst := 0x8000 + (m.hdmaDst & 0x1FF0)

	for i := uint16(0); i < length; i++ {
		m.vram[m.vbk][(dst+i)-0x8000] = m.Read(src + i)
	}

	m.hdmaActive = false
	m.hdmaLength = 0
}

// IsCGB reports whether the loaded cartridge declared CGB support, gating
// VBK/SVBK/palette-RAM writes and CGB-only PPU rendering paths.
func (m *MMU) IsCGB() bool {
	return m.cgbMode
}

// VRAMBank returns which VRAM bank (0 or 1) is currently selected via VBK.
func (m *MMU) VRAMBank() uint8 {
	return m.vbk
}

// ReadVRAMBank reads a byte from a specific VRAM bank regardless of the
// current VBK selection, used by the PPU to fetch CGB tile attributes
// (stored in bank 1) alongside bank 0's tile data.
func (m *MMU) ReadVRAMBank(bank uint8, address uint16) byte {
	if !m.vramAccessible() {
		return 0xFF
	}
	return m.vram[bank&0x01][address-0x8000]
}

// BGPaletteColor returns the RGB555 color (as two little-endian bytes) for
// background palette index 0-7, color 0-3.
func (m *MMU) BGPaletteColor(palette, color uint8) uint16 {
	return paletteColor(m.bgPaletteRAM[:], palette, color)
}

// OBJPaletteColor returns the RGB555 color for object palette index 0-7,
// color 0-3.
func (m *MMU) OBJPaletteColor(palette, color uint8) uint16 {
	return paletteColor(m.objPaletteRAM[:], palette, color)
}

func paletteColor(ram []byte, palette, color uint8) uint16 {
	offset := (int(palette&0x07)*4 + int(color&0x03)) * 2
	return uint16(ram[offset]) | uint16(ram[offset+1])<<8
}

// updateJoypadRegister sets the joypad register (P1) according to selection bits
// and hardware (buttons) status.
//
// In real hw, this register is actually just a selector (bits 4-5) that control
// to which set of buttons the low bits (0-3) are mapped to. A group is
// selected when its bit is 0.
//
// The mapping:
//   - if bit 4 is clear, bits 0-3 are mapped to the 4 d-pad directions
//   - if bit 5 is clear, bits 0-3 are mapped to A, B, Start, Select
//   - if both are clear, hw does an AND of both button sets
//   - if both are set (nothing selected), return 0x0F (high impedence state)
//
// This function is called whenever:
//   - there is a write to the P1 register (only set bits 4-5)
//   - a button is pressed or released (tracked separately)
//
// Note that 1 -> button released, 0 -> button pressed.
// Bits 6-7 are unused, they always read as 1 on real hardware.
func (m *MMU) updateJoypadRegister() {
	p1 := m.memory[addr.P1]
	result := uint8(0b11000000) // Bits 6-7 are always read as 1
	result |= p1 & 0b00110000   // Keep selection bits 4-5

	// A button group is selected if the corresponding bit is 0
	selectDpad := !bit.IsSet(4, p1)
	selectButtons := !bit.IsSet(5, p1)

	switch {
	case selectButtons && !selectDpad:
		result |= m.joypadButtons & 0x0F
	case selectDpad && !selectButtons:
		result |= m.joypadDpad & 0x0F
	case selectButtons && selectDpad:
		result |= m.joypadButtons & m.joypadDpad & 0x0F
	default:
		// no selection
		result |= 0x0F
	}

	m.memory[addr.P1] = result
}

func (m *MMU) writeJoypad(value uint8) {
	// Only bits 4-5 are writable (selection bits)
	m.memory[addr.P1] = value & 0b00110000
	m.updateJoypadRegister()
}

func (m *MMU) HandleKeyPress(key JoypadKey) {
	oldButtons := m.joypadButtons
	oldDpad := m.joypadDpad

	switch key {
	case JoypadRight:
		m.joypadDpad = bit.Reset(0, m.joypadDpad)
	case JoypadLeft:
		m.joypadDpad = bit.Reset(1, m.joypadDpad)
	case JoypadUp:
		m.joypadDpad = bit.Reset(2, m.joypadDpad)
	case JoypadDown:
		m.joypadDpad = bit.Reset(3, m.joypadDpad)
	case JoypadA:
		m.joypadButtons = bit.Reset(0, m.joypadButtons)
	case JoypadB:
		m.joypadButtons = bit.Reset(1, m.joypadButtons)
	case JoypadSelect:
		m.joypadButtons = bit.Reset(2, m.joypadButtons)
	case JoypadStart:
		m.joypadButtons = bit.Reset(3, m.joypadButtons)
	}

	buttonTransitions := oldButtons & ^m.joypadButtons
	dpadTransitions := oldDpad & ^m.joypadDpad
	if buttonTransitions|dpadTransitions != 0 {
		m.RequestInterrupt(addr.JoypadInterrupt)
	}

	m.updateJoypadRegister()
}

func (m *MMU) HandleKeyRelease(key JoypadKey) {
	switch key {
	case JoypadRight:
		m.joypadDpad = bit.Set(0, m.joypadDpad)
	case JoypadLeft:
		m.joypadDpad = bit.Set(1, m.joypadDpad)
	case JoypadUp:
		m.joypadDpad = bit.Set(2, m.joypadDpad)
	case JoypadDown:
		m.joypadDpad = bit.Set(3, m.joypadDpad)
	case JoypadA:
		m.joypadButtons = bit.Set(0, m.joypadButtons)
	case JoypadB:
		m.joypadButtons = bit.Set(1, m.joypadButtons)
	case JoypadSelect:
		m.joypadButtons = bit.Set(2, m.joypadButtons)
	case JoypadStart:
		m.joypadButtons = bit.Set(3, m.joypadButtons)
	}

	m.updateJoypadRegister()
}
