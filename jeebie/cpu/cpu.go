// Package cpu implements the Sharp SM83 core used by the DMG and GBC:
// registers, flags, the full primary and CB-prefixed opcode spaces, and
// interrupt dispatch.
package cpu

import (
	"fmt"
	"log/slog"

	"github.com/aidanmarlow/pocketcore/jeebie/addr"
	"github.com/aidanmarlow/pocketcore/jeebie/memory"
)

// Status represents the CPU's run state.
type Status int

const (
	// StatusRunning is the normal fetch-decode-execute state.
	StatusRunning Status = iota
	// StatusHalted means the CPU is waiting for IE&IF to become nonzero.
	StatusHalted
	// StatusStopped means the CPU is waiting for a joypad transition (or
	// servicing a GBC double-speed switch).
	StatusStopped
	// StatusCrashed means an unrecoverable condition was hit (undefined
	// opcode, echo-RAM access); Tick becomes a no-op.
	StatusCrashed
)

// imeState models the one-instruction delay introduced by EI: the flag
// only takes effect after the instruction following EI has executed.
type imeState int

const (
	imeDisabled imeState = iota
	imePending
	imeEnabled
)

// CPU is the main struct holding Sharp SM83 state.
type CPU struct {
	memory *memory.MMU

	a, f uint8
	b, c uint8
	d, e uint8
	h, l uint8

	sp, pc uint16

	status Status
	ime    imeState

	haltBugPending bool

	doubleSpeed    bool
	speedSwitchReq bool

	currentOpcode uint16
}

// New returns a CPU wired to the given bus, in the standard post-boot-ROM
// register state (the values the DMG boot ROM leaves behind once a
// cartridge starts executing at 0x0100).
func New(mem *memory.MMU) *CPU {
	c := &CPU{memory: mem}
	c.a, c.f = 0x01, 0xB0
	c.setBC(0x0013)
	c.setDE(0x00D8)
	c.setHL(0x014D)
	c.sp = 0xFFFE
	c.pc = 0x0100
	c.status = StatusRunning
	c.ime = imeDisabled

	mem.SetCrashHook(c.TriggerCrash)
	mem.SetSpeedSwitcher(c)

	return c
}

// GetPC returns the current program counter.
func (c *CPU) GetPC() uint16 { return c.pc }

// SetPC forces the program counter, used by boot-ROM handoff and tests.
func (c *CPU) SetPC(value uint16) { c.pc = value }

// GetSP returns the current stack pointer.
func (c *CPU) GetSP() uint16 { return c.sp }

// GetStatus returns the CPU's current run state.
func (c *CPU) GetStatus() Status { return c.status }

// IsDoubleSpeed reports whether CGB double-speed mode is active.
func (c *CPU) IsDoubleSpeed() bool { return c.doubleSpeed }

// Registers returns a snapshot of every 8-bit register plus SP/PC/IME, for
// debug visualization. It does not include T-cycle counts; callers that
// need those track them externally.
func (c *CPU) Registers() (a, f, b, cc, d, e, h, l uint8, sp, pc uint16, ime bool) {
	return c.a, c.f, c.b, c.c, c.d, c.e, c.h, c.l, c.sp, c.pc, c.ime == imeEnabled
}

func (c *CPU) readImmediate() uint8 {
	value := c.memory.Read(c.pc)
	c.pc++
	return value
}

func (c *CPU) readImmediateWord() uint16 {
	low := c.readImmediate()
	high := c.readImmediate()
	return uint16(high)<<8 | uint16(low)
}

func (c *CPU) readSignedImmediate() int8 {
	return int8(c.readImmediate())
}

// Tick executes a single instruction, or services one pending interrupt,
// or progresses HALT/STOP waiting. It returns the T-cycles consumed. Once
// crashed, Tick is a no-op returning 0 so the caller's cycle accounting
// simply stalls.
func (c *CPU) Tick() int {
	if c.status == StatusCrashed {
		return 0
	}

	if cycles, dispatched := c.serviceInterrupt(); dispatched {
		return cycles
	}

	if c.status == StatusHalted {
		return 4
	}

	if c.status == StatusStopped {
		return 4
	}

	wasPending := c.ime == imePending
	opcode := Decode(c)
	cycles := c.execute(opcode)

	if wasPending {
		c.ime = imeEnabled
	}

	return cycles
}

func (c *CPU) pendingInterrupts() uint8 {
	ie := c.memory.Read(addr.IE)
	iflags := c.memory.Read(addr.IF)
	return ie & iflags & 0x1F
}

var interruptOrder = []struct {
	bit    uint8
	vector uint16
}{
	{0, 0x40}, // VBlank
	{1, 0x48}, // LCD STAT
	{2, 0x50}, // Timer
	{3, 0x58}, // Serial
	{4, 0x60}, // Joypad
}

// serviceInterrupt dispatches the highest-priority pending interrupt. HALT
// always wakes on a pending&enabled interrupt regardless of IME; actual
// dispatch (push+jump) only happens when IME is enabled.
func (c *CPU) serviceInterrupt() (int, bool) {
	pending := c.pendingInterrupts()
	if pending == 0 {
		return 0, false
	}

	if c.status == StatusHalted {
		c.status = StatusRunning
	}
	if c.status == StatusStopped {
		c.status = StatusRunning
	}

	if c.ime != imeEnabled {
		return 0, false
	}

	for _, entry := range interruptOrder {
		if pending&(1<<entry.bit) == 0 {
			continue
		}

		iflags := c.memory.Read(addr.IF)
		c.memory.Write(addr.IF, iflags&^(1<<entry.bit))
		c.ime = imeDisabled

		c.pushStack(c.pc)
		c.pc = entry.vector
		return 20, true
	}

	return 0, false
}

// crash transitions the CPU to StatusCrashed. Used for undefined and
// unhandled opcodes; bus conditions (echo RAM, unsupported MBC) arrive
// through TriggerCrash instead.
func (c *CPU) crash(format string, args ...any) int {
	c.status = StatusCrashed
	slog.Error("cpu crashed", "pc", fmt.Sprintf("0x%04X", c.pc), "opcode", fmt.Sprintf("0x%04X", c.currentOpcode), "reason", fmt.Sprintf(format, args...))
	return 4
}

// TriggerCrash transitions the CPU to StatusCrashed from outside the normal
// fetch-execute path. The MMU calls this through the hook installed by New
// when a bus-level condition (echo RAM access, an unimplemented MBC) hits a
// state real hardware would lock up on.
func (c *CPU) TriggerCrash(reason string) {
	if c.status == StatusCrashed {
		return
	}
	c.status = StatusCrashed
	slog.Error("cpu crashed", "pc", fmt.Sprintf("0x%04X", c.pc), "reason", reason)
}

// halt enters HALT. If IME is disabled and an interrupt is already pending,
// the CPU does not halt and execution continues with the next instruction;
// haltBugPending records that condition, but the hardware halt bug (the
// byte after HALT fetched twice) is not reproduced.
func (c *CPU) halt() {
	if c.ime != imeEnabled && c.pendingInterrupts() != 0 {
		c.haltBugPending = true
		return
	}
	c.status = StatusHalted
}

// stop enters STOP, unless KEY1 has a pending double-speed switch request,
// in which case it toggles speed and resumes immediately.
func (c *CPU) stop() {
	if c.speedSwitchReq {
		c.speedSwitchReq = false
		c.doubleSpeed = !c.doubleSpeed
		return
	}
	c.status = StatusStopped
}

// SetSpeedSwitchRequested is called by the MMU when KEY1 bit 0 is written.
func (c *CPU) SetSpeedSwitchRequested(requested bool) {
	c.speedSwitchReq = requested
}

// SpeedSwitchPending reports whether a KEY1 double-speed switch is armed
// and waiting for the next STOP, for the MMU to reflect back on KEY1 reads.
func (c *CPU) SpeedSwitchPending() bool {
	return c.speedSwitchReq
}
