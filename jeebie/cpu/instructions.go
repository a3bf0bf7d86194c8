package cpu

import "github.com/aidanmarlow/pocketcore/jeebie/bit"

func (c *CPU) pushStack(r uint16) {
	c.sp--
	c.memory.Write(c.sp, bit.High(r))
	c.sp--
	c.memory.Write(c.sp, bit.Low(r))
}

func (c *CPU) popStack() uint16 {
	low := c.memory.Read(c.sp)
	c.sp++
	high := c.memory.Read(c.sp)
	c.sp++

	return bit.Combine(high, low)
}

func (c *CPU) inc(r *uint8) {
	*r++
	value := *r

	c.setFlagToCondition(zeroFlag, value == 0)
	c.setFlagToCondition(halfCarryFlag, (value&0xF) == 0)
	c.resetFlag(subFlag)
}

func (c *CPU) dec(r *uint8) {
	*r--
	value := *r

	c.setFlagToCondition(zeroFlag, value == 0)
	c.setFlagToCondition(halfCarryFlag, (value&0xF) == 0xF)
	c.setFlag(subFlag)
}

// rlc/rl/rrc/rr back both the CB-prefixed rotate instructions and the
// accumulator-only RLCA/RLA/RRCA/RRA opcodes. The latter always clear the
// zero flag regardless of the result; called directly on the A register
// (as RLCA and friends do) they reproduce that quirk, while the CB r,
// r!=A forms set the zero flag on the result as normal.
func (c *CPU) rlc(r *uint8) {
	value := *r
	carry := value > 0x7F

	value = (value << 1) | boolToBit(carry)
	*r = value

	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(zeroFlag, value == 0 && r != &c.a)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
}

func (c *CPU) rl(r *uint8) {
	value := *r
	carryIn := c.flagToBit(carryFlag)
	carryOut := value > 0x7F

	value = (value << 1) | carryIn
	*r = value

	c.setFlagToCondition(carryFlag, carryOut)
	c.setFlagToCondition(zeroFlag, value == 0 && r != &c.a)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
}

func (c *CPU) rrc(r *uint8) {
	value := *r
	carry := value&1 != 0

	value = (value >> 1) | (boolToBit(carry) << 7)
	*r = value

	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(zeroFlag, value == 0 && r != &c.a)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
}

func (c *CPU) rr(r *uint8) {
	value := *r
	carryIn := c.flagToBit(carryFlag)
	carryOut := value&1 != 0

	value = (value >> 1) | (carryIn << 7)
	*r = value

	c.setFlagToCondition(carryFlag, carryOut)
	c.setFlagToCondition(zeroFlag, value == 0 && r != &c.a)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
}

func (c *CPU) sla(r *uint8) {
	value := *r
	carry := value > 0x7F

	value <<= 1
	*r = value

	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(zeroFlag, value == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
}

func (c *CPU) sra(r *uint8) {
	value := *r
	carry := value&1 != 0

	value = (value >> 1) | (value & 0x80)
	*r = value

	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(zeroFlag, value == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
}

func (c *CPU) srl(r *uint8) {
	value := *r
	carry := value&1 != 0

	value >>= 1
	*r = value

	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(zeroFlag, value == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
}

func (c *CPU) swap(r *uint8) {
	value := *r
	value = (value << 4) | (value >> 4)
	*r = value

	c.setFlagToCondition(zeroFlag, value == 0)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
	c.resetFlag(carryFlag)
}

func (c *CPU) bit(index uint8, value uint8) {
	c.setFlagToCondition(zeroFlag, value&(1<<index) == 0)
	c.resetFlag(subFlag)
	c.setFlag(halfCarryFlag)
}

func (c *CPU) res(index uint8, r *uint8) {
	*r &^= 1 << index
}

func (c *CPU) set(index uint8, r *uint8) {
	*r |= 1 << index
}

func boolToBit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// addToA sets the result of adding an 8 bit value to A, with flags.
func (c *CPU) addToA(value uint8) {
	a := c.a
	result := a + value

	carry := (uint16(a) + uint16(value)) > 0xFF
	halfCarry := (a&0xF)+(value&0xF) > 0xF

	c.a = result

	c.setFlagToCondition(zeroFlag, result == 0)
	c.resetFlag(subFlag)
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(halfCarryFlag, halfCarry)
}

// adc adds value plus the carry flag to A.
func (c *CPU) adc(value uint8) {
	a := c.a
	carry := c.flagToBit(carryFlag)
	result := uint16(a) + uint16(value) + uint16(carry)

	halfCarry := (a&0xF)+(value&0xF)+carry > 0xF

	c.a = uint8(result)

	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(subFlag)
	c.setFlagToCondition(carryFlag, result > 0xFF)
	c.setFlagToCondition(halfCarryFlag, halfCarry)
}

// addToHL sets the result of adding a 16 bit register to HL, with flags.
func (c *CPU) addToHL(reg uint16) {
	hl := c.getHL()
	result := hl + reg

	carry := (uint32(hl) + uint32(reg)) > 0xFFFF
	halfCarry := (hl&0xFFF)+(reg&0xFFF) > 0xFFF

	c.setHL(result)

	c.resetFlag(subFlag)
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(halfCarryFlag, halfCarry)
}

// addToSP adds a signed immediate to SP, used by ADD SP,r8 and LD HL,SP+r8.
// Flags are computed on the unsigned low byte per hardware behaviour.
func (c *CPU) addToSP(offset int8) uint16 {
	sp := c.sp
	result := uint16(int32(sp) + int32(offset))

	value := uint8(offset)
	carry := (sp&0xFF)+uint16(value) > 0xFF
	halfCarry := (sp&0xF)+uint16(value&0xF) > 0xF

	c.resetFlag(zeroFlag)
	c.resetFlag(subFlag)
	c.setFlagToCondition(carryFlag, carry)
	c.setFlagToCondition(halfCarryFlag, halfCarry)

	return result
}

// sub subtracts value from A, with flags.
func (c *CPU) sub(value uint8) {
	a := c.a
	c.a = a - value

	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.setFlag(subFlag)
	c.setFlagToCondition(carryFlag, a < value)
	c.setFlagToCondition(halfCarryFlag, (a&0xF) < (value&0xF))
}

// sbc subtracts value and the carry flag from A.
func (c *CPU) sbc(value uint8) {
	a := c.a
	carry := int(c.flagToBit(carryFlag))

	result := int(a) - int(value) - carry
	c.a = uint8(result)

	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.setFlag(subFlag)
	c.setFlagToCondition(carryFlag, result < 0)
	c.setFlagToCondition(halfCarryFlag, (int(a)&0xF)-(int(value)&0xF)-carry < 0)
}

// cp compares value against A without storing the result.
func (c *CPU) cp(value uint8) {
	a := c.a
	c.sub(value)
	c.a = a
}

func (c *CPU) and(value uint8) {
	c.a &= value
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(subFlag)
	c.setFlag(halfCarryFlag)
	c.resetFlag(carryFlag)
}

func (c *CPU) or(value uint8) {
	c.a |= value
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(subFlag)
	c.resetFlag(carryFlag)
	c.resetFlag(halfCarryFlag)
}

func (c *CPU) xor(value uint8) {
	c.a ^= value
	c.setFlagToCondition(zeroFlag, c.a == 0)
	c.resetFlag(subFlag)
	c.resetFlag(carryFlag)
	c.resetFlag(halfCarryFlag)
}

// daa corrects A into packed BCD after an addition or subtraction,
// following the standard high/low nibble correction table.
func (c *CPU) daa() {
	a := c.a
	correction := uint8(0)
	carry := false

	if c.isSetFlag(halfCarryFlag) || (!c.isSetFlag(subFlag) && (a&0xF) > 9) {
		correction |= 0x06
	}
	if c.isSetFlag(carryFlag) || (!c.isSetFlag(subFlag) && a > 0x99) {
		correction |= 0x60
		carry = true
	}

	if c.isSetFlag(subFlag) {
		a -= correction
	} else {
		a += correction
	}

	c.a = a
	c.setFlagToCondition(zeroFlag, a == 0)
	c.resetFlag(halfCarryFlag)
	c.setFlagToCondition(carryFlag, carry)
}

func (c *CPU) cpl() {
	c.a = ^c.a
	c.setFlag(subFlag)
	c.setFlag(halfCarryFlag)
}

func (c *CPU) scf() {
	c.setFlag(carryFlag)
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
}

func (c *CPU) ccf() {
	c.setFlagToCondition(carryFlag, !c.isSetFlag(carryFlag))
	c.resetFlag(subFlag)
	c.resetFlag(halfCarryFlag)
}

// jr performs a PC-relative jump: it reads the signed offset at PC,
// advances PC past it, then applies the jump relative to that new PC.
func (c *CPU) jr() {
	offset := c.readSignedImmediate()
	c.pc = uint16(int32(c.pc) + int32(offset))
}
