package cpu

// Decode peeks the next opcode without consuming it: a single byte, or a
// 0xCB00|byte pair for the CB-prefixed space. PC is left untouched so a
// caller can inspect what is about to run (used by the debugger and by
// Tick, which advances PC itself once it commits to executing).
func Decode(c *CPU) uint16 {
	first := c.memory.Read(c.pc)
	if first == 0xCB {
		second := c.memory.Read(c.pc + 1)
		c.currentOpcode = 0xCB00 | uint16(second)
		return c.currentOpcode
	}

	c.currentOpcode = uint16(first)
	return c.currentOpcode
}

func (c *CPU) execute(opcode uint16) int {
	if opcode&0xFF00 == 0xCB00 {
		c.pc += 2
		return c.executeCB(uint8(opcode))
	}

	c.pc++
	return c.executeMain(uint8(opcode))
}

// readReg8/writeReg8 resolve the 3-bit register field used throughout the
// regular opcode blocks; index 6 addresses memory at HL instead of a
// register.
func (c *CPU) readReg8(index uint8) uint8 {
	if index == 6 {
		return c.memory.Read(c.getHL())
	}
	return *c.r8(index)
}

func (c *CPU) writeReg8(index uint8, value uint8) {
	if index == 6 {
		c.memory.Write(c.getHL(), value)
		return
	}
	*c.r8(index) = value
}

// getRP/setRP resolve one of the four register-pair fields used by 0x01-range
// and 0xC1-range opcodes: BC, DE, HL, and either SP (loads) or AF (stack).
func (c *CPU) getRP(index uint8, spForm bool) uint16 {
	switch index {
	case 0:
		return c.getBC()
	case 1:
		return c.getDE()
	case 2:
		return c.getHL()
	default:
		if spForm {
			return c.sp
		}
		return c.getAF()
	}
}

func (c *CPU) setRP(index uint8, spForm bool, value uint16) {
	switch index {
	case 0:
		c.setBC(value)
	case 1:
		c.setDE(value)
	case 2:
		c.setHL(value)
	default:
		if spForm {
			c.sp = value
		} else {
			c.setAF(value)
		}
	}
}

func (c *CPU) condition(index uint8) bool {
	switch index {
	case 0:
		return !c.isSetFlag(zeroFlag)
	case 1:
		return c.isSetFlag(zeroFlag)
	case 2:
		return !c.isSetFlag(carryFlag)
	default:
		return c.isSetFlag(carryFlag)
	}
}

// executeMain runs one instruction from the unprefixed opcode space. The
// regular LD r,r' block (0x40-0x7F) and the ALU A,r block (0x80-0xBF) are
// handled via the register-field tables above; everything else (loads
// with 16-bit immediates, control flow, stack ops and the handful of
// irregular opcodes the DMG ISA carries) gets its own case.
func (c *CPU) executeMain(op uint8) int {
	switch {
	case op == 0x76:
		c.halt()
		return 4
	case op >= 0x40 && op <= 0x7F:
		dst, src := (op>>3)&7, op&7
		value := c.readReg8(src)
		c.writeReg8(dst, value)
		if dst == 6 || src == 6 {
			return 8
		}
		return 4
	case op >= 0x80 && op <= 0xBF:
		return c.executeALUBlock((op>>3)&7, c.readReg8(op&7), op&7 == 6)
	}

	switch op {
	case 0x00: // NOP
		return 4
	case 0x10: // STOP
		c.readImmediate()
		c.stop()
		return 4
	case 0xF3: // DI
		c.ime = imeDisabled
		return 4
	case 0xFB: // EI
		if c.ime == imeDisabled {
			c.ime = imePending
		}
		return 4
	case 0xD3, 0xDB, 0xDD, 0xE3, 0xE4, 0xEB, 0xEC, 0xED, 0xF4, 0xFC, 0xFD:
		return c.crash("undefined opcode 0x%02X", op)

	case 0x01, 0x11, 0x21, 0x31: // LD rr,nn
		c.setRP((op>>4)&3, true, c.readImmediateWord())
		return 12
	case 0xF9: // LD SP,HL
		c.sp = c.getHL()
		return 8
	case 0x08: // LD (nn),SP
		addr := c.readImmediateWord()
		c.memory.Write(addr, uint8(c.sp))
		c.memory.Write(addr+1, uint8(c.sp>>8))
		return 20

	case 0x02: // LD (BC),A
		c.memory.Write(c.getBC(), c.a)
		return 8
	case 0x12: // LD (DE),A
		c.memory.Write(c.getDE(), c.a)
		return 8
	case 0x0A: // LD A,(BC)
		c.a = c.memory.Read(c.getBC())
		return 8
	case 0x1A: // LD A,(DE)
		c.a = c.memory.Read(c.getDE())
		return 8
	case 0x22: // LD (HL+),A
		c.memory.Write(c.getHL(), c.a)
		c.setHL(c.getHL() + 1)
		return 8
	case 0x32: // LD (HL-),A
		c.memory.Write(c.getHL(), c.a)
		c.setHL(c.getHL() - 1)
		return 8
	case 0x2A: // LD A,(HL+)
		c.a = c.memory.Read(c.getHL())
		c.setHL(c.getHL() + 1)
		return 8
	case 0x3A: // LD A,(HL-)
		c.a = c.memory.Read(c.getHL())
		c.setHL(c.getHL() - 1)
		return 8
	case 0xE0: // LDH (n),A
		c.memory.Write(0xFF00|uint16(c.readImmediate()), c.a)
		return 12
	case 0xF0: // LDH A,(n)
		c.a = c.memory.Read(0xFF00 | uint16(c.readImmediate()))
		return 12
	case 0xE2: // LD (C),A
		c.memory.Write(0xFF00|uint16(c.c), c.a)
		return 8
	case 0xF2: // LD A,(C)
		c.a = c.memory.Read(0xFF00 | uint16(c.c))
		return 8
	case 0xEA: // LD (nn),A
		c.memory.Write(c.readImmediateWord(), c.a)
		return 16
	case 0xFA: // LD A,(nn)
		c.a = c.memory.Read(c.readImmediateWord())
		return 16

	case 0x03, 0x13, 0x23, 0x33: // INC rr
		idx := (op >> 4) & 3
		c.setRP(idx, true, c.getRP(idx, true)+1)
		return 8
	case 0x0B, 0x1B, 0x2B, 0x3B: // DEC rr
		idx := (op >> 4) & 3
		c.setRP(idx, true, c.getRP(idx, true)-1)
		return 8
	case 0x09, 0x19, 0x29, 0x39: // ADD HL,rr
		c.addToHL(c.getRP((op>>4)&3, true))
		return 8
	case 0xE8: // ADD SP,n
		c.sp = c.addToSP(c.readSignedImmediate())
		return 16
	case 0xF8: // LD HL,SP+n
		c.setHL(c.addToSP(c.readSignedImmediate()))
		return 12

	case 0x04, 0x0C, 0x14, 0x1C, 0x24, 0x2C, 0x34, 0x3C: // INC r
		idx := (op >> 3) & 7
		if idx == 6 {
			value := c.memory.Read(c.getHL())
			c.inc(&value)
			c.memory.Write(c.getHL(), value)
			return 12
		}
		c.inc(c.r8(idx))
		return 4
	case 0x05, 0x0D, 0x15, 0x1D, 0x25, 0x2D, 0x35, 0x3D: // DEC r
		idx := (op >> 3) & 7
		if idx == 6 {
			value := c.memory.Read(c.getHL())
			c.dec(&value)
			c.memory.Write(c.getHL(), value)
			return 12
		}
		c.dec(c.r8(idx))
		return 4
	case 0x06, 0x0E, 0x16, 0x1E, 0x26, 0x2E, 0x36, 0x3E: // LD r,n
		idx := (op >> 3) & 7
		c.writeReg8(idx, c.readImmediate())
		if idx == 6 {
			return 12
		}
		return 8

	case 0x07: // RLCA
		c.rlc(&c.a)
		c.resetFlag(zeroFlag)
		return 4
	case 0x0F: // RRCA
		c.rrc(&c.a)
		c.resetFlag(zeroFlag)
		return 4
	case 0x17: // RLA
		c.rl(&c.a)
		c.resetFlag(zeroFlag)
		return 4
	case 0x1F: // RRA
		c.rr(&c.a)
		c.resetFlag(zeroFlag)
		return 4

	case 0x18: // JR n
		c.jr()
		return 12
	case 0x20, 0x28, 0x30, 0x38: // JR cc,n
		if c.condition((op >> 3) & 3) {
			c.jr()
			return 12
		}
		c.readImmediate()
		return 8
	case 0xC3: // JP nn
		c.pc = c.readImmediateWord()
		return 16
	case 0xE9: // JP (HL)
		c.pc = c.getHL()
		return 4
	case 0xC2, 0xCA, 0xD2, 0xDA: // JP cc,nn
		target := c.readImmediateWord()
		if c.condition((op >> 3) & 3) {
			c.pc = target
			return 16
		}
		return 12
	case 0xCD: // CALL nn
		target := c.readImmediateWord()
		c.pushStack(c.pc)
		c.pc = target
		return 24
	case 0xC4, 0xCC, 0xD4, 0xDC: // CALL cc,nn
		target := c.readImmediateWord()
		if c.condition((op >> 3) & 3) {
			c.pushStack(c.pc)
			c.pc = target
			return 24
		}
		return 12
	case 0xC9: // RET
		c.pc = c.popStack()
		return 16
	case 0xD9: // RETI
		c.pc = c.popStack()
		c.ime = imeEnabled
		return 16
	case 0xC0, 0xC8, 0xD0, 0xD8: // RET cc
		if c.condition((op >> 3) & 3) {
			c.pc = c.popStack()
			return 20
		}
		return 8
	case 0xC7, 0xCF, 0xD7, 0xDF, 0xE7, 0xEF, 0xF7, 0xFF: // RST n
		c.pushStack(c.pc)
		c.pc = uint16(op & 0x38)
		return 16

	case 0xC1, 0xD1, 0xE1, 0xF1: // POP rr
		c.setRP((op>>4)&3, false, c.popStack())
		return 12
	case 0xC5, 0xD5, 0xE5, 0xF5: // PUSH rr
		c.pushStack(c.getRP((op>>4)&3, false))
		return 16

	case 0xC6, 0xCE, 0xD6, 0xDE, 0xE6, 0xEE, 0xF6, 0xFE: // ALU A,n
		c.executeALUBlock((op>>3)&7, c.readImmediate(), false)
		return 8

	case 0x27: // DAA
		c.daa()
		return 4
	case 0x2F: // CPL
		c.cpl()
		return 4
	case 0x37: // SCF
		c.scf()
		return 4
	case 0x3F: // CCF
		c.ccf()
		return 4
	}

	return c.crash("unhandled opcode 0x%02X", op)
}

// executeALUBlock implements the 8 ALU-A operations addressed by bits 3-5
// of 0x80-0xBF and, with an immediate operand, 0xC6/CE/D6/DE/E6/EE/F6/FE.
// usesHL reports whether the operand came from (HL), which costs 8 cycles
// instead of 4; callers using an immediate operand ignore the returned
// count since their total is fixed at 8.
func (c *CPU) executeALUBlock(op uint8, value uint8, usesHL bool) int {
	switch op {
	case 0:
		c.addToA(value)
	case 1:
		c.adc(value)
	case 2:
		c.sub(value)
	case 3:
		c.sbc(value)
	case 4:
		c.and(value)
	case 5:
		c.xor(value)
	case 6:
		c.or(value)
	case 7:
		c.cp(value)
	}

	if usesHL {
		return 8
	}
	return 4
}

// executeCB runs one instruction from the CB-prefixed space: 8 bit-shift
// operations over the 8 register operands (0x00-0x3F), then BIT/RES/SET
// over the 8 bit indices and 8 register operands (0x40-0xFF).
func (c *CPU) executeCB(op uint8) int {
	regIdx := op & 7
	opType := (op >> 3) & 7
	bitIdx := (op >> 3) & 7

	isHL := regIdx == 6

	switch {
	case op < 0x40:
		value := c.readReg8(regIdx)
		switch opType {
		case 0:
			c.rlc(&value)
		case 1:
			c.rrc(&value)
		case 2:
			c.rl(&value)
		case 3:
			c.rr(&value)
		case 4:
			c.sla(&value)
		case 5:
			c.sra(&value)
		case 6:
			c.swap(&value)
		case 7:
			c.srl(&value)
		}
		c.writeReg8(regIdx, value)
		if isHL {
			return 16
		}
		return 8

	case op < 0x80: // BIT b,r
		c.bit(bitIdx, c.readReg8(regIdx))
		if isHL {
			return 12
		}
		return 8

	case op < 0xC0: // RES b,r
		value := c.readReg8(regIdx)
		c.res(bitIdx, &value)
		c.writeReg8(regIdx, value)
		if isHL {
			return 16
		}
		return 8

	default: // SET b,r
		value := c.readReg8(regIdx)
		c.set(bitIdx, &value)
		c.writeReg8(regIdx, value)
		if isHL {
			return 16
		}
		return 8
	}
}
