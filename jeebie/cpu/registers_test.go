package cpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/aidanmarlow/pocketcore/jeebie/memory"
)

func TestCPU_flags(t *testing.T) {
	mmu := memory.New()
	cpu := New(mmu)

	cpu.f = 0
	cpu.setFlag(zeroFlag)
	assert.True(t, cpu.isSetFlag(zeroFlag))
	assert.False(t, cpu.isSetFlag(carryFlag))

	cpu.resetFlag(zeroFlag)
	assert.False(t, cpu.isSetFlag(zeroFlag))

	cpu.setFlagToCondition(halfCarryFlag, true)
	assert.True(t, cpu.isSetFlag(halfCarryFlag))
	assert.Equal(t, uint8(1), cpu.flagToBit(halfCarryFlag))

	cpu.setFlagToCondition(halfCarryFlag, false)
	assert.Equal(t, uint8(0), cpu.flagToBit(halfCarryFlag))
}

func TestCPU_registerPairs(t *testing.T) {
	mmu := memory.New()
	cpu := New(mmu)

	cpu.setAF(0xBEEF)
	assert.Equal(t, uint8(0xBE), cpu.a)
	assert.Equal(t, uint8(0xE0), cpu.f, "the low nibble of F is always zero")
	assert.Equal(t, uint16(0xBEE0), cpu.getAF())

	cpu.setBC(0x1234)
	assert.Equal(t, uint8(0x12), cpu.b)
	assert.Equal(t, uint8(0x34), cpu.c)
	assert.Equal(t, uint16(0x1234), cpu.getBC())

	cpu.setDE(0xABCD)
	assert.Equal(t, uint16(0xABCD), cpu.getDE())

	cpu.setHL(0xCAFE)
	assert.Equal(t, uint16(0xCAFE), cpu.getHL())
}

func TestCPU_r8(t *testing.T) {
	mmu := memory.New()
	cpu := New(mmu)

	cpu.b, cpu.c, cpu.d, cpu.e, cpu.h, cpu.l, cpu.a = 1, 2, 3, 4, 5, 6, 7

	assert.Equal(t, &cpu.b, cpu.r8(0))
	assert.Equal(t, &cpu.c, cpu.r8(1))
	assert.Equal(t, &cpu.d, cpu.r8(2))
	assert.Equal(t, &cpu.e, cpu.r8(3))
	assert.Equal(t, &cpu.h, cpu.r8(4))
	assert.Equal(t, &cpu.l, cpu.r8(5))
	assert.Nil(t, cpu.r8(6), "index 6 is (HL), callers must special-case it")
	assert.Equal(t, &cpu.a, cpu.r8(7))
}
