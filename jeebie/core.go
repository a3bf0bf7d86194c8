package jeebie

import (
	"fmt"
	"io/ioutil"
	"log/slog"
	"sync"

	"github.com/aidanmarlow/pocketcore/jeebie/addr"
	"github.com/aidanmarlow/pocketcore/jeebie/cpu"
	"github.com/aidanmarlow/pocketcore/jeebie/debug"
	"github.com/aidanmarlow/pocketcore/jeebie/memory"
	"github.com/aidanmarlow/pocketcore/jeebie/video"
)

// DebuggerState represents the current debugger mode
type DebuggerState int

const (
	DebuggerRunning   DebuggerState = iota // Normal execution
	DebuggerPaused                         // Paused, waiting for commands
	DebuggerStep                           // Execute one instruction then pause
	DebuggerStepFrame                      // Execute one frame then pause
)

// Emulator is an alias for DMG kept for callers written against the older
// name (main.go, render/terminal.go, cmd/jeebie).
type Emulator = DMG

// DMG represents the root struct and entry point for running the emulation
type DMG struct {
	cpu *cpu.CPU
	gpu *video.GPU
	mem *memory.MMU

	// Debugger state
	debuggerState    DebuggerState
	debuggerMutex    sync.RWMutex
	stepRequested    bool
	frameRequested   bool
	instructionCount uint64
	frameCount       uint64
}

func (e *Emulator) init(mem *memory.MMU) {
	e.cpu = cpu.New(mem)
	e.gpu = video.NewGpu(mem)
	e.mem = mem

	mem.SetTimerSeed(0xABCC)
}

// New creates a new emulator instance
func New() *Emulator {
	e := &Emulator{}
	e.init(memory.NewWithCartridge(memory.NewCartridge()))

	return e
}

// NewWithFile creates a new emulator instance and loads the file specified into it.
func NewWithFile(path string) (*Emulator, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	slog.Debug("Loaded ROM data", "size", len(data))

	e := &Emulator{}
	e.init(memory.NewWithCartridge(memory.NewCartridgeWithData(data)))

	return e, nil
}

func (e *Emulator) RunUntilFrame() {
	e.debuggerMutex.RLock()
	state := e.debuggerState
	e.debuggerMutex.RUnlock()

	// Handle paused state - don't execute anything
	if state == DebuggerPaused {
		return
	}

	// Handle step instruction - execute one instruction then pause
	if state == DebuggerStep {
		e.debuggerMutex.Lock()
		if e.stepRequested {
			e.stepRequested = false
			e.debuggerMutex.Unlock()

			// Execute one CPU instruction
			oldPC := e.cpu.GetPC()
			cycles := e.cpu.Tick()
			e.mem.Tick(cycles)
			e.gpu.Tick(cycles)
			e.instructionCount++

			// Log the executed instruction
			slog.Debug("Step executed", "pc", fmt.Sprintf("0x%04X", oldPC), "new_pc", fmt.Sprintf("0x%04X", e.cpu.GetPC()))

			// Pause after execution
			e.SetDebuggerState(DebuggerPaused)
		} else {
			e.debuggerMutex.Unlock()
		}
		return
	}

	// Handle step frame - execute one frame then pause
	if state == DebuggerStepFrame {
		e.debuggerMutex.Lock()
		frameRequested := e.frameRequested
		if frameRequested {
			e.frameRequested = false
		}
		e.debuggerMutex.Unlock()

		if frameRequested {
			// Execute one full frame
			total := 0
			for {
				cycles := e.cpu.Tick()
				e.mem.Tick(cycles)
				e.gpu.Tick(cycles)
				e.instructionCount++
				total += cycles

				if total >= 70224 {
					break
				}
			}
			e.frameCount++
			slog.Debug("Frame step completed", "frame", e.frameCount, "instructions", e.instructionCount)
			e.SetDebuggerState(DebuggerPaused)
		}
		return
	}

	// Normal execution (DebuggerRunning)
	total := 0
	for {
		cycles := e.cpu.Tick()
		e.mem.Tick(cycles)
		e.gpu.Tick(cycles)
		e.instructionCount++

		total += cycles

		if total >= 70224 {
			e.frameCount++
			// Log every 60 frames (once per second at 60 FPS) only when running
			if e.frameCount%60 == 0 {
				slog.Debug("Frame completed", "frame", e.frameCount, "pc", fmt.Sprintf("0x%04X", e.cpu.GetPC()))
			}
			return
		}
	}
}

func (e *Emulator) GetCurrentFrame() *video.FrameBuffer {
	return e.gpu.GetFrameBuffer()
}

func (e *Emulator) HandleKeyPress(key memory.JoypadKey) {
	e.mem.HandleKeyPress(key)
}

func (e *Emulator) HandleKeyRelease(key memory.JoypadKey) {
	e.mem.HandleKeyRelease(key)
}

func (e *Emulator) GetCPU() *cpu.CPU {
	return e.cpu
}

// Debugger control methods
func (e *Emulator) SetDebuggerState(state DebuggerState) {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.debuggerState = state
	slog.Debug("Debugger state changed", "state", state)
}

func (e *Emulator) GetDebuggerState() DebuggerState {
	e.debuggerMutex.RLock()
	defer e.debuggerMutex.RUnlock()
	return e.debuggerState
}

func (e *Emulator) DebuggerPause() {
	e.SetDebuggerState(DebuggerPaused)
	slog.Info("Emulator paused")
}

func (e *Emulator) DebuggerResume() {
	e.SetDebuggerState(DebuggerRunning)
	slog.Info("Emulator resumed")
}

func (e *Emulator) DebuggerStepInstruction() {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.stepRequested = true
	e.debuggerState = DebuggerStep
	slog.Info("Step instruction requested")
}

func (e *Emulator) DebuggerStepFrame() {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.frameRequested = true
	e.debuggerState = DebuggerStepFrame
	slog.Info("Step frame requested")
}

func (e *Emulator) GetInstructionCount() uint64 {
	return e.instructionCount
}

func (e *Emulator) GetFrameCount() uint64 {
	return e.frameCount
}

func (e *Emulator) GetMMU() *memory.MMU {
	return e.mem
}

// ExtractDebugData gathers a point-in-time snapshot of CPU, memory, OAM and
// VRAM state for debug backends (terminal, SDL2). Returns nil if the
// emulator has not been initialized with init() yet.
func (e *Emulator) ExtractDebugData() *debug.CompleteDebugData {
	if e.cpu == nil || e.mem == nil {
		return nil
	}

	a, f, b, c, d, ee, h, l, sp, pc, ime := e.cpu.Registers()

	const snapshotSize = 64
	start := pc
	if uint32(start)+snapshotSize > 0x10000 {
		start = uint16(0x10000 - snapshotSize)
	}
	size := snapshotSize
	if uint32(start)+uint32(size) > 0x10000 {
		size = int(0x10000 - uint32(start))
	}
	snapshotBytes := make([]uint8, size)
	for i := range snapshotBytes {
		snapshotBytes[i] = e.mem.Read(start + uint16(i))
	}

	currentLine := int(e.mem.Read(addr.LY))
	lcdc := e.mem.Read(addr.LCDC)
	spriteHeight := 8
	if lcdc&0x04 != 0 {
		spriteHeight = 16
	}

	return &debug.CompleteDebugData{
		OAM:  debug.ExtractOAMData(e.mem, currentLine, spriteHeight),
		VRAM: debug.ExtractVRAMData(e.mem),
		CPU: &debug.CPUState{
			A: a, F: f, B: b, C: c, D: d, E: ee, H: h, L: l,
			SP: sp, PC: pc, IME: ime,
		},
		Memory:          &debug.MemorySnapshot{StartAddr: start, Bytes: snapshotBytes},
		DebuggerState:   debug.DebuggerState(e.GetDebuggerState()),
		InterruptEnable: e.mem.Read(addr.IE),
		InterruptFlags:  e.mem.Read(addr.IF),
	}
}

