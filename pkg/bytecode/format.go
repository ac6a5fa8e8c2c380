// This file implements binary serialization of a Program to the
// driver's on-disk bytecode format, so a script can be pre-compiled and
// loaded without re-parsing, per spec.md §6 (External Interfaces,
// "compiled-program wire format").
//
// Binary layout:
//
//	Header:   magic uint32, version uint32, flags uint32
//	Filename: string
//	Source:   string
//	Constants: count uint32, then per entry: kind byte + payload
//	Functions: count uint32, then per entry: name string, numParams int32,
//	           numLocals int32, entryPC int32
//	Globals:   count uint32, then per entry: name string, typeName string
//	CallSites: count uint32, then per entry: name string, numArgs int32
//	Lines:     count uint32, then per entry: pc int32, line int32
//	Code:      count uint32, then per entry: opcode byte, operand int32
//
// The magic number and version header follow the same pattern the
// teacher's own .sg format uses, so that loading a truncated or
// unrelated file fails fast with a clear error instead of a panic deep
// inside decoding.
package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// MagicNumber identifies a compiled-program file.
	MagicNumber uint32 = 0x414D4C50 // "AMLP"

	// FormatVersion is the current on-disk program format version.
	FormatVersion uint32 = 1

	formatFlags uint32 = 0
)

// Encode writes p to w in the binary program format.
func Encode(p *Program, w io.Writer) error {
	if err := writeHeader(w); err != nil {
		return fmt.Errorf("bytecode: write header: %w", err)
	}
	if err := writeString(w, p.Filename); err != nil {
		return fmt.Errorf("bytecode: write filename: %w", err)
	}
	if err := writeString(w, p.Source); err != nil {
		return fmt.Errorf("bytecode: write source: %w", err)
	}
	if err := writeConstants(w, p.Constants); err != nil {
		return fmt.Errorf("bytecode: write constants: %w", err)
	}
	if err := writeFunctions(w, p.Functions); err != nil {
		return fmt.Errorf("bytecode: write functions: %w", err)
	}
	if err := writeGlobals(w, p.Globals); err != nil {
		return fmt.Errorf("bytecode: write globals: %w", err)
	}
	if err := writeCallSites(w, p.CallSites); err != nil {
		return fmt.Errorf("bytecode: write call sites: %w", err)
	}
	if err := writeLines(w, p.Lines); err != nil {
		return fmt.Errorf("bytecode: write lines: %w", err)
	}
	if err := writeCode(w, p.Code); err != nil {
		return fmt.Errorf("bytecode: write code: %w", err)
	}
	return nil
}

// Decode reads a Program back from r.
func Decode(r io.Reader) (*Program, error) {
	version, err := readHeader(r)
	if err != nil {
		return nil, fmt.Errorf("bytecode: read header: %w", err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("bytecode: unsupported program version %d (expected %d)", version, FormatVersion)
	}

	p := &Program{}
	if p.Filename, err = readString(r); err != nil {
		return nil, fmt.Errorf("bytecode: read filename: %w", err)
	}
	if p.Source, err = readString(r); err != nil {
		return nil, fmt.Errorf("bytecode: read source: %w", err)
	}
	if p.Constants, err = readConstants(r); err != nil {
		return nil, fmt.Errorf("bytecode: read constants: %w", err)
	}
	if p.Functions, err = readFunctions(r); err != nil {
		return nil, fmt.Errorf("bytecode: read functions: %w", err)
	}
	if p.Globals, err = readGlobals(r); err != nil {
		return nil, fmt.Errorf("bytecode: read globals: %w", err)
	}
	if p.CallSites, err = readCallSites(r); err != nil {
		return nil, fmt.Errorf("bytecode: read call sites: %w", err)
	}
	if p.Lines, err = readLines(r); err != nil {
		return nil, fmt.Errorf("bytecode: read lines: %w", err)
	}
	if p.Code, err = readCode(r); err != nil {
		return nil, fmt.Errorf("bytecode: read code: %w", err)
	}
	return p, nil
}

func writeHeader(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, MagicNumber); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, FormatVersion); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, formatFlags)
}

func readHeader(r io.Reader) (uint32, error) {
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return 0, err
	}
	if magic != MagicNumber {
		return 0, fmt.Errorf("invalid magic number 0x%08X (expected 0x%08X)", magic, MagicNumber)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return 0, err
	}
	var flags uint32
	if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
		return 0, err
	}
	return version, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeConstants(w io.Writer, cs []Constant) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(cs))); err != nil {
		return err
	}
	for _, c := range cs {
		if err := binary.Write(w, binary.LittleEndian, byte(c.Kind)); err != nil {
			return err
		}
		switch c.Kind {
		case ConstInt:
			if err := binary.Write(w, binary.LittleEndian, c.I); err != nil {
				return err
			}
		case ConstFloat:
			if err := binary.Write(w, binary.LittleEndian, c.F); err != nil {
				return err
			}
		case ConstString:
			if err := writeString(w, c.S); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown constant kind %d", c.Kind)
		}
	}
	return nil
}

func readConstants(r io.Reader) ([]Constant, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	out := make([]Constant, count)
	for i := range out {
		var kind byte
		if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
			return nil, err
		}
		c := Constant{Kind: ConstKind(kind)}
		switch c.Kind {
		case ConstInt:
			if err := binary.Read(r, binary.LittleEndian, &c.I); err != nil {
				return nil, err
			}
		case ConstFloat:
			if err := binary.Read(r, binary.LittleEndian, &c.F); err != nil {
				return nil, err
			}
		case ConstString:
			s, err := readString(r)
			if err != nil {
				return nil, err
			}
			c.S = s
		default:
			return nil, fmt.Errorf("unknown constant kind %d", kind)
		}
		out[i] = c
	}
	return out, nil
}

func writeFunctions(w io.Writer, fs []FunctionEntry) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(fs))); err != nil {
		return err
	}
	for _, f := range fs {
		if err := writeString(w, f.Name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(f.NumParams)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(f.NumLocals)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(f.EntryPC)); err != nil {
			return err
		}
	}
	return nil
}

func readFunctions(r io.Reader) ([]FunctionEntry, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	out := make([]FunctionEntry, count)
	for i := range out {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		var numParams, numLocals, entryPC int32
		if err := binary.Read(r, binary.LittleEndian, &numParams); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &numLocals); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &entryPC); err != nil {
			return nil, err
		}
		out[i] = FunctionEntry{Name: name, NumParams: int(numParams), NumLocals: int(numLocals), EntryPC: int(entryPC)}
	}
	return out, nil
}

func writeGlobals(w io.Writer, gs []GlobalDescriptor) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(gs))); err != nil {
		return err
	}
	for _, g := range gs {
		if err := writeString(w, g.Name); err != nil {
			return err
		}
		if err := writeString(w, g.TypeName); err != nil {
			return err
		}
	}
	return nil
}

func readGlobals(r io.Reader) ([]GlobalDescriptor, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	out := make([]GlobalDescriptor, count)
	for i := range out {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		typeName, err := readString(r)
		if err != nil {
			return nil, err
		}
		out[i] = GlobalDescriptor{Name: name, TypeName: typeName}
	}
	return out, nil
}

func writeCallSites(w io.Writer, cs []CallSite) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(cs))); err != nil {
		return err
	}
	for _, c := range cs {
		if err := writeString(w, c.Name); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(c.NumArgs)); err != nil {
			return err
		}
	}
	return nil
}

func readCallSites(r io.Reader) ([]CallSite, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	out := make([]CallSite, count)
	for i := range out {
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		var numArgs int32
		if err := binary.Read(r, binary.LittleEndian, &numArgs); err != nil {
			return nil, err
		}
		out[i] = CallSite{Name: name, NumArgs: int(numArgs)}
	}
	return out, nil
}

func writeLines(w io.Writer, ls []LineEntry) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(ls))); err != nil {
		return err
	}
	for _, l := range ls {
		if err := binary.Write(w, binary.LittleEndian, int32(l.PC)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, int32(l.Line)); err != nil {
			return err
		}
	}
	return nil
}

func readLines(r io.Reader) ([]LineEntry, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	out := make([]LineEntry, count)
	for i := range out {
		var pc, line int32
		if err := binary.Read(r, binary.LittleEndian, &pc); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &line); err != nil {
			return nil, err
		}
		out[i] = LineEntry{PC: int(pc), Line: int(line)}
	}
	return out, nil
}

func writeCode(w io.Writer, code []Instruction) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(code))); err != nil {
		return err
	}
	for _, instr := range code {
		if err := binary.Write(w, binary.LittleEndian, byte(instr.Op)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, instr.Operand); err != nil {
			return err
		}
	}
	return nil
}

func readCode(r io.Reader) ([]Instruction, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	out := make([]Instruction, count)
	for i := range out {
		var op byte
		if err := binary.Read(r, binary.LittleEndian, &op); err != nil {
			return nil, err
		}
		var operand int32
		if err := binary.Read(r, binary.LittleEndian, &operand); err != nil {
			return nil, err
		}
		out[i] = Instruction{Op: Opcode(op), Operand: operand}
	}
	return out, nil
}
