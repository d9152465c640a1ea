// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package i2cbus

import (
	"fmt"
	"strings"
)

// OpKind identifies one step of a transaction script.
type OpKind uint8

const (
	OpStart OpKind = iota
	OpRepeatedStart
	OpAddress
	OpWrite
	OpRead
	OpStop
)

func (k OpKind) String() string {
	switch k {
	case OpStart:
		return "S"
	case OpRepeatedStart:
		return "Sr"
	case OpAddress:
		return "A"
	case OpWrite:
		return "W"
	case OpRead:
		return "R"
	case OpStop:
		return "P"
	default:
		return fmt.Sprintf("OpKind(%d)", uint8(k))
	}
}

// Op is a single step of a Script.
type Op struct {
	Kind OpKind
	// Data is the address byte for OpAddress, the payload for OpWrite and
	// the destination buffer for OpRead.
	Data []byte
	// NACKLast is only meaningful for OpRead. The last byte read is not
	// acknowledged, which tells the device the read is over.
	NACKLast bool
}

// Script is an ordered list of I²C bus steps making up one transaction.
//
// The builder methods append to the script and return it so calls can be
// chained:
//
//	s := new(Script).Start().Address(0x4e).Write([]byte{0x08}).Stop()
type Script struct {
	Ops []Op
}

// Start appends a start condition.
func (s *Script) Start() *Script {
	s.Ops = append(s.Ops, Op{Kind: OpStart})
	return s
}

// RepeatedStart appends a start condition that is not preceded by a stop.
func (s *Script) RepeatedStart() *Script {
	s.Ops = append(s.Ops, Op{Kind: OpRepeatedStart})
	return s
}

// Address appends an address byte. The byte is the 7-bit address shifted
// left by one with the direction in bit 0.
func (s *Script) Address(b byte) *Script {
	s.Ops = append(s.Ops, Op{Kind: OpAddress, Data: []byte{b}})
	return s
}

// Write appends data bytes to transmit.
func (s *Script) Write(p []byte) *Script {
	s.Ops = append(s.Ops, Op{Kind: OpWrite, Data: p})
	return s
}

// Read appends a read of len(p) bytes into p.
func (s *Script) Read(p []byte, nackLast bool) *Script {
	s.Ops = append(s.Ops, Op{Kind: OpRead, Data: p, NACKLast: nackLast})
	return s
}

// Stop appends a stop condition.
func (s *Script) Stop() *Script {
	s.Ops = append(s.Ops, Op{Kind: OpStop})
	return s
}

// String renders the script in a compact form, e.g.
// "S A[4e] W[00 01] Sr A[4f] R[2,nack] P".
func (s *Script) String() string {
	var sb strings.Builder
	for ix, op := range s.Ops {
		if ix > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(op.Kind.String())
		switch op.Kind {
		case OpAddress, OpWrite:
			sb.WriteByte('[')
			for j, b := range op.Data {
				if j > 0 {
					sb.WriteByte(' ')
				}
				fmt.Fprintf(&sb, "%02x", b)
			}
			sb.WriteByte(']')
		case OpRead:
			fmt.Fprintf(&sb, "[%d", len(op.Data))
			if op.NACKLast {
				sb.WriteString(",nack")
			}
			sb.WriteByte(']')
		}
	}
	return sb.String()
}
