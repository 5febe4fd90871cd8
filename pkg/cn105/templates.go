// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cn105

// Reply templates. The trailing checksum byte is recomputed before sending.
var (
	connectAckTemplate = []byte{StartByte, CmdConnectAck, Header2, Header3, 0x01, 0x00, 0x54}
	configAckTemplate  = []byte{
		StartByte, CmdConfigAck, Header2, Header3, StandardPayloadLen,
		0xC9, 0x03, 0x00, 0x20, 0x00, 0x14, 0x07, 0x75, 0x0C, 0x05, 0xA0, 0xBE, 0x94, 0xBE, 0xA0, 0xBE,
		0xA9,
	}
	controlAckTemplate = standardTemplate(CmdControlAck)
	infoReportTemplate = standardTemplate(CmdInfoReport)
)

func standardTemplate(cmd byte) []byte {
	t := make([]byte, StandardPayloadLen+FrameOverhead)
	t[OffsetStart] = StartByte
	t[OffsetCommand] = cmd
	t[OffsetHeader2] = Header2
	t[OffsetHeader3] = Header3
	t[OffsetPayloadLen] = StandardPayloadLen
	t[len(t)-1] = Checksum(t, len(t))
	return t
}

// Template returns a copy of the reply template for a reply command,
// or nil if the command has no template
func Template(cmd byte) []byte {
	var t []byte
	switch cmd {
	case CmdConnectAck:
		t = connectAckTemplate
	case CmdConfigAck:
		t = configAckTemplate
	case CmdControlAck:
		t = controlAckTemplate
	case CmdInfoReport:
		t = infoReportTemplate
	default:
		return nil
	}
	return append([]byte(nil), t...)
}

// BuildRequest assembles a frame with a standard header and checksum
func BuildRequest(cmd byte, payload []byte) *Frame {
	data := make([]byte, 0, len(payload)+FrameOverhead)
	data = append(data, StartByte, cmd, Header2, Header3, byte(len(payload)))
	data = append(data, payload...)
	data = append(data, 0)
	f := NewFrame(data)
	f.AddChecksum()
	return f
}
