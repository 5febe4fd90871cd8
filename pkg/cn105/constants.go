// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package cn105 implements the heat-pump side of the CN105 wired remote protocol.
//
// CN105 is the binary serial protocol spoken between a wired remote controller and
// a heat-pump indoor unit. This package provides frame decoding, checksum handling,
// the wire lookup tables, the fixed reply templates and frame formatting.
package cn105

// Protocol framing bytes
const (
	StartByte = 0xFC
	Header2   = 0x01
	Header3   = 0x30
)

// Frame size limits
const (
	MaxFrameSize       = 256
	HeaderSize         = 5
	FrameOverhead      = HeaderSize + 1 // header + checksum
	ProvisionalLength  = 22             // longest known frame
	StandardPayloadLen = 0x10
)

// Header offsets
const (
	OffsetStart      = 0
	OffsetCommand    = 1
	OffsetHeader2    = 2
	OffsetHeader3    = 3
	OffsetPayloadLen = 4
)

// Commands sent by the remote
const (
	CmdSetSettings   = 0x41
	CmdInfoRequest   = 0x42
	CmdConnect       = 0x5A
	CmdConfigRequest = 0x5B
)

// Replies sent by the heat pump
const (
	CmdControlAck = 0x61
	CmdInfoReport = 0x62
	CmdConnectAck = 0x7A
	CmdConfigAck  = 0x7B
)

// Set-settings (0x41) payload offsets
const (
	OffsetSetFlags1   = 6
	OffsetSetFlags2   = 7
	OffsetSetPower    = 8
	OffsetSetMode     = 9
	OffsetSetTempCode = 10
	OffsetSetFan      = 11
	OffsetSetVane     = 12
	OffsetSetWideVane = 18
	OffsetSetTemp     = 19
)

// Set-settings flag bits
const (
	Flag1Power = 0x01
	Flag1Mode  = 0x02
	Flag1Temp  = 0x04
	Flag1Fan   = 0x08
	Flag1Vane  = 0x10

	Flag2WideVane = 0x01
)

// Keep-alive signature carried at offsets 4..7 of a 0x41 frame
var KeepAliveSignature = [4]byte{0x10, 0xA7, 0x34, 0x82}

// Info request/report offsets
const (
	OffsetInfoSelector = 5

	OffsetInfoPower     = 8
	OffsetInfoMode      = 9
	OffsetInfoTempCode  = 10
	OffsetInfoFan       = 11
	OffsetInfoVane      = 12
	OffsetInfoWideVane  = 14
	OffsetInfoTemp      = 16
	OffsetInfoRoomCode  = 8
	OffsetInfoRoomTemp  = 11
	OffsetInfoSentinel  = 9
	OffsetInfoTimerMode = 8
)

// Info selectors (request byte 5)
const (
	InfoSettings = 0x02
	InfoRoomTemp = 0x03
	InfoUnknown4 = 0x04
	InfoTimers   = 0x05
	InfoStatus   = 0x06
	InfoStandby  = 0x09
)

// Info sentinel values
const (
	InfoUnknown4Sentinel = 0x80
	InfoStandbySentinel  = 0x01
)

// Half-degree temperature encoding used at OffsetSetTemp, OffsetInfoTemp and OffsetInfoRoomTemp
const (
	TempEncodedFlag = 0x80
	TempEncodedMask = 0x7F
)

// Minimum frame lengths needed before a handler reads its offsets
const (
	MinSetSettingsLen = OffsetSetTemp + 2
	MinInfoRequestLen = OffsetInfoSelector + 2
	MinKeepAliveLen   = OffsetSetFlags2 + 1
)
