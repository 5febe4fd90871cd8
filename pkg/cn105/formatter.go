// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cn105

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp().Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d: %s\n",
		timestamp, FormatCommand(f.Command()), f.Command(), f.Len(), HexDump(f.Bytes()))
	return result + FormatPayload(f)
}

// HexDump renders bytes in groups of four
func HexDump(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 && i%4 == 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02x", b)
	}
	return sb.String()
}

// FormatCommand returns the human-readable name for a command byte
func FormatCommand(cmd byte) string {
	switch cmd {
	case CmdSetSettings:
		return "SET_SETTINGS"
	case CmdInfoRequest:
		return "INFO_REQUEST"
	case CmdConnect:
		return "CONNECT"
	case CmdConfigRequest:
		return "CONFIG_REQUEST"
	case CmdControlAck:
		return "CONTROL_ACK"
	case CmdInfoReport:
		return "INFO_REPORT"
	case CmdConnectAck:
		return "CONNECT_ACK"
	case CmdConfigAck:
		return "CONFIG_ACK"
	default:
		return "UNKNOWN"
	}
}

// FormatSelector returns the human-readable name for an info selector
func FormatSelector(sel byte) string {
	switch sel {
	case InfoSettings:
		return "SETTINGS"
	case InfoRoomTemp:
		return "ROOM_TEMP"
	case InfoUnknown4:
		return "UNKNOWN_04"
	case InfoTimers:
		return "TIMERS"
	case InfoStatus:
		return "STATUS"
	case InfoStandby:
		return "STANDBY"
	default:
		return "UNKNOWN"
	}
}

// IsKeepAlive reports whether a set-settings frame carries the keep-alive signature
func IsKeepAlive(f *Frame) bool {
	if f.Command() != CmdSetSettings || f.Len() < MinKeepAliveLen {
		return false
	}
	for i, b := range KeepAliveSignature {
		if f.At(OffsetPayloadLen+i) != b {
			return false
		}
	}
	return true
}

// DecodeTemp decodes the half-degree temperature byte into whole degrees
func DecodeTemp(b byte) byte {
	return (b & TempEncodedMask) >> 1
}

// EncodeTemp encodes whole degrees into the half-degree temperature byte
func EncodeTemp(t byte) byte {
	return (t << 1) | TempEncodedFlag
}

// FormatPayload decodes the payload fields of known frames
func FormatPayload(f *Frame) string {
	switch f.Command() {
	case CmdSetSettings:
		return formatSetSettings(f)
	case CmdInfoRequest:
		if f.Len() < MinInfoRequestLen {
			return ""
		}
		sel := f.At(OffsetInfoSelector)
		return fmt.Sprintf("  Request: %s (0x%02X)\n", FormatSelector(sel), sel)
	case CmdInfoReport:
		return formatInfoReport(f)
	}
	return ""
}

func formatSetSettings(f *Frame) string {
	if IsKeepAlive(f) {
		return "  Keep-alive\n"
	}
	if f.Len() < MinSetSettingsLen {
		return fmt.Sprintf("  Short frame (%d bytes)\n", f.Len())
	}

	flags1 := f.At(OffsetSetFlags1)
	flags2 := f.At(OffsetSetFlags2)
	var fields []string
	if flags1&Flag1Power != 0 {
		fields = append(fields, "Power="+PowerTable.Token(f.At(OffsetSetPower)))
	}
	if flags1&Flag1Mode != 0 {
		fields = append(fields, "Mode="+ModeTable.Token(f.At(OffsetSetMode)))
	}
	if flags1&Flag1Temp != 0 {
		if t := f.At(OffsetSetTemp); t&TempEncodedFlag != 0 {
			fields = append(fields, fmt.Sprintf("Temp=%d°C", DecodeTemp(t)))
		} else {
			fields = append(fields, fmt.Sprintf("Temp=%d°C (legacy)", TempTable.Value(f.At(OffsetSetTempCode))))
		}
	}
	if flags1&Flag1Fan != 0 {
		fields = append(fields, "Fan="+FanTable.Token(f.At(OffsetSetFan)))
	}
	if flags1&Flag1Vane != 0 {
		fields = append(fields, "Vane="+VaneTable.Token(f.At(OffsetSetVane)))
	}
	if flags2&Flag2WideVane != 0 {
		fields = append(fields, "WideVane="+WideVaneTable.Token(f.At(OffsetSetWideVane)))
	}

	result := fmt.Sprintf("  Flags: 0x%02X 0x%02X\n", flags1, flags2)
	if len(fields) > 0 {
		result += "  " + strings.Join(fields, ", ") + "\n"
	}
	return result
}

func formatInfoReport(f *Frame) string {
	if f.Len() < MinSetSettingsLen {
		return ""
	}
	sel := f.At(OffsetInfoSelector)
	result := fmt.Sprintf("  Report: %s (0x%02X)\n", FormatSelector(sel), sel)

	switch sel {
	case InfoSettings:
		temp := fmt.Sprintf("%d°C", DecodeTemp(f.At(OffsetInfoTemp)))
		if f.At(OffsetInfoTemp)&TempEncodedFlag == 0 {
			temp = fmt.Sprintf("%d°C (legacy)", TempTable.Value(f.At(OffsetInfoTempCode)))
		}
		result += fmt.Sprintf("  Power=%s, Mode=%s, Temp=%s, Fan=%s, Vane=%s, WideVane=%s\n",
			PowerTable.Token(f.At(OffsetInfoPower)),
			ModeTable.Token(f.At(OffsetInfoMode)),
			temp,
			FanTable.Token(f.At(OffsetInfoFan)),
			VaneTable.Token(f.At(OffsetInfoVane)),
			WideVaneTable.Token(f.At(OffsetInfoWideVane)))
	case InfoRoomTemp:
		if t := f.At(OffsetInfoRoomTemp); t&TempEncodedFlag != 0 {
			result += fmt.Sprintf("  Room=%d°C\n", DecodeTemp(t))
		} else {
			result += fmt.Sprintf("  Room=%d°C (legacy)\n", RoomTempTable.Value(f.At(OffsetInfoRoomCode)))
		}
	case InfoTimers:
		result += fmt.Sprintf("  Timer=%s\n", TimerModeTable.Token(f.At(OffsetInfoTimerMode)))
	}
	return result
}
