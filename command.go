package opusloop

import (
	"fmt"

	"github.com/opd-ai/opusloop/codec"
)

type commandKind int

const (
	cmdBitrate commandKind = iota + 1
	cmdComplexity
	cmdVBRMode
	cmdSignal
	cmdPacketLoss
	cmdDTX
	cmdFEC
	cmdFrameSize
	cmdReset
	cmdSwap
)

func (k commandKind) String() string {
	switch k {
	case cmdBitrate:
		return "bitrate"
	case cmdComplexity:
		return "complexity"
	case cmdVBRMode:
		return "vbr_mode"
	case cmdSignal:
		return "signal"
	case cmdPacketLoss:
		return "packet_loss"
	case cmdDTX:
		return "dtx"
	case cmdFEC:
		return "fec"
	case cmdFrameSize:
		return "frame_size"
	case cmdReset:
		return "reset"
	case cmdSwap:
		return "swap"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// command is one control request queued for the audio thread.
type command struct {
	kind  commandKind
	value int
	frame codec.FrameDuration
	codec *codec.Codec
}

// apply runs the command against c on the audio thread. Swaps are handled by
// the Processor.
func (cmd command) apply(c *codec.Codec) error {
	switch cmd.kind {
	case cmdBitrate:
		return c.SetBitrate(cmd.value)
	case cmdComplexity:
		return c.SetComplexity(cmd.value)
	case cmdVBRMode:
		return c.SetVBRMode(codec.VBRMode(cmd.value))
	case cmdSignal:
		return c.SetSignal(codec.Signal(cmd.value))
	case cmdPacketLoss:
		return c.SetPacketLoss(cmd.value)
	case cmdDTX:
		return c.SetDTX(cmd.value != 0)
	case cmdFEC:
		return c.SetFEC(cmd.value != 0)
	case cmdFrameSize:
		return c.SetFrameDuration(cmd.frame)
	case cmdReset:
		return c.Reset()
	default:
		return fmt.Errorf("unexpected command %s", cmd.kind)
	}
}

// rollback puts the codec's actual value back into desired for a rejected
// command, unless a later request already replaced the rejected value.
func (cmd command) rollback(desired *codec.Params, actual codec.Params) {
	switch cmd.kind {
	case cmdBitrate:
		if desired.Bitrate == cmd.value {
			desired.Bitrate = actual.Bitrate
		}
	case cmdComplexity:
		if desired.Complexity == cmd.value {
			desired.Complexity = actual.Complexity
		}
	case cmdVBRMode:
		if desired.VBR == codec.VBRMode(cmd.value) {
			desired.VBR = actual.VBR
		}
	case cmdSignal:
		if desired.Signal == codec.Signal(cmd.value) {
			desired.Signal = actual.Signal
		}
	case cmdPacketLoss:
		if desired.PacketLoss == cmd.value {
			desired.PacketLoss = actual.PacketLoss
		}
	case cmdDTX:
		if desired.DTX == (cmd.value != 0) {
			desired.DTX = actual.DTX
		}
	case cmdFEC:
		if desired.FEC == (cmd.value != 0) {
			desired.FEC = actual.FEC
		}
	case cmdFrameSize:
		if desired.Frame == cmd.frame {
			desired.Frame = actual.Frame
		}
	}
}
