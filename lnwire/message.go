package lnwire

// code derived from https://github .com/btcsuite/btcd/blob/master/wire/message.go

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxMessagePayload is the maximum bytes a message can be regardless of other
// individual limits imposed by messages themselves.
const MaxMessagePayload = 65535 // 65KB

// MessageType is the unique 2 byte big-endian integer that indicates the type
// of message on the wire. All messages have a very simple header which
// consists simply of a 2-byte message type. We omit a length field and
// checksum as the hosted-channel protocol is tunnelled inside an already
// authenticated and encrypted peer transport.
type MessageType uint16

// The currently defined message types for the hosted-channel protocol.
// Hosted-channel-specific types are placed at the top of the 16-bit
// namespace so they never collide with the BOLT message types they're
// multiplexed alongside on the wire.
const (
	MsgError   MessageType = 17
	MsgWarning MessageType = 1

	MsgInvokeHostedChannel          MessageType = 65535
	MsgInitHostedChannel            MessageType = 65534
	MsgLastCrossSignedState         MessageType = 65533
	MsgStateUpdate                  MessageType = 65532
	MsgStateOverride                MessageType = 65531
	MsgResizeChannel                MessageType = 65530
	MsgAskBrandingInfo              MessageType = 65529
	MsgHostedChannelBranding        MessageType = 65528
	MsgQueryPublicHostedChannels    MessageType = 65527
	MsgReplyPublicHostedChannelsEnd MessageType = 65526
	MsgQueryPreimages               MessageType = 65525
	MsgReplyPreimages               MessageType = 65524
	MsgAnnouncementSignature        MessageType = 65523
	MsgChannelUpdate                MessageType = 65522

	MsgUpdateAddHTLC           MessageType = 128
	MsgUpdateFulfillHTLC       MessageType = 130
	MsgUpdateFailHTLC          MessageType = 131
	MsgUpdateFailMalformedHTLC MessageType = 135
)

// UnknownMessage is an implementation of the error interface that allows the
// creation of an error in response to an unknown message.
type UnknownMessage struct {
	messageType MessageType
}

// Error returns a human readable string describing the error.
//
// This is part of the error interface.
func (u *UnknownMessage) Error() string {
	return fmt.Sprintf("unable to parse message of unknown type: %v",
		u.messageType)
}

// Message is an interface that defines a hosted-channel wire protocol
// message. The interface is general in order to allow implementing types
// full control over the representation of their data.
type Message interface {
	Decode(io.Reader, uint32) error
	Encode(io.Writer, uint32) error
	MsgType() MessageType
	MaxPayloadLength(uint32) uint32
}

// makeEmptyMessage creates a new empty message of the proper concrete type
// based on the passed message type.
func makeEmptyMessage(msgType MessageType) (Message, error) {
	var msg Message

	switch msgType {
	case MsgInvokeHostedChannel:
		msg = &InvokeHostedChannel{}
	case MsgInitHostedChannel:
		msg = &InitHostedChannel{}
	case MsgLastCrossSignedState:
		msg = &LastCrossSignedState{}
	case MsgStateUpdate:
		msg = &StateUpdate{}
	case MsgStateOverride:
		msg = &StateOverride{}
	case MsgResizeChannel:
		msg = &ResizeChannel{}
	case MsgAskBrandingInfo:
		msg = &AskBrandingInfo{}
	case MsgHostedChannelBranding:
		msg = &HostedChannelBranding{}
	case MsgQueryPublicHostedChannels:
		msg = &QueryPublicHostedChannels{}
	case MsgReplyPublicHostedChannelsEnd:
		msg = &ReplyPublicHostedChannelsEnd{}
	case MsgQueryPreimages:
		msg = &QueryPreimages{}
	case MsgReplyPreimages:
		msg = &ReplyPreimages{}
	case MsgAnnouncementSignature:
		msg = &AnnouncementSignature{}
	case MsgChannelUpdate:
		msg = &ChannelUpdate{}
	case MsgUpdateAddHTLC:
		msg = &UpdateAddHTLC{}
	case MsgUpdateFulfillHTLC:
		msg = &UpdateFulfillHTLC{}
	case MsgUpdateFailHTLC:
		msg = &UpdateFailHTLC{}
	case MsgUpdateFailMalformedHTLC:
		msg = &UpdateFailMalformedHTLC{}
	case MsgError:
		msg = &Fail{}
	case MsgWarning:
		msg = &Warning{}
	default:
		return nil, &UnknownMessage{messageType: msgType}
	}

	return msg, nil
}

// WriteMessage writes a hosted-channel Message to w including the necessary
// header information and returns the number of bytes written.
func WriteMessage(w io.Writer, msg Message, pver uint32) (int, error) {
	totalBytes := 0

	// Encode the message payload itself into a temporary buffer.
	// TODO(roasbeef): create buffer pool
	var bw bytes.Buffer
	if err := msg.Encode(&bw, pver); err != nil {
		return totalBytes, err
	}
	payload := bw.Bytes()
	lenp := len(payload)

	// Enforce maximum overall message payload.
	if lenp > MaxMessagePayload {
		return totalBytes, fmt.Errorf("message payload is too large - "+
			"encoded %d bytes, but maximum message payload is %d bytes",
			lenp, MaxMessagePayload)
	}

	// Enforce maximum message payload on the message type.
	mpl := msg.MaxPayloadLength(pver)
	if uint32(lenp) > mpl {
		return totalBytes, fmt.Errorf("message payload is too large - "+
			"encoded %d bytes, but maximum message payload of "+
			"type %x is %d bytes", lenp, msg.MsgType(), mpl)
	}

	// With the initial sanity checks complete, we'll now write out the
	// message type itself.
	var mType [2]byte
	binary.BigEndian.PutUint16(mType[:], uint16(msg.MsgType()))
	n, err := w.Write(mType[:])
	totalBytes += n
	if err != nil {
		return totalBytes, err
	}

	// With the message type written, we'll now write out the raw payload
	// itself.
	n, err = w.Write(payload)
	totalBytes += n

	return totalBytes, err
}

// ReadMessage reads, validates, and parses the next hosted-channel message
// from r for the provided protocol version.
func ReadMessage(r io.Reader, pver uint32) (Message, error) {
	// First, we'll read out the first two bytes of the message so we can
	// create the proper empty message.
	var mType [2]byte
	if _, err := io.ReadFull(r, mType[:]); err != nil {
		return nil, err
	}

	msgType := MessageType(binary.BigEndian.Uint16(mType[:]))

	// Now that we know the target message type, we can create the proper
	// empty message type and decode the message into it.
	msg, err := makeEmptyMessage(msgType)
	if err != nil {
		return nil, err
	}
	if err := msg.Decode(r, pver); err != nil {
		return nil, err
	}

	return msg, nil
}
