package lnwire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ChannelID uniquely identifies a channel to either side's peer connection.
// For hosted channels this is sha256(nodeSpecificPubKey || nodeId), per
// spec.md §6.
type ChannelID [32]byte

// Sig64 is a fixed-size 64 byte ECDSA signature, matching the wire encoding
// used throughout the hosted-channel protocol (R || S, 32 bytes each).
type Sig64 [64]byte

// writeElement serializes a single element into w using the canonical
// little-endian, fixed-width encodings required by hostedSigHash (spec.md
// §3) and the various message codecs.
func writeElement(w io.Writer, element interface{}) error {
	switch e := element.(type) {
	case uint8:
		if _, err := w.Write([]byte{e}); err != nil {
			return err
		}
	case uint16:
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], e)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
	case uint32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], e)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
	case uint64:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], e)
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
	case bool:
		var b byte
		if e {
			b = 1
		}
		if _, err := w.Write([]byte{b}); err != nil {
			return err
		}
	case []byte:
		if _, err := w.Write(e); err != nil {
			return err
		}
	case ChannelID:
		if _, err := w.Write(e[:]); err != nil {
			return err
		}
	case Sig64:
		if _, err := w.Write(e[:]); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown type %T used in writeElement", e)
	}

	return nil
}

func writeElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		if err := writeElement(w, element); err != nil {
			return err
		}
	}
	return nil
}

// readElement deserializes a single element from r using the inverse of
// writeElement.
func readElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *uint8:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = b[0]
	case *uint16:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.LittleEndian.Uint16(b[:])
	case *uint32:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.LittleEndian.Uint32(b[:])
	case *uint64:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = binary.LittleEndian.Uint64(b[:])
	case *bool:
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return err
		}
		*e = b[0] != 0
	case []byte:
		if _, err := io.ReadFull(r, e); err != nil {
			return err
		}
	case *ChannelID:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}
	case *Sig64:
		if _, err := io.ReadFull(r, e[:]); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown type %T used in readElement", e)
	}

	return nil
}

func readElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		if err := readElement(r, element); err != nil {
			return err
		}
	}
	return nil
}

// writeVarBytes writes a length-prefixed (2 byte big-endian count) byte
// slice, used for the variable-length fields (TLV blobs, scripts, failure
// reasons, branding data) that don't have a fixed wire size.
func writeVarBytes(w io.Writer, b []byte) error {
	if len(b) > MaxMessagePayload {
		return fmt.Errorf("byte slice of length %d was too long", len(b))
	}

	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(len(b)))
	if _, err := w.Write(l[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readVarBytes(r io.Reader) ([]byte, error) {
	var l [2]byte
	if _, err := io.ReadFull(r, l[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(l[:])

	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// writePubKey writes the 33-byte compressed SEC1 encoding of pub.
func writePubKey(w io.Writer, pub *btcec.PublicKey) error {
	if pub == nil {
		var zero [33]byte
		_, err := w.Write(zero[:])
		return err
	}
	_, err := w.Write(pub.SerializeCompressed())
	return err
}

func readPubKey(r io.Reader) (*btcec.PublicKey, error) {
	var b [33]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	return btcec.ParsePubKey(b[:])
}
