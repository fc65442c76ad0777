package serialization

import "math"

// LEB128 variable-length integers: each byte carries seven payload bits in
// bits 0..6 and a continuation flag in bit 7; the byte with the flag
// cleared terminates the sequence. See spec §4.2.

const continuationFlag = 0x80
const payloadMask = 0x7f

func maxLEBBytes(bits uint) int {
	return int((bits + 6) / 7)
}

// encodeVarUint writes v (already range-checked by the caller) using the
// canonical unsigned LEB128 algorithm.
func encodeVarUint(buf *Buffer, v uint64) {
	for {
		b := byte(v & payloadMask)
		v >>= 7
		if v != 0 {
			buf.WriteByte(b | continuationFlag)
		} else {
			buf.WriteByte(b)
			return
		}
	}
}

// encodeVarInt writes v using the canonical signed LEB128 algorithm: more
// bytes follow until the sign has been captured by the top bit of the last
// emitted payload.
func encodeVarInt(buf *Buffer, v int64) {
	for {
		b := byte(v & payloadMask)
		v >>= 7
		signBitSet := b&0x40 != 0
		done := (v == 0 && !signBitSet) || (v == -1 && signBitSet)
		if done {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | continuationFlag)
	}
}

// decodeVarUint reads a little-endian LEB128 sequence of at most
// maxLEBBytes(bits) bytes and returns the assembled value and byte count.
func decodeVarUint(v *View, bits uint) (uint64, int, error) {
	maxBytes := maxLEBBytes(bits)
	var result uint64
	var lastByte byte
	n := 0
	for n < maxBytes {
		b, err := v.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		lastByte = b
		result |= uint64(b&payloadMask) << (7 * n)
		n++
		if b&continuationFlag == 0 {
			break
		}
	}

	usedBits := bits - uint(n-1)*7
	usedMask := byte((uint16(1) << usedBits) - 1)
	if lastByte&payloadMask&^usedMask != 0 {
		return 0, 0, errInvalidFinalByte()
	}
	return result, n, nil
}

// decodeVarInt reads a signed LEB128 sequence, sign-extending the result to
// the full 64-bit width per the final byte's top used bit.
func decodeVarInt(v *View, bits uint) (int64, int, error) {
	maxBytes := maxLEBBytes(bits)
	var result int64
	var lastByte byte
	n := 0
	for n < maxBytes {
		b, err := v.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		lastByte = b
		result |= int64(b&payloadMask) << (7 * n)
		n++
		if b&continuationFlag == 0 {
			break
		}
	}

	usedBits := bits - uint(n-1)*7
	usedMask := byte((uint16(1) << usedBits) - 1)
	highPayload := lastByte & payloadMask &^ usedMask
	signExtendPattern := payloadMask &^ usedMask
	if highPayload != 0 && highPayload != signExtendPattern {
		return 0, 0, errInvalidFinalByte()
	}

	shift := 64 - n*7
	if shift > 0 {
		result = (result << shift) >> shift
	}
	return result, n, nil
}

// EncodeVarUint1 encodes v, which must be 0 or 1.
func EncodeVarUint1(buf *Buffer, v uint64) error {
	if v > 1 {
		return errOutOfRange(0, v, 1)
	}
	encodeVarUint(buf, v)
	return nil
}

// EncodeVarUint7 encodes v, which must be in [0, 127].
func EncodeVarUint7(buf *Buffer, v uint64) error {
	if v > 127 {
		return errOutOfRange(0, v, 127)
	}
	encodeVarUint(buf, v)
	return nil
}

// EncodeVarUint32 encodes v as an unsigned LEB128 using up to 5 bytes.
func EncodeVarUint32(buf *Buffer, v uint32) {
	encodeVarUint(buf, uint64(v))
}

// EncodeVarUint64 encodes v as an unsigned LEB128 using up to 10 bytes.
func EncodeVarUint64(buf *Buffer, v uint64) {
	encodeVarUint(buf, v)
}

// EncodeVarInt32 encodes v as a signed LEB128 using up to 5 bytes.
func EncodeVarInt32(buf *Buffer, v int32) {
	encodeVarInt(buf, int64(v))
}

// EncodeVarInt64 encodes v as a signed LEB128 using up to 10 bytes.
func EncodeVarInt64(buf *Buffer, v int64) {
	encodeVarInt(buf, v)
}

// DecodeVarUint1 decodes a VarUInt1, rejecting values outside [0, 1].
func DecodeVarUint1(v *View) (uint64, int, error) {
	return decodeAndCheckUint(v, 1, 1)
}

// DecodeVarUint7 decodes a VarUInt7, rejecting values outside [0, 127].
func DecodeVarUint7(v *View) (uint64, int, error) {
	return decodeAndCheckUint(v, 7, 127)
}

// DecodeVarUint32 decodes a VarUInt32, rejecting values outside uint32's
// range.
func DecodeVarUint32(v *View) (uint32, int, error) {
	val, n, err := decodeAndCheckUint(v, 32, 0xffffffff)
	return uint32(val), n, err
}

// DecodeVarUint64 decodes a VarUInt64.
func DecodeVarUint64(v *View) (uint64, int, error) {
	return decodeVarUint(v, 64)
}

// DecodeVarInt32 decodes a VarInt32, rejecting values outside int32's
// range.
func DecodeVarInt32(v *View) (int32, int, error) {
	val, n, err := decodeAndCheckInt(v, 32, math.MinInt32, math.MaxInt32)
	return int32(val), n, err
}

// DecodeVarInt64 decodes a VarInt64.
func DecodeVarInt64(v *View) (int64, int, error) {
	return decodeVarInt(v, 64)
}

func decodeAndCheckUint(v *View, bits uint, hi uint64) (uint64, int, error) {
	val, n, err := decodeVarUint(v, bits)
	if err != nil {
		return 0, 0, err
	}
	if val > hi {
		return 0, 0, errOutOfRange(uint64(0), val, hi)
	}
	return val, n, nil
}

func decodeAndCheckInt(v *View, bits uint, lo, hi int64) (int64, int, error) {
	val, n, err := decodeVarInt(v, bits)
	if err != nil {
		return 0, 0, err
	}
	if val < lo || val > hi {
		return 0, 0, errOutOfRange(lo, val, hi)
	}
	return val, n, nil
}
