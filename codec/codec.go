// Package codec centralizes segment payload and archive encoding.
//
// Segment payloads are raw little-endian float32 values, channel-major and
// time-minor, with no header and no compression. The layout is a breaking-change
// boundary: every store written by segstore must decode with DecodeWindow.
//
// Archive compression (see Compression) only applies to whole published
// store generations, never to individual segment payloads.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/segstore/model"
)

// ErrCorruptPayload is returned when a payload cannot be a C × L float32 array.
var ErrCorruptPayload = errors.New("corrupt segment payload")

// EncodeWindow serializes a window into a new byte slice.
func EncodeWindow(w model.Window) []byte {
	return AppendWindow(make([]byte, 0, len(w.Data)*model.BytesPerSample), w)
}

// AppendWindow appends the serialized window to dst and returns the extended slice.
func AppendWindow(dst []byte, w model.Window) []byte {
	return AppendFloat32s(dst, w.Data)
}

// AppendFloat32s appends vals as little-endian float32 values.
func AppendFloat32s(dst []byte, vals []float32) []byte {
	for _, v := range vals {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}

// DecodeFloat32s decodes payload into dst, which must hold len(payload)/4 values.
func DecodeFloat32s(dst []float32, payload []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*model.BytesPerSample:]))
	}
}

// DecodeWindow reconstructs a channels × L window from payload.
// The returned data never aliases payload.
func DecodeWindow(payload []byte, channels int) (model.Window, error) {
	length, err := LengthOf(len(payload), channels)
	if err != nil {
		return model.Window{}, err
	}

	data := make([]float32, channels*length)
	DecodeFloat32s(data, payload)

	return model.Window{
		Shape: model.Shape{Channels: channels, Length: length},
		Data:  data,
	}, nil
}

// LengthOf returns the window length L implied by a payload of size bytes.
func LengthOf(size, channels int) (int, error) {
	if channels <= 0 {
		return 0, fmt.Errorf("invalid channel count %d", channels)
	}
	stride := channels * model.BytesPerSample
	if size == 0 || size%stride != 0 {
		return 0, fmt.Errorf("%w: %d bytes is not a positive multiple of %d", ErrCorruptPayload, size, stride)
	}
	return size / stride, nil
}
