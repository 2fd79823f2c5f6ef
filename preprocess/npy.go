package preprocess

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/hupe1980/segstore/internal/mmap"
	"github.com/hupe1980/segstore/model"
)

const npyMagic = "\x93NUMPY"

var (
	descrPattern   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	fortranPattern = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	shapePattern   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

// NPY reads preprocessed recordings stored as 2-D little-endian float32 or
// float64 NumPy arrays in C order, shaped channels × samples.
//
// Resolve maps a source recording path to the path of its .npy file. When
// nil, the source path itself is read.
type NPY struct {
	Channels int
	Resolve  func(path string) string
}

// Process implements Preprocessor.
func (p NPY) Process(ctx context.Context, path string) (model.Recording, error) {
	if err := ctx.Err(); err != nil {
		return model.Recording{}, err
	}
	if p.Resolve != nil {
		path = p.Resolve(path)
	}

	m, err := mmap.Open(path)
	if err != nil {
		return model.Recording{}, fmt.Errorf("map %s: %w", path, err)
	}
	defer m.Close()

	rec, err := decodeNPY(m)
	if err != nil {
		return model.Recording{}, fmt.Errorf("%s: %w", path, err)
	}
	if p.Channels > 0 {
		if err := CheckChannels(rec, p.Channels); err != nil {
			return model.Recording{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	return rec, nil
}

type npyHeader struct {
	descr   string
	fortran bool
	shape   []int
}

func decodeNPY(m *mmap.Mapping) (model.Recording, error) {
	buf := m.Bytes()
	if len(buf) < len(npyMagic)+4 || string(buf[:len(npyMagic)]) != npyMagic {
		return model.Recording{}, fmt.Errorf("%w: not an npy file", ErrUnsupported)
	}

	major := buf[len(npyMagic)]
	pos := len(npyMagic) + 2
	var headerLen int
	switch major {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(buf[pos:]))
		pos += 2
	case 2, 3:
		if len(buf) < pos+4 {
			return model.Recording{}, fmt.Errorf("%w: truncated header", ErrUnsupported)
		}
		headerLen = int(binary.LittleEndian.Uint32(buf[pos:]))
		pos += 4
	default:
		return model.Recording{}, fmt.Errorf("%w: npy version %d", ErrUnsupported, major)
	}
	if pos+headerLen > len(buf) {
		return model.Recording{}, fmt.Errorf("%w: truncated header", ErrUnsupported)
	}

	hdr, err := parseNPYHeader(string(buf[pos : pos+headerLen]))
	if err != nil {
		return model.Recording{}, err
	}
	pos += headerLen

	if hdr.fortran {
		return model.Recording{}, fmt.Errorf("%w: fortran order", ErrUnsupported)
	}
	if len(hdr.shape) != 2 {
		return model.Recording{}, fmt.Errorf("%w: %d-D array, expected channels × samples", ErrUnsupported, len(hdr.shape))
	}

	var width int
	switch hdr.descr {
	case "<f4":
		width = 4
	case "<f8":
		width = 8
	default:
		return model.Recording{}, fmt.Errorf("%w: dtype %q", ErrUnsupported, hdr.descr)
	}

	channels, samples := hdr.shape[0], hdr.shape[1]
	if channels <= 0 || samples < 0 || channels > math.MaxInt/max(samples, 1) {
		return model.Recording{}, fmt.Errorf("%w: shape (%d, %d)", ErrUnsupported, channels, samples)
	}
	n := channels * samples
	if n > (len(buf)-pos)/width {
		return model.Recording{}, fmt.Errorf("%w: payload shorter than %d×%d", ErrUnsupported, channels, samples)
	}
	region, err := m.Region(pos, n*width)
	if err != nil {
		return model.Recording{}, fmt.Errorf("%w: payload shorter than %d×%d", ErrUnsupported, channels, samples)
	}
	_ = region.Advise(mmap.AccessSequential)

	raw := region.Bytes()
	data := make([]float32, n)
	if width == 4 {
		for i := range data {
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	} else {
		for i := range data {
			data[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:])))
		}
	}

	rec := model.Recording{Channels: channels, Samples: samples, Data: data}
	if err := rec.Validate(); err != nil {
		return model.Recording{}, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return rec, nil
}

func parseNPYHeader(s string) (npyHeader, error) {
	var hdr npyHeader

	m := descrPattern.FindStringSubmatch(s)
	if m == nil {
		return hdr, fmt.Errorf("%w: header without descr", ErrUnsupported)
	}
	hdr.descr = m[1]

	if m = fortranPattern.FindStringSubmatch(s); m != nil {
		hdr.fortran = m[1] == "True"
	}

	m = shapePattern.FindStringSubmatch(s)
	if m == nil {
		return hdr, fmt.Errorf("%w: header without shape", ErrUnsupported)
	}
	for _, dim := range strings.Split(m[1], ",") {
		dim = strings.TrimSpace(dim)
		if dim == "" {
			continue
		}
		v, err := strconv.Atoi(dim)
		if err != nil || v < 0 {
			return hdr, fmt.Errorf("%w: bad shape %q", ErrUnsupported, m[1])
		}
		hdr.shape = append(hdr.shape, v)
	}
	return hdr, nil
}

// WriteNPYHeader returns a version 1.0 header for a little-endian float32
// array of the given shape, padded so the payload starts 64-byte aligned.
func WriteNPYHeader(channels, samples int) []byte {
	dict := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", channels, samples)
	total := len(npyMagic) + 4 + len(dict) + 1
	pad := (64 - total%64) % 64
	dict += strings.Repeat(" ", pad) + "\n"

	out := make([]byte, 0, len(npyMagic)+4+len(dict))
	out = append(out, npyMagic...)
	out = append(out, 1, 0)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(dict)))
	return append(out, dict...)
}

// EncodeNPY serializes rec as a little-endian float32 .npy file.
func EncodeNPY(rec model.Recording) []byte {
	out := WriteNPYHeader(rec.Channels, rec.Samples)
	for _, v := range rec.Data {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}
