// Package npy reads and writes raw array dumps in the numpy .npy format
// (version 1.0/2.0, C-order only). Only the plain numeric and boolean
// dtypes produced by the volume pipeline are supported.
package npy

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

var magic = []byte{0x93, 'N', 'U', 'M', 'P', 'Y'}

// Read loads the array at path, widening every sample to float64.
// It returns the flat data in C order together with the array shape.
func Read(path string) ([]float64, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	descr, shape, err := readHeader(f)
	if err != nil {
		return nil, nil, err
	}

	count := 1
	for _, s := range shape {
		count *= s
	}

	width, err := dtypeWidth(descr)
	if err != nil {
		return nil, nil, err
	}
	raw := make([]byte, count*width)
	if _, err := io.ReadFull(f, raw); err != nil {
		return nil, nil, fmt.Errorf("short array data: %w", err)
	}

	data := make([]float64, count)
	for i := 0; i < count; i++ {
		b := raw[i*width:]
		switch descr {
		case "|b1", "|u1":
			data[i] = float64(b[0])
		case "|i1":
			data[i] = float64(int8(b[0]))
		case "<i2":
			data[i] = float64(int16(binary.LittleEndian.Uint16(b)))
		case "<u2":
			data[i] = float64(binary.LittleEndian.Uint16(b))
		case "<i4":
			data[i] = float64(int32(binary.LittleEndian.Uint32(b)))
		case "<u4":
			data[i] = float64(binary.LittleEndian.Uint32(b))
		case "<i8":
			data[i] = float64(int64(binary.LittleEndian.Uint64(b)))
		case "<f4":
			data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		case "<f8":
			data[i] = math.Float64frombits(binary.LittleEndian.Uint64(b))
		}
	}
	return data, shape, nil
}

// Write stores data with the given shape and dtype descriptor
// (for example "<f4") as a version 1.0 file.
func Write(path string, data []float64, shape []int, descr string) error {
	width, err := dtypeWidth(descr)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := writeHeader(f, descr, shape); err != nil {
		return err
	}

	buf := make([]byte, len(data)*width)
	for i, v := range data {
		b := buf[i*width:]
		switch descr {
		case "|b1":
			if v != 0 {
				b[0] = 1
			}
		case "|u1":
			b[0] = uint8(v)
		case "|i1":
			b[0] = byte(int8(v))
		case "<i2":
			binary.LittleEndian.PutUint16(b, uint16(int16(v)))
		case "<u2":
			binary.LittleEndian.PutUint16(b, uint16(v))
		case "<i4":
			binary.LittleEndian.PutUint32(b, uint32(int32(v)))
		case "<u4":
			binary.LittleEndian.PutUint32(b, uint32(v))
		case "<i8":
			binary.LittleEndian.PutUint64(b, uint64(int64(v)))
		case "<f4":
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		case "<f8":
			binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		}
	}
	if _, err := f.Write(buf); err != nil {
		return err
	}
	return f.Sync()
}

func dtypeWidth(descr string) (int, error) {
	switch descr {
	case "|b1", "|u1", "|i1":
		return 1, nil
	case "<i2", "<u2":
		return 2, nil
	case "<i4", "<u4", "<f4":
		return 4, nil
	case "<i8", "<f8":
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %q", descr)
	}
}

func readHeader(r io.Reader) (descr string, shape []int, err error) {
	pre := make([]byte, 8)
	if _, err := io.ReadFull(r, pre); err != nil {
		return "", nil, fmt.Errorf("missing npy magic: %w", err)
	}
	for i, b := range magic {
		if pre[i] != b {
			return "", nil, fmt.Errorf("not an npy file")
		}
	}
	major := pre[6]

	var headerLen int
	switch major {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return "", nil, fmt.Errorf("truncated npy header: %w", err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return "", nil, fmt.Errorf("truncated npy header: %w", err)
		}
		headerLen = int(n)
	default:
		return "", nil, fmt.Errorf("unsupported npy version %d", major)
	}

	raw := make([]byte, headerLen)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", nil, fmt.Errorf("truncated npy header: %w", err)
	}
	return parseHeaderDict(string(raw))
}

// parseHeaderDict extracts descr, fortran_order and shape from the python
// literal dict that makes up the header.
func parseHeaderDict(s string) (string, []int, error) {
	descr, err := dictString(s, "descr")
	if err != nil {
		return "", nil, err
	}

	if strings.Contains(s, "'fortran_order': True") {
		return "", nil, fmt.Errorf("fortran-order arrays are not supported")
	}

	i := strings.Index(s, "'shape':")
	if i < 0 {
		return "", nil, fmt.Errorf("npy header has no shape")
	}
	open := strings.Index(s[i:], "(")
	end := strings.Index(s[i:], ")")
	if open < 0 || end < 0 || end < open {
		return "", nil, fmt.Errorf("malformed shape in npy header")
	}
	var shape []int
	for _, part := range strings.Split(s[i+open+1:i+end], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return "", nil, fmt.Errorf("malformed shape entry %q", part)
		}
		shape = append(shape, n)
	}
	return descr, shape, nil
}

func dictString(s, key string) (string, error) {
	i := strings.Index(s, "'"+key+"':")
	if i < 0 {
		return "", fmt.Errorf("npy header has no %s", key)
	}
	rest := s[i+len(key)+3:]
	start := strings.Index(rest, "'")
	if start < 0 {
		return "", fmt.Errorf("malformed %s in npy header", key)
	}
	end := strings.Index(rest[start+1:], "'")
	if end < 0 {
		return "", fmt.Errorf("malformed %s in npy header", key)
	}
	return rest[start+1 : start+1+end], nil
}

// writeHeader emits a version 1.0 header padded so that the data section
// starts on a 64-byte boundary, as the format requires.
func writeHeader(w io.Writer, descr string, shape []int) error {
	dims := make([]string, len(shape))
	for i, s := range shape {
		dims[i] = strconv.Itoa(s)
	}
	shapeStr := strings.Join(dims, ", ")
	if len(shape) == 1 {
		shapeStr += ","
	}
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': (%s), }", descr, shapeStr)

	// 6 magic bytes + 2 version bytes + 2 length bytes + dict + newline
	total := 10 + len(dict) + 1
	pad := (64 - total%64) % 64
	headerLen := len(dict) + pad + 1

	var b strings.Builder
	b.Write(magic)
	b.WriteByte(1)
	b.WriteByte(0)
	var lenBytes [2]byte
	binary.LittleEndian.PutUint16(lenBytes[:], uint16(headerLen))
	b.Write(lenBytes[:])
	b.WriteString(dict)
	b.WriteString(strings.Repeat(" ", pad))
	b.WriteByte('\n')

	_, err := io.WriteString(w, b.String())
	return err
}
