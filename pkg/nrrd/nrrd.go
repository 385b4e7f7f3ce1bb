// Package nrrd reads and writes dense scientific volumes in the NRRD
// format: a plain-text header describing sample type, dimensionality and
// grid metadata, followed by the raw or gzip-compressed sample stream.
package nrrd

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"voxelstats/internal/models"
)

// magicPrefix matches every NRRD format revision; the trailing digit is
// the revision number and does not affect the fields used here.
const magicPrefix = "NRRD000"

// Read decodes the volume stored at path. The returned volume carries the
// full header so it can be written back verbatim.
func Read(path string) (*models.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	header, byteOrder, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if err := header.Validate(); err != nil {
		return nil, err
	}
	if header.Dimension != 3 {
		return nil, fmt.Errorf("expected a 3D volume, header has dimension %d", header.Dimension)
	}

	var data io.Reader = r
	switch header.Encoding {
	case "raw":
	case "gzip", "gz":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("bad gzip stream: %w", err)
		}
		defer gz.Close()
		data = gz
	default:
		return nil, fmt.Errorf("unsupported encoding %q", header.Encoding)
	}

	shape := [3]int{header.Sizes[0], header.Sizes[1], header.Sizes[2]}
	samples, err := decodeSamples(data, header.Type, byteOrder, shape[0]*shape[1]*shape[2])
	if err != nil {
		return nil, err
	}

	return &models.Volume{Data: samples, Shape: shape, Header: header}, nil
}

// Write encodes the volume to path with the given on-disk sample type.
// The header is taken from vol.Header when present, otherwise a minimal
// synthetic header is substituted. Multi-byte samples are written
// little-endian and the stream is gzip-compressed.
func Write(path string, vol *models.Volume, sampleType string) error {
	header := vol.Header.Clone()
	if header == nil {
		header = models.SyntheticHeader(sampleType, vol.Shape)
	}
	header.Type = sampleType
	header.Dimension = 3
	header.Sizes = []int{vol.Shape[0], vol.Shape[1], vol.Shape[2]}
	header.Encoding = "gzip"

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := writeHeader(w, header); err != nil {
		return err
	}

	gz := gzip.NewWriter(w)
	if err := encodeSamples(gz, vol.Data, sampleType); err != nil {
		gz.Close()
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

// readHeader consumes the text header up to and including the blank line
// separating it from the sample stream.
func readHeader(r *bufio.Reader) (*models.Header, binary.ByteOrder, error) {
	magic, err := r.ReadString('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("missing magic line: %w", err)
	}
	if !strings.HasPrefix(strings.TrimRight(magic, "\r\n"), magicPrefix) {
		return nil, nil, fmt.Errorf("not an NRRD file (magic %q)", strings.TrimSpace(magic))
	}

	header := &models.Header{}
	var byteOrder binary.ByteOrder = binary.LittleEndian
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, nil, fmt.Errorf("truncated header: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "#") {
			continue
		}

		// "key:=value" pairs and "key: value" fields both survive in
		// Fields unless the key is one of the fields parsed below.
		key, value, ok := splitHeaderLine(line)
		if !ok {
			return nil, nil, fmt.Errorf("malformed header line %q", line)
		}

		switch strings.ToLower(key) {
		case "type":
			header.Type = value
		case "dimension":
			d, err := strconv.Atoi(value)
			if err != nil {
				return nil, nil, fmt.Errorf("bad dimension %q", value)
			}
			header.Dimension = d
		case "sizes":
			for _, s := range strings.Fields(value) {
				n, err := strconv.Atoi(s)
				if err != nil {
					return nil, nil, fmt.Errorf("bad sizes entry %q", s)
				}
				header.Sizes = append(header.Sizes, n)
			}
		case "encoding":
			header.Encoding = value
		case "endian":
			if value == "big" {
				byteOrder = binary.BigEndian
			}
		default:
			header.Fields = append(header.Fields, models.Field{Key: key, Value: value})
		}
	}

	if header.Type == "" || header.Encoding == "" || len(header.Sizes) == 0 {
		return nil, nil, fmt.Errorf("header is missing type, sizes or encoding")
	}
	return header, byteOrder, nil
}

func splitHeaderLine(line string) (key, value string, ok bool) {
	// ":=" marks a key-value pair, ": " a field; check the pair form
	// first since it has no mandatory space.
	if i := strings.Index(line, ":="); i >= 0 {
		return line[:i], line[i+2:], true
	}
	if i := strings.Index(line, ": "); i >= 0 {
		return line[:i], line[i+2:], true
	}
	return "", "", false
}

func writeHeader(w io.Writer, h *models.Header) error {
	var b strings.Builder
	b.WriteString("NRRD0004\n")
	fmt.Fprintf(&b, "type: %s\n", h.Type)
	fmt.Fprintf(&b, "dimension: %d\n", h.Dimension)
	sizes := make([]string, len(h.Sizes))
	for i, s := range h.Sizes {
		sizes[i] = strconv.Itoa(s)
	}
	fmt.Fprintf(&b, "sizes: %s\n", strings.Join(sizes, " "))
	if sampleWidth(h.Type) > 1 {
		b.WriteString("endian: little\n")
	}
	fmt.Fprintf(&b, "encoding: %s\n", h.Encoding)
	for _, f := range h.Fields {
		fmt.Fprintf(&b, "%s: %s\n", f.Key, f.Value)
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func sampleWidth(sampleType string) int {
	switch normalizeType(sampleType) {
	case "uint8", "int8":
		return 1
	case "uint16", "int16":
		return 2
	case "uint32", "int32", "float32":
		return 4
	default:
		return 8
	}
}

// normalizeType folds the C-style aliases the format allows onto the
// canonical names used internally.
func normalizeType(t string) string {
	switch strings.ToLower(t) {
	case "uchar", "unsigned char", "uint8", "uint8_t":
		return "uint8"
	case "signed char", "int8", "int8_t", "char":
		return "int8"
	case "short", "short int", "signed short", "int16", "int16_t":
		return "int16"
	case "ushort", "unsigned short", "uint16", "uint16_t":
		return "uint16"
	case "int", "signed int", "int32", "int32_t":
		return "int32"
	case "uint", "unsigned int", "uint32", "uint32_t":
		return "uint32"
	case "float", "float32":
		return "float32"
	case "double", "float64":
		return "float64"
	case "long long", "int64", "int64_t", "longlong":
		return "int64"
	case "unsigned long long", "uint64", "uint64_t", "ulonglong":
		return "uint64"
	default:
		return ""
	}
}

// decodeSamples reads exactly count samples of the given type and widens
// them to float64.
func decodeSamples(r io.Reader, sampleType string, order binary.ByteOrder, count int) ([]float64, error) {
	norm := normalizeType(sampleType)
	if norm == "" {
		return nil, fmt.Errorf("unsupported sample type %q", sampleType)
	}
	width := sampleWidth(norm)

	raw := make([]byte, count*width)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("short sample stream (want %d samples of %s): %w", count, norm, err)
	}

	out := make([]float64, count)
	for i := 0; i < count; i++ {
		b := raw[i*width:]
		switch norm {
		case "uint8":
			out[i] = float64(b[0])
		case "int8":
			out[i] = float64(int8(b[0]))
		case "int16":
			out[i] = float64(int16(order.Uint16(b)))
		case "uint16":
			out[i] = float64(order.Uint16(b))
		case "int32":
			out[i] = float64(int32(order.Uint32(b)))
		case "uint32":
			out[i] = float64(order.Uint32(b))
		case "int64":
			out[i] = float64(int64(order.Uint64(b)))
		case "uint64":
			out[i] = float64(order.Uint64(b))
		case "float32":
			out[i] = float64(math.Float32frombits(order.Uint32(b)))
		case "float64":
			out[i] = math.Float64frombits(order.Uint64(b))
		}
	}
	return out, nil
}

// encodeSamples narrows float64 samples to the on-disk type and writes
// them little-endian.
func encodeSamples(w io.Writer, data []float64, sampleType string) error {
	norm := normalizeType(sampleType)
	if norm == "" {
		return fmt.Errorf("unsupported sample type %q", sampleType)
	}
	width := sampleWidth(norm)

	buf := make([]byte, len(data)*width)
	for i, v := range data {
		b := buf[i*width:]
		switch norm {
		case "uint8":
			b[0] = uint8(v)
		case "int8":
			b[0] = byte(int8(v))
		case "int16":
			binary.LittleEndian.PutUint16(b, uint16(int16(v)))
		case "uint16":
			binary.LittleEndian.PutUint16(b, uint16(v))
		case "int32":
			binary.LittleEndian.PutUint32(b, uint32(int32(v)))
		case "uint32":
			binary.LittleEndian.PutUint32(b, uint32(v))
		case "int64":
			binary.LittleEndian.PutUint64(b, uint64(int64(v)))
		case "uint64":
			binary.LittleEndian.PutUint64(b, uint64(v))
		case "float32":
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		case "float64":
			binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		}
	}
	_, err := w.Write(buf)
	return err
}
