package imaging

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/rwcarlsen/goexif/exif"
)

var exifHeader = []byte("Exif\x00\x00")

const (
	orientationTag = 0x0112
	tiffShort      = 3
)

// ErrNotJPEG is returned when a buffer does not start with a JPEG SOI marker.
var ErrNotJPEG = errors.New("not a JPEG image")

// HasExif reports whether a JPEG buffer carries a decodable EXIF block.
func HasExif(jpeg []byte) bool {
	_, err := exif.Decode(bytes.NewReader(jpeg))
	return err == nil
}

// Orientation returns the EXIF orientation tag (1-8) of a JPEG buffer, or 0
// when it has none.
func Orientation(jpeg []byte) int {
	x, err := exif.Decode(bytes.NewReader(jpeg))
	if err != nil {
		return 0
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	v, err := tag.Int(0)
	if err != nil {
		return 0
	}
	return v
}

// EnsureExif returns jpeg with blob embedded as an APP1 segment when jpeg has
// no EXIF of its own. blob may be a bare TIFF structure or already carry the
// "Exif\0\0" header. The input is returned unchanged when there is nothing to
// add or the spliced result does not decode.
//
// Converters write HEIC pixels already rotated, so the Orientation of a
// spliced block is reset to 1.
func EnsureExif(jpeg, blob []byte) ([]byte, error) {
	if len(jpeg) < 2 || jpeg[0] != 0xFF || jpeg[1] != 0xD8 {
		return nil, ErrNotJPEG
	}
	if len(blob) == 0 || HasExif(jpeg) {
		return jpeg, nil
	}

	payload := make([]byte, 0, len(exifHeader)+len(blob))
	if !bytes.HasPrefix(blob, exifHeader) {
		payload = append(payload, exifHeader...)
	}
	payload = append(payload, blob...)
	resetOrientation(payload[len(exifHeader):])
	// Segment length includes its own two bytes.
	if len(payload)+2 > 0xFFFF {
		return jpeg, nil
	}

	out := make([]byte, 0, len(jpeg)+len(payload)+4)
	out = append(out, 0xFF, 0xD8, 0xFF, 0xE1)
	out = binary.BigEndian.AppendUint16(out, uint16(len(payload)+2))
	out = append(out, payload...)
	out = append(out, jpeg[2:]...)

	if !HasExif(out) {
		return jpeg, nil
	}
	return out, nil
}

// resetOrientation sets the IFD0 Orientation entry of a TIFF structure to 1
// in place. Malformed input is left alone.
func resetOrientation(tiff []byte) {
	if len(tiff) < 8 {
		return
	}
	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return
	}

	ifd := int(order.Uint32(tiff[4:8]))
	if ifd < 8 || ifd+2 > len(tiff) {
		return
	}
	n := int(order.Uint16(tiff[ifd:]))
	for i := 0; i < n; i++ {
		entry := ifd + 2 + i*12
		if entry+12 > len(tiff) {
			return
		}
		if order.Uint16(tiff[entry:]) == orientationTag && order.Uint16(tiff[entry+2:]) == tiffShort {
			order.PutUint16(tiff[entry+8:], 1)
			return
		}
	}
}
