package media

import (
	"bytes"
	"encoding/binary"
	"os"
)

// headerProbeSize bounds how much of the file FastDuration inspects. The
// mvhd box sits inside moov, which faststart-packed MP4s place up front.
const headerProbeSize = 16384

// FastDuration reads the duration of an MP4 file straight out of its mvhd
// box without spawning a subprocess. Returns DurationUnknown when the box
// is absent (moov at end of file, non-MP4 container) or malformed; it
// never returns an error. Used for bulk duration checks over large
// candidate sets where a full probe per file would be wasteful.
func FastDuration(path string) float64 {
	f, err := os.Open(path)
	if err != nil {
		return DurationUnknown
	}
	defer f.Close()

	buf := make([]byte, headerProbeSize)
	n, err := f.Read(buf)
	if n == 0 && err != nil {
		return DurationUnknown
	}
	return parseMvhd(buf[:n])
}

// parseMvhd extracts timescale and duration from the first mvhd box found
// in data. Layout after the 4-byte type tag: 1 byte version, 3 bytes
// flags, then for version 0: ctime(4) mtime(4) timescale(4) duration(4);
// for version 1 the times are 8 bytes each and duration is 8 bytes.
func parseMvhd(data []byte) float64 {
	pos := bytes.Index(data, []byte("mvhd"))
	if pos <= 0 {
		return DurationUnknown
	}

	versionPos := pos + 4
	if versionPos >= len(data) {
		return DurationUnknown
	}
	version := data[versionPos]

	var timescale uint32
	var duration uint64

	switch version {
	case 0:
		// version(1) + flags(3) + ctime(4) + mtime(4)
		tsPos := pos + 4 + 4 + 8
		if tsPos+8 > len(data) {
			return DurationUnknown
		}
		timescale = binary.BigEndian.Uint32(data[tsPos:])
		duration = uint64(binary.BigEndian.Uint32(data[tsPos+4:]))
	case 1:
		// version(1) + flags(3) + ctime(8) + mtime(8)
		tsPos := pos + 4 + 4 + 16
		if tsPos+12 > len(data) {
			return DurationUnknown
		}
		timescale = binary.BigEndian.Uint32(data[tsPos:])
		duration = binary.BigEndian.Uint64(data[tsPos+4:])
	default:
		return DurationUnknown
	}

	if timescale == 0 || duration == 0 {
		return DurationUnknown
	}
	return float64(duration) / float64(timescale)
}
