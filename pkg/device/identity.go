package device

import (
	"fmt"
	"regexp"
	"strconv"
)

// Identity is the device identity parsed once per connection during the
// handshake.
type Identity struct {
	VersionString   string
	MaxFrequency    uint32
	BlastFrequency  uint32
	BufferSizeBytes uint32
	ChannelCount    int
}

// MinFrequency derives the minimum usable sample frequency from
// MaxFrequency, per the fixed device ratio.
func (id Identity) MinFrequency() uint32 {
	return uint32((uint64(id.MaxFrequency) * 2) / 65535)
}

var (
	freqLinePattern    = regexp.MustCompile(`^FREQ:(\d+)$`)
	blastLinePattern   = regexp.MustCompile(`^BLASTFREQ:(\d+)$`)
	bufferLinePattern  = regexp.MustCompile(`^BUFFER:(\d+)$`)
	channelsLinePattern = regexp.MustCompile(`^CHANNELS:(\d+)$`)
	versionPattern     = regexp.MustCompile(`^V(\d+)_(\d+)`)
)

// MinSupportedVersion is the minimum accepted {major, minor} version tuple.
// Devices reporting an older version fail the handshake.
var MinSupportedVersion = [2]int{1, 0}

func parseVersionTuple(s string) (major, minor int, ok bool) {
	m := versionPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	major, _ = strconv.Atoi(m[1])
	minor, _ = strconv.Atoi(m[2])
	return major, minor, true
}

// ParseMajorMinor extracts the {major, minor} version tuple from a device
// version string, for callers (the multi-device coordinator) that need to
// compare versions across member devices rather than just validate a
// minimum.
func ParseMajorMinor(versionString string) (major, minor int, ok bool) {
	return parseVersionTuple(versionString)
}

// versionAtLeast reports whether {major, minor} is >= min.
func versionAtLeast(major, minor int, min [2]int) bool {
	if major != min[0] {
		return major > min[0]
	}
	return minor >= min[1]
}

// ValidateVersion checks versionString against MinSupportedVersion. This is
// the "registered validator" referenced by the handshake description; it is
// a plain function rather than a pluggable interface since the device
// family has exactly one version scheme.
func ValidateVersion(versionString string) error {
	major, minor, ok := parseVersionTuple(versionString)
	if !ok {
		return fmt.Errorf("device: unparsable version string %q", versionString)
	}
	if !versionAtLeast(major, minor, MinSupportedVersion) {
		return fmt.Errorf("device: unsupported version %q, minimum is V%d_%d",
			versionString, MinSupportedVersion[0], MinSupportedVersion[1])
	}
	return nil
}

// parseUint32Line matches pattern against line and returns the captured
// positive integer, or an error describing what went wrong.
func parseUint32Line(pattern *regexp.Regexp, line, fieldName string) (uint32, error) {
	m := pattern.FindStringSubmatch(line)
	if m == nil {
		return 0, fmt.Errorf("device: malformed %s line %q", fieldName, line)
	}
	v, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("device: unparsable %s value in %q: %w", fieldName, line, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("device: non-positive %s value in %q", fieldName, line)
	}
	return uint32(v), nil
}

// parseIdentity parses the five fixed handshake lines into an Identity. The
// frequency line is validated first (before the version string) so that an
// invalid-frequency device fails with a frequency-specific error rather
// than being masked by a version failure that happens to come first in the
// wire order.
func parseIdentity(lines [5]string) (Identity, error) {
	freq, err := parseUint32Line(freqLinePattern, lines[1], "FREQ")
	if err != nil {
		return Identity{}, err
	}

	if err := ValidateVersion(lines[0]); err != nil {
		return Identity{}, err
	}

	blast, err := parseUint32Line(blastLinePattern, lines[2], "BLASTFREQ")
	if err != nil {
		return Identity{}, err
	}

	buffer, err := parseUint32Line(bufferLinePattern, lines[3], "BUFFER")
	if err != nil {
		return Identity{}, err
	}

	channels, err := parseUint32Line(channelsLinePattern, lines[4], "CHANNELS")
	if err != nil {
		return Identity{}, err
	}
	if channels < 1 || channels > 24 {
		return Identity{}, fmt.Errorf("device: channel count %d out of range [1,24]", channels)
	}

	return Identity{
		VersionString:   lines[0],
		MaxFrequency:    freq,
		BlastFrequency:  blast,
		BufferSizeBytes: buffer,
		ChannelCount:    int(channels),
	}, nil
}
