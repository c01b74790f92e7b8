package pulse

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"github.com/bft-labs/mixlink/pkg/volume"
)

const (
	sinkInputHeader = "Sink Input #"
	propName        = "application.name"
	propBinary      = "application.process.binary"
)

// sinkInput is one record of `pactl list sink-inputs`.
type sinkInput struct {
	ID        int
	Name      string
	Binary    string
	Volume    int
	HasVolume bool
	Muted     bool
}

// Level returns the effective volume: zero when muted.
func (s sinkInput) Level() int {
	if s.Muted {
		return 0
	}
	return s.Volume
}

// parseSinkInputs parses the text output of `pactl list sink-inputs`.
// Records with an unparsable header are skipped.
func parseSinkInputs(out []byte) []sinkInput {
	var (
		inputs []sinkInput
		cur    *sinkInput
	)
	flush := func() {
		if cur != nil {
			inputs = append(inputs, *cur)
			cur = nil
		}
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if rest, ok := strings.CutPrefix(line, sinkInputHeader); ok {
			flush()
			id, err := strconv.Atoi(strings.TrimSpace(rest))
			if err != nil {
				continue
			}
			cur = &sinkInput{ID: id}
			continue
		}
		if cur == nil {
			continue
		}

		switch {
		case strings.HasPrefix(line, "Volume:"):
			if v, ok := parsePercent(line); ok {
				cur.Volume, cur.HasVolume = v, true
			}
		case strings.HasPrefix(line, "Mute:"):
			cur.Muted = parseMute(line)
		default:
			if key, val, ok := parseProperty(line); ok {
				switch key {
				case propName:
					cur.Name = val
				case propBinary:
					cur.Binary = val
				}
			}
		}
	}
	flush()
	return inputs
}

// parsePercent extracts the first channel percentage from a Volume: line,
// e.g. "Volume: front-left: 32768 /  50% / -18.06 dB, ...".
func parsePercent(line string) (int, bool) {
	before, _, found := strings.Cut(line, "%")
	if !found {
		return 0, false
	}
	fields := strings.Fields(before)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return 0, false
	}
	return volume.Clamp(v), true
}

// parseMute reports whether a "Mute: yes|no" line says muted.
func parseMute(line string) bool {
	_, val, _ := strings.Cut(line, ":")
	return strings.TrimSpace(val) == "yes"
}

// parseProperty splits `key = "value"`.
func parseProperty(line string) (string, string, bool) {
	key, val, ok := strings.Cut(line, " = ")
	if !ok {
		return "", "", false
	}
	val = strings.TrimSpace(val)
	if len(val) >= 2 && strings.HasPrefix(val, `"`) && strings.HasSuffix(val, `"`) {
		val = val[1 : len(val)-1]
	}
	return strings.TrimSpace(key), val, true
}
