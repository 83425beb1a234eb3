package abc

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

type meter struct {
	num, den int
}

func (m meter) measure() *big.Rat { return big.NewRat(int64(m.num), int64(m.den)) }

// unitLength is the default L: for a meter: 1/16 below 3/4, else 1/8.
func (m meter) unitLength() *big.Rat {
	if m.num <= 0 || m.den <= 0 {
		return big.NewRat(1, 8)
	}
	if float64(m.num)/float64(m.den) < 0.75 {
		return big.NewRat(1, 16)
	}
	return big.NewRat(1, 8)
}

func parseMeter(value string) (meter, error) {
	v := strings.TrimSpace(value)
	switch v {
	case "", "C", "none":
		return meter{4, 4}, nil
	case "C|":
		return meter{2, 2}, nil
	}
	num, den, ok := strings.Cut(v, "/")
	if !ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return meter{}, fmt.Errorf("bad meter %q", value)
		}
		return meter{n, 1}, nil
	}
	// compound numerators like 2+3+2
	total := 0
	for _, part := range strings.Split(strings.TrimSpace(num), "+") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			return meter{}, fmt.Errorf("bad meter %q", value)
		}
		total += n
	}
	d, err := strconv.Atoi(strings.TrimSpace(den))
	if err != nil || d <= 0 {
		return meter{}, fmt.Errorf("bad meter %q", value)
	}
	return meter{total, d}, nil
}

// parseFraction reads "n" or "n/d".
func parseFraction(value string) (*big.Rat, error) {
	v := strings.TrimSpace(value)
	num, den, ok := strings.Cut(v, "/")
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("bad fraction %q", value)
	}
	if !ok {
		return big.NewRat(int64(n), 1), nil
	}
	d, err := strconv.Atoi(strings.TrimSpace(den))
	if err != nil || d <= 0 {
		return nil, fmt.Errorf("bad fraction %q", value)
	}
	return big.NewRat(int64(n), int64(d)), nil
}

// parseLength reads a note length suffix: "", "3", "/", "//", "/3", "3/2", "3/".
func parseLength(text string) (*big.Rat, error) {
	if text == "" {
		return big.NewRat(1, 1), nil
	}
	i := 0
	for i < len(text) && isDigit(text[i]) {
		i++
	}
	num := int64(1)
	if i > 0 {
		n, err := strconv.ParseInt(text[:i], 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("bad note length %q", text)
		}
		num = n
	}
	slashes := 0
	for i < len(text) && text[i] == '/' {
		slashes++
		i++
	}
	if slashes == 0 {
		if i != len(text) {
			return nil, fmt.Errorf("bad note length %q", text)
		}
		return big.NewRat(num, 1), nil
	}
	if slashes > 16 {
		return nil, fmt.Errorf("bad note length %q", text)
	}
	den := int64(1) << slashes
	if i < len(text) {
		d, err := strconv.ParseInt(text[i:], 10, 32)
		if err != nil || d == 0 {
			return nil, fmt.Errorf("bad note length %q", text)
		}
		den = d << (slashes - 1)
	}
	return big.NewRat(num, den), nil
}

type keySig struct {
	fifths int
	minor  bool
}

var letterFifths = map[byte]int{'C': 0, 'G': 1, 'D': 2, 'A': 3, 'E': 4, 'B': 5, 'F': -1}

// Offsets from the major key on the same tonic.
var modeFifths = map[string]int{
	"": 0, "maj": 0, "major": 0, "ion": 0, "ionian": 0,
	"m": -3, "min": -3, "minor": -3, "aeo": -3, "aeolian": -3,
	"mix": -1, "mixolydian": -1,
	"dor": -2, "dorian": -2,
	"phr": -4, "phrygian": -4,
	"lyd": 1, "lydian": 1,
	"loc": -5, "locrian": -5,
}

func parseKey(value string) (keySig, error) {
	v := strings.TrimSpace(value)
	if v == "" || v == "none" || strings.HasPrefix(v, "HP") || strings.HasPrefix(v, "Hp") {
		return keySig{}, nil
	}
	root := v[0] &^ 0x20
	fifths, ok := letterFifths[root]
	if !ok {
		return keySig{}, fmt.Errorf("bad key %q", value)
	}
	i := 1
	for i < len(v) && (v[i] == '#' || v[i] == 'b') {
		if v[i] == '#' {
			fifths += 7
		} else {
			fifths -= 7
		}
		i++
	}
	mode := strings.ToLower(strings.TrimSpace(v[i:]))
	if f := strings.Fields(mode); len(f) > 0 {
		mode = f[0]
	} else {
		mode = ""
	}
	if strings.Contains(mode, "=") {
		mode = "" // clef= and friends
	}
	off, ok := modeFifths[mode]
	if !ok && len(mode) >= 3 {
		off, ok = modeFifths[mode[:3]]
	}
	if !ok {
		return keySig{}, fmt.Errorf("unknown mode %q in key %q", mode, value)
	}
	fifths += off
	if fifths < -7 || fifths > 7 {
		return keySig{}, fmt.Errorf("key %q needs %d accidentals", value, fifths)
	}
	return keySig{fifths: fifths, minor: off == -3}, nil
}

var (
	sharpOrder = [7]byte{'F', 'C', 'G', 'D', 'A', 'E', 'B'}
	flatOrder  = [7]byte{'B', 'E', 'A', 'D', 'G', 'C', 'F'}
)

// table gives the semitone shift per letter index (C D E F G A B).
func (k keySig) table() [7]int {
	var t [7]int
	order, shift, n := sharpOrder, 1, k.fifths
	if n < 0 {
		order, shift, n = flatOrder, -1, -n
	}
	for i := 0; i < n && i < 7; i++ {
		t[letterIndex(order[i])] = shift
	}
	return t
}

func letterIndex(letter byte) int {
	return strings.IndexByte("CDEFGAB", letter&^0x20)
}

var quoted = regexp.MustCompile(`"[^"]*"`)

// parseTempo reads Q: as "120", "1/4=120" or `"Allegro" 3/8=80`, returning
// microseconds per quarter note.
func parseTempo(value string) (uint32, error) {
	v := strings.TrimSpace(quoted.ReplaceAllString(value, ""))
	if v == "" {
		return 0, fmt.Errorf("empty tempo")
	}
	beat := big.NewRat(1, 4)
	bpmText := v
	if lhs, rhs, ok := strings.Cut(v, "="); ok {
		bpmText = rhs
		beat = new(big.Rat)
		// several beats may be summed: 1/4 3/8=60
		for _, part := range strings.Fields(lhs) {
			f, err := parseFraction(part)
			if err != nil {
				return 0, fmt.Errorf("bad tempo %q", value)
			}
			beat.Add(beat, f)
		}
		if beat.Sign() == 0 {
			return 0, fmt.Errorf("bad tempo %q", value)
		}
	}
	bpm, err := strconv.ParseFloat(strings.TrimSpace(bpmText), 64)
	if err != nil || bpm <= 0 {
		return 0, fmt.Errorf("bad tempo %q", value)
	}
	quarters, _ := new(big.Rat).Mul(beat, big.NewRat(4, 1)).Float64()
	mspq := 60e6 / (bpm * quarters)
	if mspq < 1 || mspq > 0xFFFFFF {
		return 0, fmt.Errorf("tempo %q out of range", value)
	}
	return uint32(mspq + 0.5), nil
}

var voiceName = regexp.MustCompile(`(?:name|nm)\s*=\s*"([^"]*)"`)

// parseVoice returns the voice id and display name of a V: field.
func parseVoice(value string) (id, name string) {
	f := strings.Fields(value)
	if len(f) == 0 {
		return "", ""
	}
	id = f[0]
	name = id
	if m := voiceName.FindStringSubmatch(value); m != nil {
		name = m[1]
	}
	return id, name
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool { return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' }
func isLetter(c byte) bool {
	return c >= 'A' && c <= 'G' || c >= 'a' && c <= 'g'
}
