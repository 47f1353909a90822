package gps

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

const knotsToKmh = 1.852

// Field grammars shared by several sentence types.
const (
	patTime     = `[0-9]{6}(\.[0-9]+)?`
	patLatLon   = `[0-9]+\.[0-9]{2,}`
	patNS       = `[NS]`
	patEW       = `[EW]`
	patDecimal  = `[0-9]+\.[0-9]*`
	patSigned   = `-?[0-9]+\.[0-9]*`
	patOptDec   = `([0-9]+\.[0-9]*)?`
	patUnit     = `\w`
	patSatSlot  = `([0-9]{1,3})?`
	patSatID    = `[0-9]{1,3}`
	patElev     = `([0-9]{1,2})?`
	patAzimuth  = `([0-9]{1,3})?`
	patSNR      = `([0-9]{1,2})?`
	gsvFixed    = 4
	gsvGroupLen = 4
)

// sentenceKind describes one supported sentence type independent of talker.
// fields[0] stands in for the identifier and is never matched.
type sentenceKind struct {
	name   string
	fields []string
	// repeat is matched group-wise against fields past len(fields).
	repeat []string
	apply  func(a *Aggregator, f []string) Outcome
}

// Priority order is significant: the first template that matches wins.
var sentenceKinds = []sentenceKind{
	{
		name: "GGA",
		fields: []string{
			"",
			patTime,   // 1 utc hhmmss.sss
			patLatLon, // 2 latitude ddmm.mmmm
			patNS,     // 3
			patLatLon, // 4 longitude dddmm.mmmm
			patEW,     // 5
			`[0-3]`,   // 6 fix indicator
			`[0-9]{1,2}`,
			patDecimal, // 8 hdop
			patSigned,  // 9 altitude (m)
			patUnit,
			patSigned, // 11 geoid separation (m)
			patUnit,
		},
		apply: (*Aggregator).applyGGA,
	},
	{
		name: "GSA",
		fields: []string{
			"",
			`[MA]`,
			`[123]`, // 2 fix mode, 1 = not available
			patSatSlot, patSatSlot, patSatSlot, patSatSlot,
			patSatSlot, patSatSlot, patSatSlot, patSatSlot,
			patSatSlot, patSatSlot, patSatSlot, patSatSlot,
			patOptDec, // 15 pdop
			patOptDec, // 16 hdop
			patOptDec, // 17 vdop
		},
		apply: (*Aggregator).applyGSA,
	},
	{
		name: "GSV",
		fields: []string{
			"",
			`[1-9]`,      // 1 total parts
			`[1-9]`,      // 2 part index
			`[0-9]{1,3}`, // 3 satellites in view
		},
		repeat: []string{patSatID, patElev, patAzimuth, patSNR},
		apply:  (*Aggregator).applyGSV,
	},
	{
		name: "RMC",
		fields: []string{
			"",
			patTime,
			`[AV]`, // 2 status
			patLatLon,
			patNS,
			patLatLon,
			patEW,
			patDecimal, // 7 speed (knots)
			patDecimal, // 8 course true (deg)
			`[0-9]{6}`, // 9 date ddmmyy
		},
		apply: (*Aggregator).applyRMC,
	},
	{
		name: "VTG",
		fields: []string{
			"",
			patDecimal, // 1 course true
			`T`,
			patOptDec, // 3 course magnetic
			`M`,
			patDecimal, // 5 speed (knots)
			`N`,
			patDecimal, // 7 speed (km/h)
			`K`,
		},
		apply: (*Aggregator).applyVTG,
	},
}

// template is a compiled sentenceKind bound to a talker identifier.
type template struct {
	kind   string
	ident  string
	fields []*regexp.Regexp
	repeat []*regexp.Regexp
	apply  func(a *Aggregator, f []string) Outcome
}

func compileTemplates(talkers []string) ([]template, error) {
	if len(talkers) == 0 {
		talkers = []string{"GP"}
	}
	out := make([]template, 0, len(sentenceKinds)*len(talkers))
	for _, k := range sentenceKinds {
		fields, err := compileFields(k.fields)
		if err != nil {
			return nil, fmt.Errorf("gps: template %s: %w", k.name, err)
		}
		repeat, err := compileFields(k.repeat)
		if err != nil {
			return nil, fmt.Errorf("gps: template %s: %w", k.name, err)
		}
		for _, talker := range talkers {
			talker = strings.ToUpper(strings.TrimSpace(talker))
			out = append(out, template{
				kind:   k.name,
				ident:  "$" + talker + k.name,
				fields: fields,
				repeat: repeat,
				apply:  k.apply,
			})
		}
	}
	return out, nil
}

func compileFields(pats []string) ([]*regexp.Regexp, error) {
	if len(pats) == 0 {
		return nil, nil
	}
	out := make([]*regexp.Regexp, len(pats))
	for i, p := range pats {
		if i == 0 && p == "" {
			continue
		}
		re, err := regexp.Compile(`^(?:` + p + `)$`)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		out[i] = re
	}
	return out, nil
}

// match reports whether line is a valid instance of the template. On success
// it returns the comma-split fields (checksum stripped from the last one) and
// the sentence text starting at the last occurrence of the identifier.
func (t *template) match(line string) ([]string, string, bool) {
	if !strings.HasPrefix(line, t.ident) {
		return nil, "", false
	}
	// Bursts of concatenated sentences: keep what follows the last identifier.
	sentence := line[strings.LastIndex(line, t.ident):]
	fields := strings.Split(sentence, ",")
	if len(fields) < len(t.fields) {
		return nil, "", false
	}
	last := len(fields) - 1
	if star := strings.IndexByte(fields[last], '*'); star >= 0 {
		fields[last] = fields[last][:star]
	}
	for i := 1; i < len(t.fields); i++ {
		if !t.fields[i].MatchString(fields[i]) {
			return nil, "", false
		}
	}
	if len(t.repeat) > 0 {
		for g := len(t.fields); g+len(t.repeat) <= len(fields); g += len(t.repeat) {
			group := fields[g : g+len(t.repeat)]
			if blankGroup(group) {
				continue
			}
			for i, re := range t.repeat {
				if !re.MatchString(group[i]) {
					return nil, "", false
				}
			}
		}
	}
	return fields, sentence, true
}

func blankGroup(group []string) bool {
	for _, v := range group {
		if v != "" {
			return false
		}
	}
	return true
}

// checksumOK verifies the "*hh" suffix of sentence, if present.
func checksumOK(sentence string) bool {
	star := strings.LastIndexByte(sentence, '*')
	if star == -1 {
		return true
	}
	ck := sentence[star+1:]
	if len(ck) < 2 {
		return false
	}
	return strings.EqualFold(ck[:2], nmea.Checksum(strings.TrimPrefix(sentence[:star], "$")))
}

// degMinToDecimal converts ddmm.mmmm / dddmm.mmmm to signed decimal degrees.
func degMinToDecimal(v float64, hemi string) float64 {
	dec := math.Floor(v/100) + math.Mod(v, 100)/60
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return dec
}

func parseFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseOptInt(s string) *int {
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}
