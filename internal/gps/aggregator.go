package gps

import (
	"context"
	"strconv"
	"strings"
	"sync"
)

// Outcome is the result of classifying one line.
type Outcome int

const (
	// OutcomeUnknown: no template identifier matched.
	OutcomeUnknown Outcome = iota
	// OutcomeRejected: identifier matched but a field failed validation.
	OutcomeRejected
	// OutcomeIgnored: valid sentence carrying a not-available/void flag.
	OutcomeIgnored
	// OutcomePartial: GSV part buffered, report not yet complete.
	OutcomePartial
	// OutcomeApplied: the sentence updated NavState.
	OutcomeApplied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRejected:
		return "rejected"
	case OutcomeIgnored:
		return "ignored"
	case OutcomePartial:
		return "partial"
	case OutcomeApplied:
		return "applied"
	default:
		return "unknown"
	}
}

// Observer is notified once per classified line, in arrival order, outside
// the state lock. kind is "" for OutcomeUnknown.
type Observer interface {
	ObserveSentence(kind string, outcome Outcome, line string)
}

// SatelliteInfo is one satellite from a GSV report. Nil fields were blank on
// the wire (satellite in view but not tracked).
type SatelliteInfo struct {
	Elevation *int `json:"elevation_deg,omitempty"`
	Azimuth   *int `json:"azimuth_deg,omitempty"`
	SNR       *int `json:"snr_db,omitempty"`
}

// NavState is a copy of the aggregated navigation record.
type NavState struct {
	// UTCTime is hhmmss.sss read as a number.
	UTCTime float64 `json:"utc_time"`
	// Date is ddmmyy.
	Date int `json:"date"`

	LatDeg float64 `json:"lat_deg"`
	LonDeg float64 `json:"lon_deg"`

	// FixQuality: 0 none, 1 GPS, 2 differential, 3 PPS.
	FixQuality int     `json:"fix_quality"`
	AltitudeM  float64 `json:"altitude_m"`
	GeoidSepM  float64 `json:"geoid_sep_m"`

	SatellitesInView int                   `json:"satellites_in_view"`
	SatellitesUsed   []int                 `json:"satellites_used"`
	Satellites       map[int]SatelliteInfo `json:"satellites"`

	PDOP float64 `json:"pdop"`
	HDOP float64 `json:"hdop"`
	VDOP float64 `json:"vdop"`

	HeadingDeg  float64 `json:"heading_deg"`
	VelocityKmh float64 `json:"velocity_kmh"`
}

// HasFix reports whether the last GGA carried a fix.
func (n NavState) HasFix() bool { return n.FixQuality != 0 }

func (n NavState) clone() NavState {
	out := n
	if n.SatellitesUsed != nil {
		out.SatellitesUsed = append([]int(nil), n.SatellitesUsed...)
	}
	if n.Satellites != nil {
		out.Satellites = make(map[int]SatelliteInfo, len(n.Satellites))
		for id, info := range n.Satellites {
			out.Satellites[id] = info.clone()
		}
	}
	return out
}

func (s SatelliteInfo) clone() SatelliteInfo {
	return SatelliteInfo{Elevation: copyInt(s.Elevation), Azimuth: copyInt(s.Azimuth), SNR: copyInt(s.SNR)}
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

type AggregatorOptions struct {
	// Talkers lists accepted talker IDs; defaults to GP.
	Talkers []string
	// VerifyChecksum rejects sentences whose *hh suffix is wrong.
	VerifyChecksum bool
	Observers      []Observer
}

// Aggregator turns NMEA lines into NavState updates.
//
// A single mutex guards the whole record, including the GSV reassembly
// buffer. Each sentence computes its values first and commits them in one
// critical section, so readers never see half of a sentence.
type Aggregator struct {
	templates      []template
	verifyChecksum bool
	observers      []Observer

	mu       sync.Mutex
	nav      NavState
	gsvParts [][]string
}

func NewAggregator(opts AggregatorOptions) (*Aggregator, error) {
	templates, err := compileTemplates(opts.Talkers)
	if err != nil {
		return nil, err
	}
	return &Aggregator{
		templates:      templates,
		verifyChecksum: opts.VerifyChecksum,
		observers:      append([]Observer(nil), opts.Observers...),
	}, nil
}

// HandleLine classifies one raw line and applies it. Empty lines are ignored.
func (a *Aggregator) HandleLine(line string) {
	if line == "" {
		return
	}
	kind, outcome := a.classify(line)
	for _, o := range a.observers {
		o.ObserveSentence(kind, outcome, line)
	}
}

func (a *Aggregator) classify(line string) (string, Outcome) {
	rejectedKind := ""
	for i := range a.templates {
		t := &a.templates[i]
		fields, sentence, ok := t.match(line)
		if !ok {
			if rejectedKind == "" && strings.HasPrefix(line, t.ident) {
				rejectedKind = t.kind
			}
			continue
		}
		if a.verifyChecksum && !checksumOK(sentence) {
			return t.kind, OutcomeRejected
		}
		return t.kind, t.apply(a, fields)
	}
	if rejectedKind != "" {
		return rejectedKind, OutcomeRejected
	}
	return "", OutcomeUnknown
}

// Run applies lines from ch until it is closed or ctx ends.
func (a *Aggregator) Run(ctx context.Context, ch <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-ch:
			if !ok {
				return
			}
			a.HandleLine(line)
		}
	}
}

// GGA: Global Positioning System Fix Data
//
//	1 time, 2-3 lat, 4-5 lon, 6 fix, 7 sats, 8 hdop,
//	9 altitude, 10 units, 11 geoid separation, 12 units
func (a *Aggregator) applyGGA(f []string) Outcome {
	ts, ok1 := parseFloat(f[1])
	lat, ok2 := parseFloat(f[2])
	lon, ok3 := parseFloat(f[4])
	fix, err1 := strconv.Atoi(f[6])
	sats, err2 := strconv.Atoi(f[7])
	hdop, ok4 := parseFloat(f[8])
	alt, ok5 := parseFloat(f[9])
	geoid, ok6 := parseFloat(f[11])
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) || err1 != nil || err2 != nil {
		return OutcomeRejected
	}
	latDeg := degMinToDecimal(lat, f[3])
	lonDeg := degMinToDecimal(lon, f[5])

	a.mu.Lock()
	a.nav.UTCTime = ts
	a.nav.LatDeg = latDeg
	a.nav.LonDeg = lonDeg
	a.nav.FixQuality = fix
	a.nav.SatellitesInView = sats
	a.nav.HDOP = hdop
	a.nav.AltitudeM = alt
	a.nav.GeoidSepM = geoid
	a.mu.Unlock()
	return OutcomeApplied
}

// GSA: DOP and active satellites
//
//	1 mode M/A, 2 fix mode (1 = not available), 3-14 satellite IDs,
//	15 pdop, 16 hdop, 17 vdop
func (a *Aggregator) applyGSA(f []string) Outcome {
	if f[2] == "1" {
		// Keep the last solution's satellites and DOP.
		return OutcomeIgnored
	}
	used := make([]int, 0, 12)
	for _, slot := range f[3:15] {
		if slot == "" {
			continue
		}
		id, err := strconv.Atoi(slot)
		if err != nil {
			return OutcomeRejected
		}
		used = append(used, id)
	}
	pdop, _ := parseFloat(f[15])
	hdop, _ := parseFloat(f[16])
	vdop, _ := parseFloat(f[17])

	a.mu.Lock()
	a.nav.SatellitesUsed = used
	a.nav.PDOP = pdop
	a.nav.HDOP = hdop
	a.nav.VDOP = vdop
	a.mu.Unlock()
	return OutcomeApplied
}

// GSV: Satellites in view, split over several parts
//
//	1 total parts, 2 part index, 3 satellites in view,
//	then up to 4 groups of (id, elevation, azimuth, snr)
func (a *Aggregator) applyGSV(f []string) Outcome {
	total, _ := strconv.Atoi(f[1])
	index, _ := strconv.Atoi(f[2])

	a.mu.Lock()
	defer a.mu.Unlock()

	if index == 1 {
		a.gsvParts = a.gsvParts[:0]
	} else if index != len(a.gsvParts)+1 || (len(a.gsvParts) > 0 && a.gsvParts[0][1] != f[1]) {
		// Missed a part; wait for the next report to start.
		a.gsvParts = a.gsvParts[:0]
		return OutcomeIgnored
	}
	a.gsvParts = append(a.gsvParts, f)
	if len(a.gsvParts) != total {
		return OutcomePartial
	}

	sats := make(map[int]SatelliteInfo)
	for _, part := range a.gsvParts {
		for g := gsvFixed; g+gsvGroupLen <= len(part); g += gsvGroupLen {
			group := part[g : g+gsvGroupLen]
			if blankGroup(group) {
				continue
			}
			id, err := strconv.Atoi(group[0])
			if err != nil {
				continue
			}
			sats[id] = SatelliteInfo{
				Elevation: parseOptInt(group[1]),
				Azimuth:   parseOptInt(group[2]),
				SNR:       parseOptInt(group[3]),
			}
		}
	}
	a.gsvParts = a.gsvParts[:0]
	a.nav.Satellites = sats
	a.nav.SatellitesInView = len(sats)
	return OutcomeApplied
}

// RMC: Recommended Minimum Specific GNSS Data
//
//	1 time, 2 status A/V, 3-6 position, 7 speed (kt), 8 course, 9 date
func (a *Aggregator) applyRMC(f []string) Outcome {
	if f[2] != "A" {
		return OutcomeIgnored
	}
	kt, ok1 := parseFloat(f[7])
	hdg, ok2 := parseFloat(f[8])
	date, err := strconv.Atoi(f[9])
	if !ok1 || !ok2 || err != nil {
		return OutcomeRejected
	}

	a.mu.Lock()
	a.nav.VelocityKmh = kt * knotsToKmh
	a.nav.HeadingDeg = hdg
	a.nav.Date = date
	a.mu.Unlock()
	return OutcomeApplied
}

// VTG: Course over ground and ground speed
//
//	1 course true, 3 course magnetic, 5 speed (kt), 7 speed (km/h)
func (a *Aggregator) applyVTG(f []string) Outcome {
	hdg, ok1 := parseFloat(f[1])
	kt, ok2 := parseFloat(f[5])
	if !ok1 || !ok2 {
		return OutcomeRejected
	}

	a.mu.Lock()
	a.nav.HeadingDeg = hdg
	a.nav.VelocityKmh = kt * knotsToKmh
	a.mu.Unlock()
	return OutcomeApplied
}

func (a *Aggregator) Snapshot() NavState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nav.clone()
}

func (a *Aggregator) UTCTime() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nav.UTCTime
}

func (a *Aggregator) Date() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nav.Date
}

// Location returns latitude and longitude in signed decimal degrees.
func (a *Aggregator) Location() (lat, lon float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nav.LatDeg, a.nav.LonDeg
}

func (a *Aggregator) HasFix() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nav.HasFix()
}

func (a *Aggregator) FixQuality() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nav.FixQuality
}

// Altitude is meters above mean sea level.
func (a *Aggregator) Altitude() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nav.AltitudeM
}

func (a *Aggregator) GeoidSeparation() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nav.GeoidSepM
}

func (a *Aggregator) PDOP() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nav.PDOP
}

func (a *Aggregator) HDOP() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nav.HDOP
}

func (a *Aggregator) VDOP() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nav.VDOP
}

func (a *Aggregator) SatellitesInView() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nav.SatellitesInView
}

// SatellitesUsed returns the IDs used in the fix solution (from GSA).
func (a *Aggregator) SatellitesUsed() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.nav.SatellitesUsed...)
}

// SatellitesUsedInfo returns elevation/azimuth/SNR for every satellite in
// the last complete GSV report.
func (a *Aggregator) SatellitesUsedInfo() map[int]SatelliteInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[int]SatelliteInfo, len(a.nav.Satellites))
	for id, info := range a.nav.Satellites {
		out[id] = info.clone()
	}
	return out
}

// Heading is degrees true.
func (a *Aggregator) Heading() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nav.HeadingDeg
}

// Velocity is ground speed in km/h.
func (a *Aggregator) Velocity() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nav.VelocityKmh
}
