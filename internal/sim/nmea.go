package sim

import (
	"fmt"
	"math"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

// Satellite is one entry of the simulated constellation. Untracked
// satellites are reported in GSV with blank elevation, azimuth and SNR.
type Satellite struct {
	ID        int
	Elevation int
	Azimuth   int
	SNR       int
	Tracked   bool
	Used      bool
}

// DefaultConstellation has five tracked satellites (four used in the fix)
// and one that is in view but not tracked.
var DefaultConstellation = []Satellite{
	{ID: 3, Elevation: 67, Azimuth: 120, SNR: 42, Tracked: true, Used: true},
	{ID: 7, Elevation: 41, Azimuth: 61, SNR: 38, Tracked: true, Used: true},
	{ID: 11, Elevation: 23, Azimuth: 298, SNR: 33, Tracked: true, Used: true},
	{ID: 19, Elevation: 15, Azimuth: 204, SNR: 29, Tracked: true, Used: true},
	{ID: 22, Elevation: 8, Azimuth: 32, SNR: 17, Tracked: true},
	{ID: 28},
}

// NMEASim renders a full GGA/GSA/GSV/RMC/VTG epoch for a simulated receiver.
type NMEASim struct {
	Track
	AltM       float64
	GeoidSepM  float64
	GroundKt   float64
	Talker     string
	Satellites []Satellite
}

func (s NMEASim) talker() string {
	if t := strings.TrimSpace(s.Talker); t != "" {
		return strings.ToUpper(t)
	}
	return "GP"
}

func (s NMEASim) satellites() []Satellite {
	if len(s.Satellites) == 0 {
		return DefaultConstellation
	}
	return s.Satellites
}

// Epoch returns the sentences a receiver emits once per fix, in the usual
// order, each with a checksum and without line terminator.
func (s NMEASim) Epoch(now time.Time) []string {
	now = now.UTC()
	lat, lon, course := s.Position(now)
	latStr, ns := formatDegMin(lat, 2, "N", "S")
	lonStr, ew := formatDegMin(lon, 3, "E", "W")
	ts := now.Format("150405") + fmt.Sprintf(".%03d", now.Nanosecond()/int(time.Millisecond))
	date := now.Format("020106")
	sats := s.satellites()

	used := make([]string, 12)
	nUsed := 0
	for _, sat := range sats {
		if sat.Used && nUsed < len(used) {
			used[nUsed] = fmt.Sprintf("%02d", sat.ID)
			nUsed++
		}
	}
	const pdop, hdop, vdop = 1.8, 1.0, 1.5

	t := s.talker()
	out := make([]string, 0, 8)
	out = append(out, stamp(fmt.Sprintf("%sGGA,%s,%s,%s,%s,%s,1,%02d,%.1f,%.1f,M,%.1f,M,,",
		t, ts, latStr, ns, lonStr, ew, nUsed, hdop, s.AltM, s.GeoidSepM)))
	out = append(out, stamp(fmt.Sprintf("%sGSA,A,3,%s,%.1f,%.1f,%.1f",
		t, strings.Join(used, ","), pdop, hdop, vdop)))
	out = append(out, gsv(t, sats)...)
	out = append(out, stamp(fmt.Sprintf("%sRMC,%s,A,%s,%s,%s,%s,%.1f,%.1f,%s,,,A",
		t, ts, latStr, ns, lonStr, ew, s.GroundKt, course, date)))
	out = append(out, stamp(fmt.Sprintf("%sVTG,%.1f,T,,M,%.1f,N,%.1f,K,A",
		t, course, s.GroundKt, s.GroundKt*1.852)))
	return out
}

func gsv(talker string, sats []Satellite) []string {
	total := (len(sats) + 3) / 4
	if total == 0 {
		total = 1
	}
	out := make([]string, 0, total)
	for part := 0; part < total; part++ {
		var b strings.Builder
		fmt.Fprintf(&b, "%sGSV,%d,%d,%02d", talker, total, part+1, len(sats))
		end := (part + 1) * 4
		if end > len(sats) {
			end = len(sats)
		}
		for _, sat := range sats[part*4 : end] {
			if sat.Tracked {
				fmt.Fprintf(&b, ",%02d,%02d,%03d,%02d", sat.ID, sat.Elevation, sat.Azimuth, sat.SNR)
			} else {
				fmt.Fprintf(&b, ",%02d,,,", sat.ID)
			}
		}
		out = append(out, stamp(b.String()))
	}
	return out
}

// stamp wraps payload as $payload*hh.
func stamp(payload string) string {
	return "$" + payload + "*" + nmea.Checksum(payload)
}

// formatDegMin renders signed decimal degrees as (d)ddmm.mmmm plus hemisphere.
func formatDegMin(v float64, degDigits int, pos, neg string) (string, string) {
	hemi := pos
	if v < 0 {
		hemi = neg
		v = -v
	}
	deg := math.Floor(v)
	mins := (v - deg) * 60
	if mins >= 59.99995 {
		deg++
		mins = 0
	}
	return fmt.Sprintf("%0*d%07.4f", degDigits, int(deg), mins), hemi
}
