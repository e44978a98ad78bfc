package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"gaul-gnss/internal/baro"
	"gaul-gnss/internal/gps"
)

func newSummaryTicker(d time.Duration) *time.Ticker {
	if d <= 0 {
		d = 10 * time.Second
	}
	return time.NewTicker(d)
}

func comma(v uint64) string { return humanize.Comma(int64(v)) }

// formatSummary renders one periodic status line. Read failures are counted
// here instead of being logged one by one.
func formatSummary(g gps.Snapshot, b baro.Snapshot, sent, failures uint64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "gps summary running=%v ok=%s framing=%s not_rmc=%s parse=%s dropped=%s",
		g.Running, comma(g.SentencesOK), comma(g.FramingErrors), comma(g.NotRMC), comma(g.ParseErrors), comma(g.BytesDropped))
	if g.HaveReading {
		fmt.Fprintf(&sb, " %s", g.Reading)
	}
	if g.DistanceFromOriginM != nil {
		fmt.Fprintf(&sb, " dist_m=%s", humanize.Commaf(math.Round(*g.DistanceFromOriginM)))
	}
	if b.Enabled {
		if b.Valid {
			fmt.Fprintf(&sb, " baro_alt_m=%.2f", b.AltitudeM)
		} else {
			fmt.Fprintf(&sb, " baro=invalid")
		}
	}
	if sent > 0 || failures > 0 {
		fmt.Fprintf(&sb, " telemetry_sent=%s telemetry_failures=%s", comma(sent), comma(failures))
	}
	if g.LastError != "" {
		fmt.Fprintf(&sb, " last_error=%q", g.LastError)
	}
	return sb.String()
}
