package nmea

import (
	"errors"
	"fmt"
	"testing"

	gonmea "github.com/adrianmo/go-nmea"
	"github.com/stretchr/testify/require"
)

const (
	rmcFix   = "$GNRMC,080608.000,A,3029.461489,N,11430.072002,E,0.00,148.41,210423,,,D,V*09\r\n"
	rmcNoFix = "$GNRMC,080608.000,V,,,,,,,210423,,,N,V*xx\r\n"
)

func TestParseRMC_Fix(t *testing.T) {
	fix, err := ParseRMC([]byte(rmcFix))
	require.NoError(t, err)
	require.True(t, fix.Valid)
	require.Equal(t, Time{Hours: 8, Minutes: 6, Seconds: 8}, fix.Time)
	require.InDelta(t, 30.4910248, fix.Latitude, 1e-6)
	require.InDelta(t, 114.5012000, fix.Longitude, 1e-6)
	require.Equal(t, "08:06:08.000", fix.Time.String())
}

func TestParseRMC_NoFixZeroesCoordinates(t *testing.T) {
	fix, err := ParseRMC([]byte(rmcNoFix))
	require.NoError(t, err)
	require.False(t, fix.Valid)
	require.Zero(t, fix.Latitude)
	require.Zero(t, fix.Longitude)
	require.Equal(t, 8, fix.Time.Hours)
}

func TestParseRMC_NoFixIgnoresGarbageAfterStatus(t *testing.T) {
	fix, err := ParseRMC([]byte("$GPRMC,235959,V,zz,Q,yy,X,,,\r\n"))
	require.NoError(t, err)
	require.False(t, fix.Valid)
	require.Zero(t, fix.Latitude)
	require.Zero(t, fix.Longitude)
}

func TestParseRMC_HemisphereSigns(t *testing.T) {
	cases := []struct {
		latHemi, lonHemi string
		latSign, lonSign float64
	}{
		{"N", "E", 1, 1},
		{"S", "E", -1, 1},
		{"N", "W", 1, -1},
		{"S", "W", -1, -1},
	}
	for _, tc := range cases {
		t.Run(tc.latHemi+tc.lonHemi, func(t *testing.T) {
			s := fmt.Sprintf("$GPRMC,123519,A,4807.0380,%s,01131.0000,%s,022.4,084.4,230394,003.1,W*6A\r\n", tc.latHemi, tc.lonHemi)
			fix, err := ParseRMC([]byte(s))
			require.NoError(t, err)
			require.InDelta(t, tc.latSign*(48+7.038/60), fix.Latitude, 1e-9)
			require.InDelta(t, tc.lonSign*(11+31.0/60), fix.Longitude, 1e-9)
		})
	}
}

func TestParseRMC_TimeVariants(t *testing.T) {
	cases := []struct {
		name string
		tok  string
		want Time
	}{
		{"NoFraction", "123519", Time{12, 35, 19}},
		{"Millis", "123519.250", Time{12, 35, 19.25}},
		{"ShortFraction", "000000.5", Time{0, 0, 0.5}},
		{"LeapSecond", "235960.000", Time{23, 59, 60}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fix, err := ParseRMC([]byte("$GPRMC," + tc.tok + ",V,,,,\r\n"))
			require.NoError(t, err)
			require.Equal(t, tc.want.Hours, fix.Time.Hours)
			require.Equal(t, tc.want.Minutes, fix.Time.Minutes)
			require.InDelta(t, tc.want.Seconds, fix.Time.Seconds, 1e-9)
		})
	}
}

func TestParseRMC_FieldErrors(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		field string
	}{
		{"ShortTime", "$GPRMC,12351,A,4807.0380,N,01131.0000,E\r\n", "time"},
		{"TimeMissingDot", "$GPRMC,123519x250,A,4807.0380,N,01131.0000,E\r\n", "time"},
		{"TimeNotDigits", "$GPRMC,ab3519,A,4807.0380,N,01131.0000,E\r\n", "time"},
		{"NegativeHours", "$GPRMC,-10000,V,,,,\r\n", "time"},
		{"NegativeMinutes", "$GPRMC,00-100,V,,,,\r\n", "time"},
		{"SignedHoursAndMinutes", "$GPRMC,+1+100,V,,,,\r\n", "time"},
		{"BadStatus", "$GPRMC,123519,X,4807.0380,N,01131.0000,E\r\n", "status"},
		{"EmptyStatus", "$GPRMC,123519,,4807.0380,N,01131.0000,E\r\n", "status"},
		{"ShortLatitude", "$GPRMC,123519,A,4807.038,N,01131.0000,E\r\n", "latitude"},
		{"LatitudeDotMisplaced", "$GPRMC,123519,A,48070.380,N,01131.0000,E\r\n", "latitude"},
		{"SignedLatitudeDegrees", "$GPRMC,123519,A,+807.0380,N,01131.0000,E\r\n", "latitude"},
		{"SignedLatitudeMinutes", "$GPRMC,123519,A,48-7.0380,N,01131.0000,E\r\n", "latitude"},
		{"EmptyLatitude", "$GPRMC,123519,A,,N,01131.0000,E\r\n", "latitude"},
		{"BadLatHemisphere", "$GPRMC,123519,A,4807.0380,E,01131.0000,E\r\n", "latitude hemisphere"},
		{"ShortLongitude", "$GPRMC,123519,A,4807.0380,N,01131.000,E\r\n", "longitude"},
		{"LongitudeDotMisplaced", "$GPRMC,123519,A,4807.0380,N,0113.10000,E\r\n", "longitude"},
		{"SignedLongitudeDegrees", "$GPRMC,123519,A,4807.0380,N,-1131.0000,E\r\n", "longitude"},
		{"BadLonHemisphere", "$GPRMC,123519,A,4807.0380,N,01131.0000,N\r\n", "longitude hemisphere"},
		{"Truncated", "$GPRMC,123519,A,4807.0380,N\r\n", "longitude"},
		{"NoDollar", "GPRMC,123519,A,4807.0380,N,01131.0000,E\r\n", "id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fix, err := ParseRMC([]byte(tc.in))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrParse), "err=%v", err)
			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			require.Equal(t, tc.field, fe.Field)
			require.Equal(t, Fix{}, fix)
		})
	}
}

func TestParseRMC_IgnoresTrailingFields(t *testing.T) {
	a, err := ParseRMC([]byte("$GPRMC,123519,A,4807.0380,N,01131.0000,E,022.4,084.4,230394,003.1,W*6A\r\n"))
	require.NoError(t, err)
	b, err := ParseRMC([]byte("$GPRMC,123519,A,4807.0380,N,01131.0000,E,not,a,number\r\n"))
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestParseRMC_ZeroPaddedBuffer(t *testing.T) {
	buf := NewSentenceBuffer(128)
	for _, b := range []byte(rmcFix) {
		require.True(t, buf.Append(b))
	}
	// The framer hands over the written portion; a zero-filled tail must not
	// confuse the parser either.
	padded := append(buf.Bytes(), make([]byte, 16)...)
	fix, err := ParseRMC(padded)
	require.NoError(t, err)
	require.True(t, fix.Valid)
}

func TestParseRMC_AgreesWithGoNMEA(t *testing.T) {
	bodies := []string{
		"GPRMC,123519,A,4807.0380,N,01131.0000,E,022.4,084.4,230394,003.1,W",
		"GNRMC,080608.000,A,3029.461489,N,11430.072002,E,0.00,148.41,210423,,",
		"GPRMC,225446.00,A,4916.451234,S,12311.123456,W,000.5,054.7,191194,020.3,E",
	}
	for _, body := range bodies {
		t.Run(body[:6], func(t *testing.T) {
			raw := fmt.Sprintf("$%s*%s", body, gonmea.Checksum(body))
			ref, err := gonmea.Parse(raw)
			require.NoError(t, err)
			rmc, ok := ref.(gonmea.RMC)
			require.True(t, ok, "type %T", ref)

			fix, err := ParseRMC([]byte(raw + "\r\n"))
			require.NoError(t, err)
			require.InDelta(t, rmc.Latitude, fix.Latitude, 1e-9)
			require.InDelta(t, rmc.Longitude, fix.Longitude, 1e-9)
			require.Equal(t, rmc.Time.Hour, fix.Time.Hours)
			require.Equal(t, rmc.Time.Minute, fix.Time.Minutes)
		})
	}
}

func TestIsRMC(t *testing.T) {
	require.True(t, IsRMC([]byte(rmcFix)))
	require.True(t, IsRMC([]byte("$GPRMC,")))
	require.True(t, IsRMC([]byte("$XXRMC")))
	require.False(t, IsRMC([]byte("$GPGGA,123519,4807.038,N")))
	require.False(t, IsRMC([]byte("$GPRM")))
	require.False(t, IsRMC(nil))
}

func TestCommand(t *testing.T) {
	require.Equal(t, "$PMTK314,0,1,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0*35\r\n",
		Command("PMTK314,0,1,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0"))
	require.Equal(t, "$PMTK886,2*2A\r\n", Command("$PMTK886,2"))
	require.Equal(t, byte(0x6A), Checksum("GPRMC,123519,A,4807.0380,N,01131.0000,E,022.4,084.4,230394,003.1,W"))
}

func TestSentenceBuffer(t *testing.T) {
	buf := NewSentenceBuffer(4)
	require.Equal(t, 4, buf.Cap())
	for _, b := range []byte("$abc") {
		require.True(t, buf.Append(b))
	}
	require.True(t, buf.Full())
	require.False(t, buf.Append('x'))
	require.Equal(t, "$abc", buf.String())

	buf.Reset()
	require.Equal(t, 0, buf.Len())
	require.Empty(t, buf.Bytes())
	require.Equal(t, []byte{0, 0, 0, 0}, buf.buf)
}
