package gps

// PMTK command bodies for MediaTek-based receivers (Quectel L76/L76-LM33).
// Source: LG76 Series GNSS Protocol Specification, section 2.3.
const (
	// CmdRMCOnly limits NMEA output to one RMC sentence per position fix.
	CmdRMCOnly = "PMTK314,0,1,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0,0"
	// CmdAviationMode selects the high-dynamics navigation profile
	// (large accelerations, up to 10 km altitude).
	CmdAviationMode = "PMTK886,2"
)

// DefaultCommands is sent once after the transport is opened.
func DefaultCommands() []string {
	return []string{CmdRMCOnly, CmdAviationMode}
}
