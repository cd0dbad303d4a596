package importer

import "strings"

// Institution identifies an export format.
type Institution int

const (
	InstitutionUnknown Institution = iota
	Amex
	WellsFargo
	Venmo
	Vanguard
	Target
	CIT
	Bilt
	Chase
)

var institutionNames = map[Institution]string{
	InstitutionUnknown: "Unknown",
	Amex:               "Amex",
	WellsFargo:         "Wells Fargo",
	Venmo:              "Venmo",
	Vanguard:           "Vanguard",
	Target:             "Target",
	CIT:                "CIT",
	Bilt:               "Bilt",
	Chase:              "Chase",
}

// String returns the institution's display name, also used as the
// account name for its transactions.
func (i Institution) String() string {
	if name, ok := institutionNames[i]; ok {
		return name
	}
	return "Unknown"
}

// marker pairs a filename substring with the institution it identifies.
type marker struct {
	substr      string
	institution Institution
}

// markers are checked in order; the first hit wins. Matching is
// case-sensitive.
var markers = []marker{
	{"Amex Gold", Amex},
	{"Wells Fargo", WellsFargo},
	{"Venmo", Venmo},
	{"Vanguard", Vanguard},
	{"Target", Target},
	{"CIT", CIT},
	{"Bilt", Bilt},
	{"Chase", Chase},
}

// Detect infers the institution from a filename, or InstitutionUnknown.
func Detect(filename string) Institution {
	for _, m := range markers {
		if strings.Contains(filename, m.substr) {
			return m.institution
		}
	}
	return InstitutionUnknown
}
