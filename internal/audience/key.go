// Package audience defines the coarse, closed-cardinality description of a
// tile requester that keys both the ADM request and the tile cache.
package audience

import "strings"

// FormFactor is the caller's device class, as reported via the "placement"
// query parameter or derived from the User-Agent.
type FormFactor string

const (
	FormFactorDesktop FormFactor = "desktop"
	FormFactorPhone   FormFactor = "phone"
	FormFactorTablet  FormFactor = "tablet"
	FormFactorOther   FormFactor = "other"
)

// ParseFormFactor normalizes a free-form placement hint into a FormFactor.
// Unrecognized input maps to FormFactorOther rather than failing the request.
func ParseFormFactor(raw string) FormFactor {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "desktop":
		return FormFactorDesktop
	case "phone", "mobile":
		return FormFactorPhone
	case "tablet":
		return FormFactorTablet
	default:
		return FormFactorOther
	}
}

// OSFamily is the caller's operating system family, derived server-side from
// the User-Agent so the browser never needs to report it directly.
type OSFamily string

const (
	OSFamilyWindows OSFamily = "windows"
	OSFamilyMacOS   OSFamily = "macos"
	OSFamilyLinux   OSFamily = "linux"
	OSFamilyIOS     OSFamily = "ios"
	OSFamilyAndroid OSFamily = "android"
	OSFamilyOther   OSFamily = "other"
)

// Key is the immutable audience description used both as a cache map key
// and as the source of the ADM request's country-code/region-code/
// form-factor/os-family query parameters. Two Keys are equal iff every
// field is equal; Key is safe to use as a map key.
type Key struct {
	Country    string
	Region     string
	FormFactor FormFactor
	OSFamily   OSFamily
}

// New builds a Key from already-classified fields, uppercasing Country per
// ISO-3166-1 alpha-2 convention.
func New(country, region string, formFactor FormFactor, osFamily OSFamily) Key {
	return Key{
		Country:    strings.ToUpper(strings.TrimSpace(country)),
		Region:     strings.TrimSpace(region),
		FormFactor: formFactor,
		OSFamily:   osFamily,
	}
}
