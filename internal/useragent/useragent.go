// Package useragent derives the audience-key classification (OS family,
// form factor) from a caller's User-Agent, and produces the stripped
// User-Agent Contile forwards to ADM so individual browser builds and
// minor versions never leak upstream.
package useragent

import (
	"fmt"
	"strings"

	"github.com/avct/uasurfer"

	"github.com/contile/contile/internal/audience"
)

// Classify maps a raw User-Agent string to its OS family and form factor
// using avct/uasurfer's device/OS detection.
func Classify(ua string) (audience.OSFamily, audience.FormFactor) {
	parsed := uasurfer.Parse(ua)

	var osFamily audience.OSFamily
	switch parsed.OS.Platform {
	case uasurfer.PlatformWindows:
		osFamily = audience.OSFamilyWindows
	case uasurfer.PlatformMac:
		osFamily = audience.OSFamilyMacOS
	case uasurfer.PlatformLinux:
		osFamily = audience.OSFamilyLinux
	case uasurfer.PlatformiPhone, uasurfer.PlatformiPad, uasurfer.PlatformiPod:
		osFamily = audience.OSFamilyIOS
	default:
		switch parsed.OS.Name {
		case uasurfer.OSAndroid:
			osFamily = audience.OSFamilyAndroid
		case uasurfer.OSiOS:
			osFamily = audience.OSFamilyIOS
		default:
			osFamily = audience.OSFamilyOther
		}
	}

	var formFactor audience.FormFactor
	switch parsed.DeviceType {
	case uasurfer.DeviceComputer:
		formFactor = audience.FormFactorDesktop
	case uasurfer.DevicePhone:
		formFactor = audience.FormFactorPhone
	case uasurfer.DeviceTablet:
		formFactor = audience.FormFactorTablet
	default:
		formFactor = audience.FormFactorOther
	}

	return osFamily, formFactor
}

// platformString is the fixed, 4-entry template used when forwarding a
// stripped UA to ADM. Anything outside these three named OS families
// becomes "Other" so no fine-grained OS version ever reaches the upstream.
func platformString(osFamily audience.OSFamily) string {
	switch osFamily {
	case audience.OSFamilyWindows:
		return "Windows NT 10.0; Win64; x64"
	case audience.OSFamilyMacOS:
		return "Macintosh; Intel Mac OS X 10.15"
	case audience.OSFamilyLinux:
		return "X11; Ubuntu; Linux x86_64"
	default:
		return "Other"
	}
}

// Strip reduces a full User-Agent string to only its OS family and the
// caller's major Firefox version, reformatted as a fixed-template UA. This
// is the User-Agent Contile forwards to ADM; no minor version, build ID,
// or non-Firefox browser detail survives.
func Strip(ua string) string {
	parsed := uasurfer.Parse(ua)
	osFamily, _ := Classify(ua)
	platform := platformString(osFamily)

	major := parsed.Browser.Version.Major
	if major == 0 {
		major = 1
	}

	if platform == "Other" {
		return "Other"
	}

	return fmt.Sprintf("Mozilla/5.0 (%s; rv:%d.0) Gecko/20100101 Firefox/%d.0", platform, major, major)
}

// IsMobileHint is a small helper for query-param form-factor hints that
// arrive as free text (e.g. "mobile") rather than a structured enum.
func IsMobileHint(placement string) bool {
	p := strings.ToLower(placement)
	return p == "phone" || p == "mobile"
}
