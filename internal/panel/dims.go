package panel

import "strings"

// supersectorByNAICS2 maps 2-digit NAICS sector codes to CES supersector
// names. Multiple NAICS codes map to the same supersector.
var supersectorByNAICS2 = map[string]string{
	"11": "Mining and logging",
	"21": "Mining and logging",
	"22": "Utilities",
	"23": "Construction",
	"31": "Manufacturing",
	"32": "Manufacturing",
	"33": "Manufacturing",
	"42": "Wholesale trade",
	"44": "Retail trade",
	"45": "Retail trade",
	"48": "Transportation and warehousing",
	"49": "Transportation and warehousing",
	"51": "Information",
	"52": "Financial activities",
	"53": "Financial activities",
	"54": "Professional and business services",
	"55": "Professional and business services",
	"56": "Professional and business services",
	"61": "Education and health services",
	"62": "Education and health services",
	"71": "Leisure and hospitality",
	"72": "Leisure and hospitality",
	"81": "Other services",
}

// fallbackSupersector is assigned when a NAICS sector has no mapping.
const fallbackSupersector = "Other services"

// NormalizeNAICS pads a NAICS code out to six digits. NAICS codes are
// hierarchical prefixes, so the padding goes on the right.
func NormalizeNAICS(code string) string {
	code = strings.TrimSpace(code)
	for len(code) < 6 {
		code += "0"
	}
	return code
}

// NAICS2 returns the 2-digit sector prefix of a NAICS code.
func NAICS2(code string) string {
	return NormalizeNAICS(code)[:2]
}

// NAICS3 returns the 3-digit subsector prefix of a NAICS code.
func NAICS3(code string) string {
	return NormalizeNAICS(code)[:3]
}

// Supersector returns the CES supersector name for a NAICS code.
func Supersector(code string) string {
	if name, ok := supersectorByNAICS2[NAICS2(code)]; ok {
		return name
	}
	return fallbackSupersector
}

// SizeClassLabels are the QCEW-style employment size bands, smallest first.
var SizeClassLabels = []string{
	"1-4", "5-9", "10-19", "20-49", "50-99", "100-249", "250-499", "500+",
}

// sizeClassUppers are the inclusive upper bounds of all bands but the last.
var sizeClassUppers = []int64{4, 9, 19, 49, 99, 249, 499}

// SizeClass assigns the QCEW size band for an employment count.
// Non-positive employment maps to the smallest band.
func SizeClass(employment int64) string {
	if employment <= 0 {
		return SizeClassLabels[0]
	}
	for i, upper := range sizeClassUppers {
		if employment <= upper {
			return SizeClassLabels[i]
		}
	}
	return SizeClassLabels[len(SizeClassLabels)-1]
}
