package aggregate

import "strings"

// stateCodes is the frozen name -> code table. Map rendering keys off these
// exact codes, so entries are never edited at runtime.
var stateCodes = map[string]string{
	"Andhra Pradesh":    "AP",
	"Arunachal Pradesh": "AR",
	"Assam":             "AS",
	"Bihar":             "BR",
	"Chhattisgarh":      "CG",
	"Goa":               "GA",
	"Gujarat":           "GJ",
	"Haryana":           "HR",
	"Himachal Pradesh":  "HP",
	"Jharkhand":         "JH",
	"Karnataka":         "KA",
	"Kerala":            "KL",
	"Madhya Pradesh":    "MP",
	"Maharashtra":       "MH",
	"Manipur":           "MN",
	"Meghalaya":         "ML",
	"Mizoram":           "MZ",
	"Nagaland":          "NL",
	"Odisha":            "OD",
	"Punjab":            "PB",
	"Rajasthan":         "RJ",
	"Sikkim":            "SK",
	"Tamil Nadu":        "TN",
	"Telangana":         "TS",
	"Tripura":           "TR",
	"Uttar Pradesh":     "UP",
	"Uttarakhand":       "UK",
	"West Bengal":       "WB",
	"Delhi":             "DL",
	"Jammu and Kashmir": "JK",
	"Ladakh":            "LA",
	"Puducherry":        "PY",
	"Chandigarh":        "CH",
	"Andaman and Nicobar Islands":              "AN",
	"Dadra and Nagar Haveli and Daman and Diu": "DN",
	"Lakshadweep":                              "LD",
}

// StateCode maps a state name to its two-letter code. Names missing from the
// table get a synthetic code built from their first two characters,
// upper-cased, and known=false. Distinct unknown names can collide.
func StateCode(name string) (code string, known bool) {
	if code, ok := stateCodes[name]; ok {
		return code, true
	}
	runes := []rune(name)
	if len(runes) > 2 {
		runes = runes[:2]
	}
	return strings.ToUpper(string(runes)), false
}

// KnownStates returns a copy of the name -> code table.
func KnownStates() map[string]string {
	out := make(map[string]string, len(stateCodes))
	for name, code := range stateCodes {
		out[name] = code
	}
	return out
}
