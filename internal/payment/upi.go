package payment

import (
	"regexp"
	"strings"
)

var upiPattern = regexp.MustCompile(`^[a-zA-Z0-9.\-_]{2,256}@[a-zA-Z][a-zA-Z]{1,64}$`)

type UPIApp struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var upiApps = []UPIApp{
	{ID: "gpay", Name: "Google Pay"},
	{ID: "phonepe", Name: "PhonePe"},
	{ID: "paytm", Name: "Paytm"},
	{ID: "bhim", Name: "BHIM"},
}

func UPIApps() []UPIApp {
	return append([]UPIApp(nil), upiApps...)
}

func IsKnownUPIApp(id string) bool {
	for _, app := range upiApps {
		if app.ID == id {
			return true
		}
	}
	return false
}

// UPIValidation separates validity from whether an error should be shown.
// An empty id is incomplete: not valid, but not an error either.
type UPIValidation struct {
	Valid     bool `json:"valid"`
	ShowError bool `json:"show_error"`
}

func ValidateUPIID(input string) UPIValidation {
	id := strings.TrimSpace(input)
	if id == "" {
		return UPIValidation{}
	}
	if upiPattern.MatchString(id) {
		return UPIValidation{Valid: true}
	}
	return UPIValidation{ShowError: true}
}

func MaskUPIID(input string) string {
	at := strings.LastIndexByte(input, '@')
	if at <= 0 {
		return strings.Repeat("*", len(input))
	}
	local := input[:at]
	keep := 2
	if len(local) < keep {
		keep = len(local)
	}
	return local[:keep] + strings.Repeat("*", len(local)-keep) + input[at:]
}
