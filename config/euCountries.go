package config

// EU member states (VAT area), ISO 3166-1 alpha-2. Configuration, not logic:
// membership changes are a data update, not a code change elsewhere.
var EUCountries = map[string]bool{
	"AT": true, "BE": true, "BG": true, "HR": true, "CY": true,
	"CZ": true, "DK": true, "EE": true, "FI": true, "FR": true,
	"DE": true, "GR": true, "HU": true, "IE": true, "IT": true,
	"LV": true, "LT": true, "LU": true, "MT": true, "NL": true,
	"PL": true, "PT": true, "RO": true, "SK": true, "SI": true,
	"ES": true, "SE": true,
}

func IsEUCountry(countryCode string) bool {
	return EUCountries[countryCode]
}
