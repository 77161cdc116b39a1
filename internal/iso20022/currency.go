package iso20022

import "fmt"

// minorUnitExceptions lists ISO 4217 currencies whose minor-unit exponent is
// not the default 2.
var minorUnitExceptions = map[string]int32{
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0,
	"KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0,
	"XOF": 0, "XPF": 0,
}

// iso4217 is the active currency code set the engine accepts.
var iso4217 = map[string]struct{}{
	"AED": {}, "AFN": {}, "ALL": {}, "AMD": {}, "ANG": {}, "AOA": {}, "ARS": {},
	"AUD": {}, "AWG": {}, "AZN": {}, "BAM": {}, "BBD": {}, "BDT": {}, "BGN": {},
	"BHD": {}, "BIF": {}, "BMD": {}, "BND": {}, "BOB": {}, "BRL": {}, "BSD": {},
	"BWP": {}, "BYN": {}, "BZD": {}, "CAD": {}, "CDF": {}, "CHF": {}, "CLP": {},
	"CNY": {}, "COP": {}, "CRC": {}, "CUP": {}, "CVE": {}, "CZK": {}, "DJF": {},
	"DKK": {}, "DOP": {}, "DZD": {}, "EGP": {}, "ETB": {}, "EUR": {}, "FJD": {},
	"GBP": {}, "GEL": {}, "GHS": {}, "GMD": {}, "GNF": {}, "GTQ": {}, "GYD": {},
	"HKD": {}, "HNL": {}, "HRK": {}, "HTG": {}, "HUF": {}, "IDR": {}, "ILS": {},
	"INR": {}, "IQD": {}, "IRR": {}, "ISK": {}, "JMD": {}, "JOD": {}, "JPY": {},
	"KES": {}, "KGS": {}, "KHR": {}, "KMF": {}, "KRW": {}, "KWD": {}, "KYD": {},
	"KZT": {}, "LAK": {}, "LBP": {}, "LKR": {}, "LRD": {}, "LSL": {}, "LYD": {},
	"MAD": {}, "MDL": {}, "MGA": {}, "MKD": {}, "MMK": {}, "MNT": {}, "MOP": {},
	"MRU": {}, "MUR": {}, "MVR": {}, "MWK": {}, "MXN": {}, "MYR": {}, "MZN": {},
	"NAD": {}, "NGN": {}, "NIO": {}, "NOK": {}, "NPR": {}, "NZD": {}, "OMR": {},
	"PAB": {}, "PEN": {}, "PGK": {}, "PHP": {}, "PKR": {}, "PLN": {}, "PYG": {},
	"QAR": {}, "RON": {}, "RSD": {}, "RUB": {}, "RWF": {}, "SAR": {}, "SBD": {},
	"SCR": {}, "SDG": {}, "SEK": {}, "SGD": {}, "SLL": {}, "SOS": {}, "SRD": {},
	"SSP": {}, "STN": {}, "SZL": {}, "THB": {}, "TJS": {}, "TMT": {}, "TND": {},
	"TOP": {}, "TRY": {}, "TTD": {}, "TWD": {}, "TZS": {}, "UAH": {}, "UGX": {},
	"USD": {}, "UYU": {}, "UZS": {}, "VES": {}, "VND": {}, "VUV": {}, "WST": {},
	"XAF": {}, "XCD": {}, "XOF": {}, "XPF": {}, "YER": {}, "ZAR": {}, "ZMW": {},
	"ZWL": {},
}

// IsValidCurrency reports whether code is an accepted ISO 4217 alpha-3 code.
func IsValidCurrency(code string) bool {
	_, ok := iso4217[code]
	return ok
}

// CurrencyMinorUnits returns the minor-unit exponent for the currency,
// e.g. 2 for ZAR, 0 for JPY, 3 for BHD.
func CurrencyMinorUnits(code string) (int32, error) {
	if !IsValidCurrency(code) {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	if units, ok := minorUnitExceptions[code]; ok {
		return units, nil
	}
	return 2, nil
}
