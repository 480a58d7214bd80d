package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorNoExchangeRate is the domain error for a currency pair with no rate
// at or before the requested date.
var ErrorNoExchangeRate = errors.New("no exchange rate available")
