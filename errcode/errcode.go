// Package errcode holds the error identifiers shared by the pin, analog,
// module and snapshot packages.
package errcode

import "github.com/pkg/errors"

// Code is a stable error identifier. It is comparable and implements error,
// so it can be returned bare or wrapped with context.
type Code string

func (c Code) Error() string { return string(c) }

const (
	OK Code = "ok"

	InvalidPin       Code = "invalid_pin"
	InvalidDirection Code = "invalid_direction"
	WriteToInputPin  Code = "write_to_input_pin"
	OutOfRange       Code = "out_of_range"

	InvalidParam   Code = "invalid_param"
	InvalidChannel Code = "invalid_channel"

	OpenConfigFileFailed      Code = "open_config_file_failed"
	WriteConfigFileFailed     Code = "write_config_file_failed"
	IncompatibleConfigVersion Code = "incompatible_config_version"
	CorruptConfig             Code = "corrupt_config"

	Error Code = "error"
)

var descriptions = map[Code]string{
	OK:                        "OK",
	InvalidPin:                "Invalid pin number.",
	InvalidDirection:          "LED input direction is not valid.",
	WriteToInputPin:           "Writing to input pin is not valid.",
	OutOfRange:                "Value out of range.",
	InvalidParam:              "Invalid parameter value.",
	InvalidChannel:            "Invalid channel or instance index.",
	OpenConfigFileFailed:      "Failed to open config file.",
	WriteConfigFileFailed:     "Failed to write config file.",
	IncompatibleConfigVersion: "Incompatible config file version.",
	CorruptConfig:             "Config file is truncated or corrupt.",
}

// Describe returns a human readable sentence for c.
func Describe(c Code) string {
	if d, ok := descriptions[c]; ok {
		return d
	}
	return "Unknown error."
}

// Of extracts a Code from an error chain built with pkg/errors, defaulting
// to Error for foreign errors.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}
