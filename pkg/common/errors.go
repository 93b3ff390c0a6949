package common

import "github.com/pkg/errors"

var UnknownInstrument = errors.New("unknown instrument")
var InvalidOptionKind = errors.New("invalid option kind")
var InvalidProperty = errors.New("invalid property")
