package ber

import (
	"errors"
	"fmt"
	"math"
)

var ErrHeaderTruncated = errors.New("header truncated")
var ErrValueTruncated = errors.New("value truncated")
var ErrIndefiniteLength = errors.New("indefinite length form is not supported")
var ErrLengthTooLarge = errors.New("length too large")
var ErrTagTooLarge = errors.New("tag number too large")
var ErrInvalidTag = errors.New("invalid tag")
var ErrInvalidInteger = errors.New("invalid integer")
var ErrIntOverflow = errors.New("value does not fit in 32 bits")
var ErrLongIntOverflow = fmt.Errorf("value exceeds max long int value %d", math.MaxInt64)
var ErrInvalidTime = errors.New("invalid generalized time")
var ErrInvalidBitString = errors.New("invalid bit string")
