// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package automation

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Interpolation selects the curve used between a keyframe and the next one.
type Interpolation int

const (
	// Linear moves at constant speed.
	Linear Interpolation = iota
	// Step holds the start value until the next keyframe.
	Step
	// Smoothstep eases in and out with 3u²-2u³.
	Smoothstep
	// Staircase quantizes the progress into Arg equal steps.
	Staircase
	QuadIn
	QuadOut
	QuadInOut
	CubicIn
	CubicOut
	CubicInOut
	SineIn
	SineOut
	SineInOut
	// Elastic overshoots and settles. Arg is the angular frequency.
	Elastic
	// CatmullRom fits a spline through the neighbouring keyframes.
	CatmullRom
)

var interpolationNames = [...]string{
	Linear:     "linear",
	Step:       "step",
	Smoothstep: "smoothstep",
	Staircase:  "quantized",
	QuadIn:     "quad-ease-in",
	QuadOut:    "quad-ease-out",
	QuadInOut:  "quad-ease-inout",
	CubicIn:    "cubic-ease-in",
	CubicOut:   "cubic-ease-out",
	CubicInOut: "cubic-ease-inout",
	SineIn:     "sine-ease-in",
	SineOut:    "sine-ease-out",
	SineInOut:  "sine-ease-inout",
	Elastic:    "elastic",
	CatmullRom: "catmull-rom",
}

// String returns the curve name as used in scene files.
func (i Interpolation) String() string {
	if i >= 0 && int(i) < len(interpolationNames) {
		return interpolationNames[i]
	}
	return fmt.Sprintf("Unknown(%d)", int(i))
}

// ParseInterpolation looks up a curve by name. The empty string is Linear.
func ParseInterpolation(s string) (Interpolation, error) {
	if s == "" {
		return Linear, nil
	}
	for i, name := range interpolationNames {
		if name == s {
			return Interpolation(i), nil
		}
	}
	return Linear, fmt.Errorf("%w: %q", ErrUnknownInterpolation, s)
}

// MarshalText implements encoding.TextMarshaler.
func (i Interpolation) MarshalText() ([]byte, error) {
	if i < 0 || int(i) >= len(interpolationNames) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownInterpolation, int(i))
	}
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *Interpolation) UnmarshalText(b []byte) error {
	v, err := ParseInterpolation(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// Ease maps linear progress u in [0,1] through the curve. arg is the curve
// parameter (step count for Staircase, frequency for Elastic). CatmullRom
// needs neighbouring values and is linear here.
func (i Interpolation) Ease(u, arg float32) float32 {
	switch i {
	case Step:
		return 0
	case Smoothstep:
		return u * u * (3 - 2*u)
	case Staircase:
		if arg <= 0 {
			return 0
		}
		return math32.Floor(u*arg) / arg
	case QuadIn:
		return u * u
	case QuadOut:
		return u * (2 - u)
	case QuadInOut:
		if u < 0.5 {
			return 2 * u * u
		}
		return (4-2*u)*u - 1
	case CubicIn:
		return u * u * u
	case CubicOut:
		v := u - 1
		return v*v*v + 1
	case CubicInOut:
		if u < 0.5 {
			return 4 * u * u * u
		}
		return (u-1)*(2*u-2)*(2*u-2) + 1
	case SineIn:
		return 1 - math32.Cos(u*math32.Pi/2)
	case SineOut:
		return math32.Sin(u * math32.Pi / 2)
	case SineInOut:
		return -(math32.Cos(math32.Pi*u) - 1) / 2
	case Elastic:
		rest := (1 - u) * (1 - u)
		if arg == 0 {
			// sin(wu)/w tends to u as w goes to zero.
			return 1 - rest*(2*u+1)
		}
		return 1 - rest*(2*math32.Sin(arg*u)/arg+math32.Cos(arg*u))
	default:
		return u
	}
}

// catmullRom evaluates the uniform Catmull-Rom spline through v0..v3 at u,
// between v1 (u=0) and v2 (u=1).
func catmullRom(v0, v1, v2, v3, u float32) float32 {
	u2 := u * u
	u3 := u2 * u
	return 0.5 * (2*v1 +
		(-v0+v2)*u +
		(2*v0-5*v1+4*v2-v3)*u2 +
		(-v0+3*v1-3*v2+v3)*u3)
}
