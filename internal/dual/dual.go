// Package dual implements forward-mode automatic differentiation with dual
// numbers. A Number carries a value and its derivative with respect to one
// seeded variable; every operation propagates the derivative exactly.
package dual

import "math"

// Number is a dual number a + bε with ε² = 0. Real holds f(x) and Dual
// holds f'(x) for the variable that was seeded with Var.
type Number struct {
	Real float64
	Dual float64
}

// Const returns a constant, whose derivative is zero.
func Const(v float64) Number { return Number{Real: v} }

// Var returns the differentiation variable, whose derivative is one.
func Var(v float64) Number { return Number{Real: v, Dual: 1} }

func (a Number) Add(b Number) Number { return Number{a.Real + b.Real, a.Dual + b.Dual} }
func (a Number) Sub(b Number) Number { return Number{a.Real - b.Real, a.Dual - b.Dual} }
func (a Number) Neg() Number         { return Number{-a.Real, -a.Dual} }
func (a Number) Scale(s float64) Number {
	return Number{a.Real * s, a.Dual * s}
}

// Mul applies the product rule: d(uv) = u·dv + v·du.
func (a Number) Mul(b Number) Number {
	return Number{a.Real * b.Real, a.Real*b.Dual + a.Dual*b.Real}
}

// Div applies the quotient rule: d(u/v) = (du·v − u·dv) / v².
func (a Number) Div(b Number) Number {
	return Number{
		a.Real / b.Real,
		(a.Dual*b.Real - a.Real*b.Dual) / (b.Real * b.Real),
	}
}

// AddConst and MulConst are shorthands for mixing in plain scalars.
func (a Number) AddConst(c float64) Number { return Number{a.Real + c, a.Dual} }
func (a Number) MulConst(c float64) Number { return a.Scale(c) }

// Inv returns 1/a.
func Inv(a Number) Number {
	return Number{1 / a.Real, -a.Dual / (a.Real * a.Real)}
}

func Sin(a Number) Number {
	return Number{math.Sin(a.Real), a.Dual * math.Cos(a.Real)}
}

func Cos(a Number) Number {
	return Number{math.Cos(a.Real), -a.Dual * math.Sin(a.Real)}
}

func Tan(a Number) Number {
	c := math.Cos(a.Real)
	return Number{math.Tan(a.Real), a.Dual / (c * c)}
}

// Sqrt is undefined at zero: the derivative becomes ±Inf or NaN. Callers must
// keep the argument strictly positive.
func Sqrt(a Number) Number {
	s := math.Sqrt(a.Real)
	return Number{s, a.Dual / (2 * s)}
}

func Exp(a Number) Number {
	e := math.Exp(a.Real)
	return Number{e, a.Dual * e}
}

func Log(a Number) Number {
	return Number{math.Log(a.Real), a.Dual / a.Real}
}

// Pow raises a to a constant power n.
func Pow(a Number, n float64) Number {
	if n == 0 {
		return Const(1)
	}
	return Number{math.Pow(a.Real, n), a.Dual * n * math.Pow(a.Real, n-1)}
}

// Abs is not differentiable at zero; the derivative there is reported as 0.
func Abs(a Number) Number {
	switch {
	case a.Real < 0:
		return a.Neg()
	case a.Real > 0:
		return a
	}
	return Number{}
}

// IsFinite reports whether both components are finite.
func (a Number) IsFinite() bool {
	return !math.IsNaN(a.Real) && !math.IsInf(a.Real, 0) &&
		!math.IsNaN(a.Dual) && !math.IsInf(a.Dual, 0)
}
