// Package filter stabilizes a jittery 2D point stream for cursor control.
package filter

import "gonum.org/v1/gonum/mat"

// Kalman is a constant-velocity Kalman filter over the state (x, y, vx, vy)
// with a unit time step. Only the position is measured.
type Kalman struct {
	x *mat.VecDense
	p *mat.Dense

	f *mat.Dense // state transition
	h *mat.Dense // measurement model
	q *mat.Dense // process noise
	r *mat.Dense // measurement noise
}

// NewKalman creates a filter at the origin with unit covariance.
func NewKalman(processNoise, measurementNoise float64) *Kalman {
	f := identity(4, 1)
	f.Set(0, 2, 1)
	f.Set(1, 3, 1)

	h := mat.NewDense(2, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
	})

	k := &Kalman{
		f: f,
		h: h,
		q: identity(4, processNoise),
		r: identity(2, measurementNoise),
	}
	k.Reset(0, 0)
	return k
}

// Reset places the filter at (x, y) with zero velocity and unit covariance.
func (k *Kalman) Reset(x, y float64) {
	k.x = mat.NewVecDense(4, []float64{x, y, 0, 0})
	k.p = identity(4, 1)
}

// Predict advances the state by one step and returns the predicted position.
func (k *Kalman) Predict() (float64, float64) {
	var x mat.VecDense
	x.MulVec(k.f, k.x)
	k.x = &x

	var fp, p mat.Dense
	fp.Mul(k.f, k.p)
	p.Mul(&fp, k.f.T())
	p.Add(&p, k.q)
	k.p = &p

	return k.x.AtVec(0), k.x.AtVec(1)
}

// Update corrects the state with a position measurement and returns the
// estimated position. If the residual covariance cannot be inverted the
// measurement is ignored.
func (k *Kalman) Update(zx, zy float64) (float64, float64) {
	z := mat.NewVecDense(2, []float64{zx, zy})

	var hx, resid mat.VecDense
	hx.MulVec(k.h, k.x)
	resid.SubVec(z, &hx)

	var hp, s, sInv mat.Dense
	hp.Mul(k.h, k.p)
	s.Mul(&hp, k.h.T())
	s.Add(&s, k.r)
	if err := sInv.Inverse(&s); err != nil {
		return k.x.AtVec(0), k.x.AtVec(1)
	}

	var pht, gain mat.Dense
	pht.Mul(k.p, k.h.T())
	gain.Mul(&pht, &sInv)

	var dx mat.VecDense
	dx.MulVec(&gain, &resid)
	k.x.AddVec(k.x, &dx)

	var kh, ikh, p mat.Dense
	kh.Mul(&gain, k.h)
	ikh.Sub(identity(4, 1), &kh)
	p.Mul(&ikh, k.p)
	k.p = &p

	return k.x.AtVec(0), k.x.AtVec(1)
}

// State returns the current estimate.
func (k *Kalman) State() (x, y, vx, vy float64) {
	return k.x.AtVec(0), k.x.AtVec(1), k.x.AtVec(2), k.x.AtVec(3)
}

// Covariance returns a copy of the error covariance.
func (k *Kalman) Covariance() *mat.Dense {
	return mat.DenseCopyOf(k.p)
}

func identity(n int, scale float64) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, scale)
	}
	return m
}
