package fec

import "errors"

// RSParitySymbols is the number of Reed-Solomon parity bytes per block
// (§4.2: "RS(255,223) outer ... with 32 parity bytes per block").
const RSParitySymbols = 32

// RSBlockSize is the maximum RS codeword size (n=255); shorter input
// blocks produce a shortened code of the same parity count, which
// standard RS handles without any special-casing.
const RSBlockSize = 255
const RSMaxData = RSBlockSize - RSParitySymbols // 223

// ErrRSUncorrectable is returned when a received RS block has more
// errors than the code can correct, or when post-correction
// verification fails (a safety net: a received block is only ever
// "corrected" if re-syndroming the result comes back all-zero).
var ErrRSUncorrectable = errors.New("fec: reed-solomon block uncorrectable")

// rsGenerator returns the degree-nsym generator polynomial (high-degree
// coefficient first) with roots alpha^0..alpha^(nsym-1), narrow-sense.
func rsGenerator(nsym int) []byte {
	g := []byte{1}
	for i := 0; i < nsym; i++ {
		g = gfPolyMul(g, []byte{1, gfPow(2, i)})
	}
	return g
}

// rsEncodeBlock appends RSParitySymbols parity bytes to data (len(data)
// <= RSMaxData) via systematic polynomial division: the parity is the
// remainder of (data shifted up by nsym) divided by the generator.
func rsEncodeBlock(data []byte) []byte {
	gen := rsGenerator(RSParitySymbols)
	msg := make([]byte, len(data)+RSParitySymbols)
	copy(msg, data)

	for i := 0; i < len(data); i++ {
		coef := msg[i]
		if coef == 0 {
			continue
		}
		for j := 1; j < len(gen); j++ {
			msg[i+j] ^= gfMul(gen[j], coef)
		}
	}

	out := make([]byte, len(data)+RSParitySymbols)
	copy(out, data)
	copy(out[len(data):], msg[len(data):])
	return out
}

// rsSyndromes computes S_i = R(alpha^i) for i=0..nsym-1, where R is the
// received codeword read as a polynomial with the first byte as the
// highest-degree coefficient. These S_i double as the low-degree-first
// coefficients of the syndrome polynomial S(z) = sum S_i z^i used by
// Berlekamp-Massey below.
func rsSyndromes(received []byte, nsym int) []byte {
	syn := make([]byte, nsym)
	for i := 0; i < nsym; i++ {
		syn[i] = gfPolyEval(received, gfPow(2, i))
	}
	return syn
}

func rsSyndromesAllZero(syn []byte) bool {
	for _, s := range syn {
		if s != 0 {
			return false
		}
	}
	return true
}

// lowPolyEval evaluates a low-degree-first polynomial (c[i] is the
// coefficient of z^i) at x.
func lowPolyEval(c []byte, x byte) byte {
	y := byte(0)
	p := byte(1)
	for i := 0; i < len(c); i++ {
		y ^= gfMul(c[i], p)
		p = gfMul(p, x)
	}
	return y
}

// berlekampMasseyRS runs the classical Berlekamp-Massey recurrence
// against the syndrome sequence and returns the error-locator
// polynomial Lambda(z) = prod(1 - X_j z) (low-degree-first, Lambda[0]
// always 1) truncated to its true degree L (the claimed error count).
func berlekampMasseyRS(syn []byte, nsym int) (lambda []byte, errCount int) {
	size := 2*nsym + 2
	Λ := make([]byte, size)
	Λ[0] = 1
	B := make([]byte, size)
	B[0] = 1
	L := 0
	m := 1
	b := byte(1)

	for n := 0; n < nsym; n++ {
		delta := syn[n]
		for i := 1; i <= L; i++ {
			delta ^= gfMul(Λ[i], syn[n-i])
		}

		switch {
		case delta == 0:
			m++
		case 2*L <= n:
			t := make([]byte, size)
			copy(t, Λ)
			coef := gfDiv(delta, b)
			for i := 0; i+m < size && i < size; i++ {
				Λ[i+m] ^= gfMul(coef, B[i])
			}
			L = n + 1 - L
			B = t
			b = delta
			m = 1
		default:
			coef := gfDiv(delta, b)
			for i := 0; i+m < size; i++ {
				Λ[i+m] ^= gfMul(coef, B[i])
			}
			m++
		}
	}

	return Λ[:L+1], L
}

// findErrorLocations runs a Chien search over every possible codeword
// position, returning those where Lambda(X_pos^-1) == 0. X_pos, the
// "location number" for position pos (0-indexed from the codeword's
// first byte) in a length-n codeword, is alpha^(n-1-pos).
func findErrorLocations(lambda []byte, codewordLen int) []int {
	var positions []int
	for pos := 0; pos < codewordLen; pos++ {
		xInv := gfPow(2, pos+1-codewordLen)
		if lowPolyEval(lambda, xInv) == 0 {
			positions = append(positions, pos)
		}
	}
	return positions
}

// errorEvaluator computes Omega(z) = (S(z)*Lambda(z)) mod z^nsym,
// low-degree-first, truncated to the first nsym terms.
func errorEvaluator(syn []byte, lambda []byte, nsym int) []byte {
	prod := gfPolyMulLow(syn, lambda)
	if len(prod) > nsym {
		prod = prod[:nsym]
	}
	return prod
}

// gfPolyMulLow convolves two low-degree-first coefficient arrays.
func gfPolyMulLow(p, q []byte) []byte {
	out := make([]byte, len(p)+len(q)-1)
	for i, pc := range p {
		if pc == 0 {
			continue
		}
		for j, qc := range q {
			out[i+j] ^= gfMul(pc, qc)
		}
	}
	return out
}

// lambdaDerivative computes the formal derivative of Lambda(z)
// (low-degree-first): in a characteristic-2 field, even-power terms
// vanish, so d[k] = lambda[k+1] when k is even, else 0.
func lambdaDerivative(lambda []byte) []byte {
	if len(lambda) <= 1 {
		return []byte{0}
	}
	d := make([]byte, len(lambda)-1)
	for k := 0; k < len(d); k++ {
		if k%2 == 0 {
			d[k] = lambda[k+1]
		}
	}
	return d
}

// forneyMagnitudes computes the error magnitude at each reported
// position via the Forney algorithm (fcr=0, so the X^(1-fcr) factor is
// just X itself; the formula's minus sign vanishes over GF(2^8)).
func forneyMagnitudes(syn, lambda []byte, positions []int, codewordLen, nsym int) []byte {
	omega := errorEvaluator(syn, lambda, nsym)
	deriv := lambdaDerivative(lambda)

	mags := make([]byte, len(positions))
	for i, pos := range positions {
		x := gfPow(2, codewordLen-1-pos)    // X_j
		xInv := gfPow(2, pos+1-codewordLen) // X_j^-1

		num := lowPolyEval(omega, xInv)
		den := lowPolyEval(deriv, xInv)
		if den == 0 {
			mags[i] = 0
			continue
		}
		mags[i] = gfMul(x, gfDiv(num, den))
	}
	return mags
}

// rsDecodeBlock corrects a received RS(n, n-32) codeword and returns
// the corrected data (without parity) plus the number of symbols
// corrected. Any inconsistency — too many errors, a Chien search that
// doesn't find exactly as many roots as Lambda's degree claims, or a
// post-correction re-syndrome that isn't all-zero — is reported as
// ErrRSUncorrectable rather than risking silently wrong output.
func rsDecodeBlock(received []byte) ([]byte, int, error) {
	nsym := RSParitySymbols
	if len(received) <= nsym {
		return nil, 0, errors.New("fec: rs block too short")
	}
	dataLen := len(received) - nsym

	syn := rsSyndromes(received, nsym)
	if rsSyndromesAllZero(syn) {
		out := make([]byte, dataLen)
		copy(out, received[:dataLen])
		return out, 0, nil
	}

	lambda, errCount := berlekampMasseyRS(syn, nsym)
	if errCount <= 0 || errCount > nsym/2 {
		return nil, 0, ErrRSUncorrectable
	}

	positions := findErrorLocations(lambda, len(received))
	if len(positions) != errCount {
		return nil, 0, ErrRSUncorrectable
	}

	mags := forneyMagnitudes(syn, lambda, positions, len(received), nsym)

	corrected := make([]byte, len(received))
	copy(corrected, received)
	for i, pos := range positions {
		corrected[pos] ^= mags[i]
	}

	verifySyn := rsSyndromes(corrected, nsym)
	if !rsSyndromesAllZero(verifySyn) {
		return nil, 0, ErrRSUncorrectable
	}

	out := make([]byte, dataLen)
	copy(out, corrected[:dataLen])
	return out, errCount, nil
}
