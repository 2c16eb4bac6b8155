package contentstream

import (
	"math"

	"github.com/a3tai/pdf-redactor/internal/redact"
)

// Matrix is a PDF transformation matrix [a b c d e f]
type Matrix [6]float64

// Identity returns the identity matrix
func Identity() Matrix {
	return Matrix{1, 0, 0, 1, 0, 0}
}

// Translate returns a translation matrix
func Translate(tx, ty float64) Matrix {
	return Matrix{1, 0, 0, 1, tx, ty}
}

// MatrixFromOperands builds a matrix from six numeric operands
func MatrixFromOperands(operands []Object) (Matrix, bool) {
	if len(operands) != 6 {
		return Matrix{}, false
	}
	var m Matrix
	for i, o := range operands {
		v, ok := o.Number()
		if !ok {
			return Matrix{}, false
		}
		m[i] = v
	}
	return m, true
}

// Multiply returns m × n: the transformation m followed by n
func (m Matrix) Multiply(n Matrix) Matrix {
	return Matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

// Transform maps a point
func (m Matrix) Transform(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// TransformRect maps a rectangle and returns the bounding box of the result
func (m Matrix) TransformRect(r redact.Rect) redact.Rect {
	var b bounds
	b.add(m.Transform(r.MinX, r.MinY))
	b.add(m.Transform(r.MaxX, r.MinY))
	b.add(m.Transform(r.MinX, r.MaxY))
	b.add(m.Transform(r.MaxX, r.MaxY))
	return b.rect()
}

// Scale returns the mean linear scale factor of the matrix
func (m Matrix) Scale() float64 {
	return math.Sqrt(math.Abs(m[0]*m[3] - m[1]*m[2]))
}

// bounds accumulates points into a bounding box
type bounds struct {
	minX, minY, maxX, maxY float64
	set                    bool
}

func (b *bounds) add(x, y float64) {
	if !b.set {
		b.minX, b.maxX, b.minY, b.maxY = x, x, y, y
		b.set = true
		return
	}
	b.minX = math.Min(b.minX, x)
	b.maxX = math.Max(b.maxX, x)
	b.minY = math.Min(b.minY, y)
	b.maxY = math.Max(b.maxY, y)
}

func (b *bounds) rect() redact.Rect {
	return redact.Rect{MinX: b.minX, MinY: b.minY, MaxX: b.maxX, MaxY: b.maxY}
}
