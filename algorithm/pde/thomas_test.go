package pde

import (
	"errors"
	"math"
	"testing"

	algomath "github.com/wyfcoding/fdpricer/algorithm/math"
	"github.com/wyfcoding/fdpricer/xerrors"
)

func TestBuildOperator(t *testing.T) {
	g, _ := StockGrid(4, 4)
	op, err := BuildOperator(g, 0.05, 0.02, 0.2)
	if err != nil {
		t.Fatalf("BuildOperator failed: %v", err)
	}
	if op.Len() != 5 {
		t.Fatalf("expected 5 coefficients, got %d", op.Len())
	}

	// S=2, dS=1: alpha=0.08, beta=0.03
	const eps = 1e-12
	if math.Abs(op.L[2]-0.05) > eps || math.Abs(op.D[2]+0.21) > eps || math.Abs(op.U[2]-0.11) > eps {
		t.Errorf("unexpected coefficients at node 2: L=%v D=%v U=%v", op.L[2], op.D[2], op.U[2])
	}
	for _, i := range []int{0, 4} {
		if op.L[i] != 0 || op.D[i] != 0 || op.U[i] != 0 {
			t.Errorf("boundary node %d must stay zero", i)
		}
	}

	s := NewCrankNicolson(op, 0.1)
	if s.Dt != 0.1 {
		t.Errorf("expected dt 0.1, got %v", s.Dt)
	}
	if math.Abs(s.Implicit.D[2]-1.0105) > eps || math.Abs(s.Explicit.D[2]-0.9895) > eps {
		t.Errorf("unexpected CN diagonals: implicit=%v explicit=%v", s.Implicit.D[2], s.Explicit.D[2])
	}
	if math.Abs(s.Implicit.L[2]+0.0025) > eps || math.Abs(s.Explicit.U[2]-0.0055) > eps {
		t.Errorf("unexpected CN off-diagonals: implicit L=%v explicit U=%v", s.Implicit.L[2], s.Explicit.U[2])
	}
}

func TestSolveTridiagonal(t *testing.T) {
	lower := []float64{0, 0.3, -1.2, 0.7, 0.5, -0.4, 0}
	diag := []float64{0, 4.1, 5.0, -3.9, 4.4, 3.3, 0}
	upper := []float64{0, 1.1, 0.9, -1.5, 0.8, 0.6, 0}
	rhs := []float64{0, 1, -2, 3.5, 0.25, 7, 0}

	x, err := SolveTridiagonal(lower, diag, upper, rhs)
	if err != nil {
		t.Fatalf("SolveTridiagonal failed: %v", err)
	}
	if len(x) != len(diag) || x[0] != 0 || x[len(x)-1] != 0 {
		t.Fatalf("boundary components must be zero, got %v", x)
	}

	// 内部行构成的子矩阵, 首行下对角与末行上对角耦合到值为零的边界分量
	n := len(diag) - 1
	a, err := algomath.NewTridiagonal(lower[1:n], diag[1:n], upper[1:n])
	if err != nil {
		t.Fatalf("NewTridiagonal failed: %v", err)
	}
	res, err := a.Residual(x[1:n], rhs[1:n])
	if err != nil {
		t.Fatalf("Residual failed: %v", err)
	}
	if res > 1e-12 {
		t.Errorf("residual too large: %g", res)
	}
}

func TestSolveTridiagonalZeroPivot(t *testing.T) {
	// 首个主元为零
	_, err := SolveTridiagonal([]float64{0, 0, 1, 0}, []float64{0, 0, 1, 0}, []float64{0, 1, 0, 0}, []float64{0, 1, 1, 0})
	if !errors.Is(err, xerrors.ErrZeroPivot) {
		t.Errorf("expected ErrZeroPivot, got %v", err)
	}

	// 消元后第二个主元为零: 1 - 1*1
	_, err = SolveTridiagonal([]float64{0, 0, 1, 0, 0}, []float64{0, 1, 1, 1, 0}, []float64{0, 1, 1, 0, 0}, []float64{0, 1, 1, 1, 0})
	if !errors.Is(err, xerrors.ErrZeroPivot) {
		t.Errorf("expected ErrZeroPivot after elimination, got %v", err)
	}

	_, err = SolveTridiagonal([]float64{0, 0, 0}, []float64{0, math.NaN(), 0}, []float64{0, 0, 0}, []float64{0, 1, 0})
	if !errors.Is(err, xerrors.ErrZeroPivot) {
		t.Errorf("expected ErrZeroPivot for NaN pivot, got %v", err)
	}
}

func TestSolveTridiagonalInvalid(t *testing.T) {
	if _, err := SolveTridiagonal(make([]float64, 4), make([]float64, 5), make([]float64, 5), make([]float64, 5)); !errors.Is(err, xerrors.ErrDimMismatch) {
		t.Errorf("expected ErrDimMismatch, got %v", err)
	}
	if _, err := SolveTridiagonal(make([]float64, 2), []float64{1, 1}, make([]float64, 2), make([]float64, 2)); !errors.Is(err, xerrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for a system without interior rows, got %v", err)
	}
}
