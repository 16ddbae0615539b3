package math

import (
	"github.com/wyfcoding/fdpricer/xerrors"
)

// Matrix 定义基础稠密矩阵结构, 主要用于校验三对角求解结果.
type Matrix struct {
	Data []float64
	Rows int
	Cols int
}

// NewMatrix 创建一个 r x c 的零矩阵.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{
		Rows: rows,
		Cols: cols,
		Data: make([]float64, rows*cols),
	}
}

// NewTridiagonal 由三条对角线构造稠密矩阵, lower[0] 与 upper[n-1] 被忽略.
func NewTridiagonal(lower, diag, upper []float64) (*Matrix, error) {
	n := len(diag)
	if len(lower) != n || len(upper) != n {
		return nil, xerrors.ErrDimMismatch
	}

	m := NewMatrix(n, n)
	for i := range n {
		m.Set(i, i, diag[i])
		if i > 0 {
			m.Set(i, i-1, lower[i])
		}
		if i < n-1 {
			m.Set(i, i+1, upper[i])
		}
	}

	return m, nil
}

// Get 获取元素 (i, j).
func (m *Matrix) Get(row, col int) float64 {
	return m.Data[row*m.Cols+col]
}

// Set 设置元素 (i, j).
func (m *Matrix) Set(row, col int, val float64) {
	m.Data[row*m.Cols+col] = val
}

// MultiplyVector 矩阵向量乘法: y = A * x.
func (m *Matrix) MultiplyVector(vec []float64) ([]float64, error) {
	if len(vec) != m.Cols {
		return nil, xerrors.ErrDimMismatch
	}

	res := make([]float64, m.Rows)
	for i := range m.Rows {
		var sum float64
		rowOffset := i * m.Cols
		for j := range m.Cols {
			sum += m.Data[rowOffset+j] * vec[j]
		}

		res[i] = sum
	}

	return res, nil
}

// Residual 计算残差的最大范数 ||A*x - b||_inf.
func (m *Matrix) Residual(x, b []float64) (float64, error) {
	if len(b) != m.Rows {
		return 0, xerrors.ErrDimMismatch
	}

	ax, err := m.MultiplyVector(x)
	if err != nil {
		return 0, err
	}

	return MaxAbsDiff(ax, b), nil
}
