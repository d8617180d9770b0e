package math

import (
	"math"

	"github.com/wyfcoding/exposure/xerrors"
)

// pivotTolerance 相对主元阈值，低于 pivotTolerance 乘以主元所在行原始最大元的主元视为零.
const pivotTolerance = 1e-12

// Matrix 定义基础矩阵结构 (行优先存储).
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

// NewMatrixFromFlat 以行优先的一维数据创建矩阵，不复制 data.
func NewMatrixFromFlat(data []float64, rows, cols int) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, xerrors.ErrEmptyData
	}
	if len(data) != rows*cols {
		return nil, xerrors.Detailf(xerrors.ErrDimMismatch, "len(data)=%d, want %dx%d", len(data), rows, cols)
	}
	return &Matrix{Data: data, Rows: rows, Cols: cols}, nil
}

// NewMatrixFromData 从二维切片创建矩阵.
func NewMatrixFromData(data [][]float64) (*Matrix, error) {
	rows := len(data)
	if rows == 0 {
		return nil, xerrors.ErrEmptyData
	}

	cols := len(data[0])
	mat := NewMatrix(rows, cols)

	for i := range rows {
		if len(data[i]) != cols {
			return nil, xerrors.Detailf(xerrors.ErrDimMismatch, "row %d has %d columns, want %d", i, len(data[i]), cols)
		}

		for j := range cols {
			mat.Set(i, j, data[i][j])
		}
	}

	return mat, nil
}

// Identity 创建 n 阶单位矩阵.
func Identity(n int) *Matrix {
	res := NewMatrix(n, n)
	for i := range n {
		res.Set(i, i, 1)
	}
	return res
}

// Get 获取元素 (i, j).
func (m *Matrix) Get(row, col int) float64 {
	return m.Data[row*m.Cols+col]
}

// Set 设置元素 (i, j).
func (m *Matrix) Set(row, col int, val float64) {
	m.Data[row*m.Cols+col] = val
}

// Row 返回第 row 行的切片视图.
func (m *Matrix) Row(row int) []float64 {
	return m.Data[row*m.Cols : (row+1)*m.Cols]
}

// Clone 深拷贝.
func (m *Matrix) Clone() *Matrix {
	res := NewMatrix(m.Rows, m.Cols)
	copy(res.Data, m.Data)
	return res
}

// Transpose 矩阵转置.
func (m *Matrix) Transpose() *Matrix {
	res := NewMatrix(m.Cols, m.Rows)
	for i := range m.Rows {
		for j := range m.Cols {
			res.Set(j, i, m.Get(i, j))
		}
	}

	return res
}

// MultiplyVector 矩阵向量乘法: y = A * x.
func (m *Matrix) MultiplyVector(vec []float64) ([]float64, error) {
	if len(vec) != m.Cols {
		return nil, xerrors.Detailf(xerrors.ErrDimMismatch, "vector length %d, matrix has %d columns", len(vec), m.Cols)
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

// Multiply 矩阵乘法: C = A * B.
func (m *Matrix) Multiply(other *Matrix) (*Matrix, error) {
	if m.Cols != other.Rows {
		return nil, xerrors.Detailf(xerrors.ErrDimMismatch, "%dx%d * %dx%d", m.Rows, m.Cols, other.Rows, other.Cols)
	}

	res := NewMatrix(m.Rows, other.Cols)

	for i := range m.Rows {
		rowOffsetA := i * m.Cols
		rowOffsetC := i * res.Cols

		for k := range m.Cols {
			valA := m.Data[rowOffsetA+k]
			rowOffsetB := k * other.Cols

			for j := range other.Cols {
				res.Data[rowOffsetC+j] += valA * other.Data[rowOffsetB+j]
			}
		}
	}

	return res, nil
}

// HorizontalConcat 水平拼接 [A | B]，两者行数必须一致.
func (m *Matrix) HorizontalConcat(other *Matrix) (*Matrix, error) {
	if m.Rows != other.Rows {
		return nil, xerrors.Detailf(xerrors.ErrDimMismatch, "row counts %d and %d", m.Rows, other.Rows)
	}

	res := NewMatrix(m.Rows, m.Cols+other.Cols)
	for i := range m.Rows {
		row := res.Row(i)
		copy(row, m.Row(i))
		copy(row[m.Cols:], other.Row(i))
	}

	return res, nil
}

// Cholesky 分解: A = L * L^T.
func (m *Matrix) Cholesky() (*Matrix, error) {
	if m.Rows != m.Cols {
		return nil, xerrors.ErrNotSquare
	}

	n := m.Rows
	res := NewMatrix(n, n)

	for i := range n {
		for j := range i + 1 {
			var sum float64
			for k := range j {
				sum += res.Get(i, k) * res.Get(j, k)
			}

			if i == j {
				val := m.Get(i, i) - sum
				if val <= 0 {
					return nil, xerrors.Detailf(xerrors.ErrNotPositiveDefinite, "pivot %d is %g", i, val)
				}

				res.Set(i, j, math.Sqrt(val))
			} else {
				res.Set(i, j, (m.Get(i, j)-sum)/res.Get(j, j))
			}
		}
	}

	return res, nil
}

// Inverse Gauss-Jordan 求逆.
// 在增广矩阵 [A | I] 上逐列消元：自当前行向下选取该列第一个非零元所在行作为主元行，
// 归一化后从其余所有行中消去该列. 是否为零按行尺度判断，量级悬殊的满秩矩阵不会被误判为奇异.
func (m *Matrix) Inverse() (*Matrix, error) {
	if m.Rows != m.Cols {
		return nil, xerrors.ErrNotSquare
	}

	n := m.Rows
	rowScale := make([]float64, n)
	for i := range n {
		for _, v := range m.Row(i) {
			rowScale[i] = math.Max(rowScale[i], math.Abs(v))
		}
		if rowScale[i] == 0 {
			return nil, xerrors.Detailf(xerrors.ErrSingularMatrix, "row %d is zero", i)
		}
	}

	aug, _ := m.HorizontalConcat(Identity(n))
	width := aug.Cols

	for c := range n {
		pr := -1
		for r := c; r < n; r++ {
			if math.Abs(aug.Get(r, c)) > pivotTolerance*rowScale[r] {
				pr = r
				break
			}
		}
		if pr < 0 {
			return nil, xerrors.Detailf(xerrors.ErrSingularMatrix, "column %d", c)
		}
		if pr != c {
			aug.swapRows(pr, c)
			rowScale[pr], rowScale[c] = rowScale[c], rowScale[pr]
		}

		pivotRow := aug.Row(c)
		pivot := pivotRow[c]
		for j := range width {
			pivotRow[j] /= pivot
		}

		for r := range n {
			if r == c {
				continue
			}
			row := aug.Row(r)
			factor := row[c]
			if factor == 0 {
				continue
			}
			for j := range width {
				row[j] -= factor * pivotRow[j]
			}
		}
	}

	res := NewMatrix(n, n)
	for i := range n {
		copy(res.Row(i), aug.Row(i)[n:])
	}

	return res, nil
}

func (m *Matrix) swapRows(i, j int) {
	ri, rj := m.Row(i), m.Row(j)
	for k := range ri {
		ri[k], rj[k] = rj[k], ri[k]
	}
}
