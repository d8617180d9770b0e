package math

import (
	"errors"
	"math"

	"github.com/wyfcoding/exposure/xerrors"
)

// LinearRegression 普通最小二乘: beta = (X^T X)^-1 X^T y.
// x 为 n x m 设计矩阵，截距列由调用方提供. 求解前把 x 的各列缩放到单位范数，
// 因此特征量级 (如 1e3 与其平方 1e6) 不影响法方程的可解性.
func LinearRegression(x *Matrix, y []float64) ([]float64, error) {
	if x.Rows != len(y) {
		return nil, xerrors.Detailf(xerrors.ErrDimMismatch, "design has %d rows, response has %d", x.Rows, len(y))
	}
	if x.Rows == 0 {
		return nil, xerrors.ErrDegenerateRegression
	}

	norms := columnNorms(x)
	scaled := x.Clone()
	for i := range scaled.Rows {
		row := scaled.Row(i)
		for j, nrm := range norms {
			row[j] /= nrm
		}
	}

	xt := scaled.Transpose()
	xtx, err := xt.Multiply(scaled)
	if err != nil {
		return nil, err
	}

	inv, err := xtx.Inverse()
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.ErrNumerical, "normal matrix is not invertible")
	}

	xty, err := xt.MultiplyVector(y)
	if err != nil {
		return nil, err
	}

	beta, err := inv.MultiplyVector(xty)
	if err != nil {
		return nil, err
	}
	for j, nrm := range norms {
		beta[j] /= nrm
	}
	return beta, nil
}

// columnNorms 各列的欧氏范数，全零列记为 1 (其法方程行仍为零，由求逆报告奇异).
func columnNorms(x *Matrix) []float64 {
	norms := make([]float64, x.Cols)
	for i := range x.Rows {
		for j, v := range x.Row(i) {
			norms[j] += v * v
		}
	}
	for j, sq := range norms {
		if sq == 0 {
			norms[j] = 1
			continue
		}
		norms[j] = math.Sqrt(sq)
	}
	return norms
}

// constantTolerance 判定特征相同的相对容差.
const constantTolerance = 1e-12

// LinearRegressor 带截距的线性回归器.
// Params 长度为 NumPredictors+1，截距位于末尾.
type LinearRegressor struct {
	Params        []float64
	NumPredictors int
}

// ZeroRegressor 返回所有参数为零的回归器，其预测恒为 0.
func ZeroRegressor(numPredictors int) *LinearRegressor {
	return &LinearRegressor{
		Params:        make([]float64, numPredictors+1),
		NumPredictors: numPredictors,
	}
}

// FitRegressor 以行优先的 n x numPredictors 特征 x 拟合 y.
// 所有样本特征相同时斜率无法识别，返回斜率为零、截距为 y 均值的最小二乘解.
// 无样本或法方程奇异时返回 ErrDegenerateRegression，由调用方决定是否退化为 ZeroRegressor.
func FitRegressor(x []float64, y []float64, numPredictors int) (*LinearRegressor, error) {
	n := len(y)
	if len(x) != n*numPredictors {
		return nil, xerrors.Detailf(xerrors.ErrDimMismatch, "%d features for %d cases of %d predictors", len(x), n, numPredictors)
	}
	if n == 0 {
		return nil, xerrors.Detailf(xerrors.ErrDegenerateRegression, "no data cases")
	}

	if numPredictors > 0 && constantFeatures(x, n, numPredictors) {
		return interceptOnly(y, numPredictors), nil
	}

	cols := numPredictors + 1
	design := NewMatrix(n, cols)
	for i := range n {
		row := design.Row(i)
		copy(row, x[i*numPredictors:(i+1)*numPredictors])
		row[numPredictors] = 1
	}

	params, err := LinearRegression(design, y)
	if err != nil {
		if errors.Is(err, xerrors.ErrSingularMatrix) {
			return nil, xerrors.Detailf(xerrors.ErrDegenerateRegression, "%d cases, %d parameters: %v", n, cols, err)
		}
		return nil, err
	}

	return &LinearRegressor{Params: params, NumPredictors: numPredictors}, nil
}

// Predict 计算 sum(params[i]*x[i]) + 截距.
func (r *LinearRegressor) Predict(x []float64) (float64, error) {
	if len(x) != r.NumPredictors {
		return 0, xerrors.Detailf(xerrors.ErrDimMismatch, "got %d predictors, want %d", len(x), r.NumPredictors)
	}

	res := r.Params[r.NumPredictors]
	for i, v := range x {
		res += r.Params[i] * v
	}
	return res, nil
}

// constantFeatures 所有样本的特征是否与第一个样本相同.
func constantFeatures(x []float64, n, numPredictors int) bool {
	first := x[:numPredictors]
	for i := 1; i < n; i++ {
		for j, v := range x[i*numPredictors : (i+1)*numPredictors] {
			if math.Abs(v-first[j]) > constantTolerance*math.Max(1, math.Abs(first[j])) {
				return false
			}
		}
	}
	return true
}

func interceptOnly(y []float64, numPredictors int) *LinearRegressor {
	reg := ZeroRegressor(numPredictors)
	var sum float64
	for _, v := range y {
		sum += v
	}
	reg.Params[numPredictors] = sum / float64(len(y))
	return reg
}
