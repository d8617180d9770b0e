package math

import (
	"math"
)

// 有理逼近系数 (Abramowitz & Stegun 26.2.23)，绝对误差 < 4.5e-4.
const (
	invCDFc0 = 2.515517
	invCDFc1 = 0.802853
	invCDFc2 = 0.010328
	invCDFd1 = 1.432788
	invCDFd2 = 0.189269
	invCDFd3 = 0.001308
)

// NormalInvCDF 标准正态分布的逆累积分布函数，p 取值 (0, 1).
func NormalInvCDF(p float64) float64 {
	switch {
	case p == 0.5:
		return 0
	case p < 0.5:
		return -upperTailQuantile(p)
	default:
		return upperTailQuantile(1 - p)
	}
}

// upperTailQuantile 返回满足 P(Z > x) = q 的 x，q 取值 (0, 0.5].
func upperTailQuantile(q float64) float64 {
	t := math.Sqrt(math.Log(1 / (q * q)))
	num := invCDFc0 + invCDFc1*t + invCDFc2*t*t
	den := 1 + invCDFd1*t + invCDFd2*t*t + invCDFd3*t*t*t
	return t - num/den
}
