// Package sim 提供蒙特卡洛情景所需的相关正态随机数生成.
package sim

import (
	"math/rand/v2"
	"runtime"
	"sync"

	algomath "github.com/wyfcoding/exposure/algorithm/math"
	"github.com/wyfcoding/exposure/xerrors"
)

// chunkSize 每个随机流负责的样本数. 样本按块切分，每块使用由 (seed, 块序号) 确定的独立 PCG 流，
// 因此结果与并发度无关.
const chunkSize = 4096

// Simulator 相关正态变量生成器.
type Simulator struct {
	seed    uint64
	workers int
}

// NewSimulator 创建生成器. workers <= 0 时使用 GOMAXPROCS.
func NewSimulator(seed uint64, workers int) *Simulator {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Simulator{seed: seed, workers: workers}
}

// NormalVariates 生成 sampleSize 个 numVars 维、相关矩阵为 corr 的标准正态样本.
// 返回行优先的 sampleSize x numVars 数据，行即样本，列即变量，与 Cube 的存储顺序一致.
func (s *Simulator) NormalVariates(numVars, sampleSize int, corr []float64) ([]float64, error) {
	if numVars == 0 || sampleSize == 0 {
		return []float64{}, nil
	}
	if len(corr) != numVars*numVars {
		return nil, xerrors.Detailf(xerrors.ErrDimMismatch, "correlation has %d entries, want %d", len(corr), numVars*numVars)
	}

	c, err := algomath.NewMatrixFromFlat(corr, numVars, numVars)
	if err != nil {
		return nil, err
	}
	chol, err := c.Cholesky()
	if err != nil {
		return nil, err
	}

	z := algomath.NewMatrix(sampleSize, numVars)
	s.fillIndependent(z.Data)

	x, err := z.Multiply(chol.Transpose())
	if err != nil {
		return nil, err
	}
	return x.Data, nil
}

// fillIndependent 以 U(0,1) 开区间均匀数经逆 CDF 填充独立标准正态数.
func (s *Simulator) fillIndependent(out []float64) {
	numChunks := (len(out) + chunkSize - 1) / chunkSize

	numWorkers := s.workers
	if numChunks < numWorkers {
		numWorkers = numChunks
	}

	var wg sync.WaitGroup
	wg.Add(numChunks)

	// 使用信号量限制最大并发协程.
	sem := make(chan struct{}, numWorkers)

	for ci := range numChunks {
		go func(chunk int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			lo := chunk * chunkSize
			hi := min(lo+chunkSize, len(out))
			rng := rand.New(rand.NewPCG(s.seed, uint64(chunk)))
			for i := lo; i < hi; i++ {
				out[i] = algomath.NormalInvCDF(openUniform(rng))
			}
		}(ci)
	}
	wg.Wait()
}

// openUniform 返回 (0, 1) 开区间上的均匀数.
func openUniform(rng *rand.Rand) float64 {
	for {
		if u := rng.Float64(); u > 0 {
			return u
		}
	}
}
