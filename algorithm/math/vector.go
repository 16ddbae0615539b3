package math

import (
	"math"
	"slices"
)

// UniformNodes 返回 n 个等距节点 start, start+step, ..., start+(n-1)*step.
// 节点按 i*step 计算而非累加, 避免舍入误差漂移.
func UniformNodes(start, step float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

// MaxAbsDiff 返回两个等长向量逐元素差的最大绝对值; 长度不等时返回 +Inf.
func MaxAbsDiff(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var m float64
	for i := range a {
		if d := math.Abs(a[i] - b[i]); d > m || math.IsNaN(d) {
			m = d
		}
	}
	return m
}

// Mean 算术平均, 空切片返回 NaN.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// Median 中位数, 不修改输入, 空切片返回 NaN.
func Median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	sorted := slices.Clone(xs)
	slices.Sort(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Lerp 在 (x0, y0) 与 (x1, y1) 之间按 y 坐标反求 x, 权重截断到 [0, 1].
// 当 y0 == y1 时返回 x0.
func Lerp(x0, x1, y0, y1, target float64) float64 {
	if y1 == y0 {
		return x0
	}
	w := (target - y0) / (y1 - y0)
	w = math.Min(math.Max(w, 0), 1)
	return x0 + w*(x1-x0)
}
