package geometry

import "math"

const (
	// AlignedBand 是单类别判定为一致的最大分差。
	AlignedBand = 0.2
	// DivergentBand 是单类别判定为分歧的最小分差（严格大于）。
	DivergentBand = 0.4
)

// OverlapResult 汇总两个信任向量的几何重合度与逐类别分类。
// 分差落在 (AlignedBand, DivergentBand] 之间的类别既不一致也不分歧，
// 不会出现在任何一个列表中；需要完整展示全部类别的消费方必须自行
// 处理这一静默区间。
type OverlapResult struct {
	Overlap   float64  `json:"overlap"`
	Aligned   []string `json:"aligned"`
	Divergent []string `json:"divergent"`
}

// Overlap 计算两个向量的归一化余弦重合度及逐类别分类。
// 重合度取 |dot|/(‖a‖·‖b‖)，任一范数为 0 时定义为 0；
// 方向性在此场景下没有意义，因此只保留幅值，结果恒落在 [0,1]。
func Overlap(a, b Vector) OverlapResult {
	var dot, normA, normB float64
	for i := 0; i < Dimension; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	result := OverlapResult{
		Aligned:   make([]string, 0, Dimension),
		Divergent: make([]string, 0, Dimension),
	}

	if normA > 0 && normB > 0 {
		result.Overlap = math.Abs(dot) / (math.Sqrt(normA) * math.Sqrt(normB))
		// 浮点误差可能使结果略超 1。
		if result.Overlap > 1 {
			result.Overlap = 1
		}
	}

	for i, name := range Categories {
		diff := math.Abs(a[i] - b[i])
		switch {
		case diff <= AlignedBand:
			result.Aligned = append(result.Aligned, name)
		case diff > DivergentBand:
			result.Divergent = append(result.Divergent, name)
		}
	}
	return result
}

// Compatible 判断两个向量的重合度是否达到给定阈值。
func Compatible(a, b Vector, threshold float64) bool {
	return Overlap(a, b).Overlap >= threshold
}
