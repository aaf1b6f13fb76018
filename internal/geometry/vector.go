package geometry

import (
	"fmt"

	xerrors "TrustMesh/internal/errors"
)

// Dimension 是信任向量的固定维度。
const Dimension = 20

// Categories 按既定顺序列出全部行为类别。顺序是规范化形式的一部分，
// 不允许在运行期修改。
var Categories = [Dimension]string{
	"security",
	"reliability",
	"code_quality",
	"transparency",
	"cooperation",
	"honesty",
	"consistency",
	"privacy",
	"safety",
	"accountability",
	"robustness",
	"fairness",
	"autonomy",
	"compliance",
	"efficiency",
	"adaptability",
	"communication",
	"resource_use",
	"error_handling",
	"goal_alignment",
}

// categoryIndex 将类别名映射到其规范序号。
var categoryIndex = func() map[string]int {
	index := make(map[string]int, Dimension)
	for i, name := range Categories {
		index[name] = i
	}
	return index
}()

const (
	CodeDimensionMismatch xerrors.Code = "GEOMETRY_DIMENSION_MISMATCH"
	CodeUnknownCategory   xerrors.Code = "GEOMETRY_UNKNOWN_CATEGORY"
	CodeProfileInvalid    xerrors.Code = "GEOMETRY_PROFILE_INVALID"
)

func init() {
	xerrors.Register(CodeDimensionMismatch, xerrors.Attributes{
		Message:   "trust vector dimension mismatch",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeUnknownCategory, xerrors.Attributes{
		Message:   "unknown trust category",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeProfileInvalid, xerrors.Attributes{
		Message:   "trust profile invalid",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
}

// Vector 是某个智能体在全部类别上的自报信任画像，分值范围 [0,1]。
// Vector 一经构造不可变，只以派生的哈希与 overlap 标量参与持久化。
type Vector [Dimension]float64

// FromScores 由稀疏的类别分值映射构造向量，缺失类别默认取 0。
// 出现未知类别名时返回 GEOMETRY_UNKNOWN_CATEGORY 错误。
func FromScores(scores map[string]float64) (Vector, error) {
	var v Vector
	for name, score := range scores {
		i, ok := categoryIndex[name]
		if !ok {
			return Vector{}, xerrors.New(CodeUnknownCategory,
				fmt.Sprintf("未知的信任类别: %s", name))
		}
		v[i] = clampScore(score)
	}
	return v, nil
}

// FromSlice 由长度恰好为 Dimension 的有序数组构造向量。
// 长度不符返回 GEOMETRY_DIMENSION_MISMATCH 错误，由调用方修复，不在内部恢复。
func FromSlice(scores []float64) (Vector, error) {
	if len(scores) != Dimension {
		return Vector{}, xerrors.New(CodeDimensionMismatch,
			fmt.Sprintf("信任向量维度必须为 %d, 实际为 %d", Dimension, len(scores)))
	}
	var v Vector
	for i, score := range scores {
		v[i] = clampScore(score)
	}
	return v, nil
}

// Uniform 返回所有类别均为同一分值的向量，主要用于测试与基线构造。
func Uniform(score float64) Vector {
	var v Vector
	score = clampScore(score)
	for i := range v {
		v[i] = score
	}
	return v
}

// Score 返回指定类别的分值，类别未知时返回 0 与 false。
func (v Vector) Score(category string) (float64, bool) {
	i, ok := categoryIndex[category]
	if !ok {
		return 0, false
	}
	return v[i], true
}

// Scores 以类别名为键导出全部分值。
func (v Vector) Scores() map[string]float64 {
	scores := make(map[string]float64, Dimension)
	for i, name := range Categories {
		scores[name] = v[i]
	}
	return scores
}

// IsZero 判断是否为全零向量。
func (v Vector) IsZero() bool {
	for _, score := range v {
		if score != 0 {
			return false
		}
	}
	return true
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
