package geometry

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	xerrors "TrustMesh/internal/errors"
)

// profileFile 描述本地信任画像 YAML 文件的结构。
type profileFile struct {
	Categories map[string]float64 `yaml:"categories"`
}

// LoadProfile 解析本地信任画像文件并构造基线向量。
// 画像由外部管线产出，这里只校验类别域与 [0,1] 数值范围。
func LoadProfile(path string) (Vector, error) {
	if strings.TrimSpace(path) == "" {
		return Vector{}, xerrors.New(CodeProfileInvalid, "信任画像路径不能为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Vector{}, xerrors.Wrap(CodeProfileInvalid, err, "读取信任画像失败")
	}

	var file profileFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return Vector{}, xerrors.Wrap(CodeProfileInvalid, err, "解析信任画像失败")
	}
	if len(file.Categories) == 0 {
		return Vector{}, xerrors.New(CodeProfileInvalid, "信任画像未包含任何类别")
	}

	for name, score := range file.Categories {
		if score < 0 || score > 1 {
			return Vector{}, xerrors.New(CodeProfileInvalid,
				fmt.Sprintf("类别 %s 的分值 %v 超出 [0,1]", name, score))
		}
	}

	vector, err := FromScores(file.Categories)
	if err != nil {
		return Vector{}, err
	}
	return vector, nil
}
