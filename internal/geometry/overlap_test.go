package geometry

import (
	"math"
	"testing"
)

func TestOverlapSelfIsOne(t *testing.T) {
	v := Uniform(0.8)
	result := Overlap(v, v)
	if math.Abs(result.Overlap-1) > 1e-9 {
		t.Fatalf("expected self overlap 1, got %f", result.Overlap)
	}
	if len(result.Aligned) != Dimension {
		t.Fatalf("expected all %d categories aligned, got %d", Dimension, len(result.Aligned))
	}
	if len(result.Divergent) != 0 {
		t.Fatalf("expected no divergent categories, got %v", result.Divergent)
	}
}

func TestOverlapZeroVectors(t *testing.T) {
	var zero Vector
	result := Overlap(zero, zero)
	if result.Overlap != 0 {
		t.Fatalf("expected zero overlap for zero vectors, got %f", result.Overlap)
	}
	// 两个全零向量逐类别分差为 0，全部类别仍判为一致。
	if len(result.Aligned) != Dimension {
		t.Fatalf("expected all categories aligned, got %d", len(result.Aligned))
	}

	other := Uniform(0.5)
	if got := Overlap(zero, other).Overlap; got != 0 {
		t.Fatalf("expected zero overlap against zero vector, got %f", got)
	}
}

func TestOverlapSymmetryAndRange(t *testing.T) {
	a, err := FromScores(map[string]float64{
		"security":    0.9,
		"reliability": 0.4,
		"honesty":     0.7,
		"safety":      0.2,
	})
	if err != nil {
		t.Fatalf("build vector a: %v", err)
	}
	b, err := FromScores(map[string]float64{
		"security":       0.3,
		"reliability":    0.8,
		"privacy":        0.6,
		"goal_alignment": 1.0,
	})
	if err != nil {
		t.Fatalf("build vector b: %v", err)
	}

	ab := Overlap(a, b).Overlap
	ba := Overlap(b, a).Overlap
	if math.Abs(ab-ba) > 1e-12 {
		t.Fatalf("overlap not symmetric: %f vs %f", ab, ba)
	}
	if ab < 0 || ab > 1 {
		t.Fatalf("overlap out of range: %f", ab)
	}
}

func TestOverlapCategoryBands(t *testing.T) {
	a := Uniform(0.5)
	b := Uniform(0.5)
	// security 分差 0.5 落入分歧区，reliability 分差 0.3 落入静默区。
	b[0] = 0.0
	b[1] = 0.2

	result := Overlap(a, b)
	if len(result.Divergent) != 1 || result.Divergent[0] != "security" {
		t.Fatalf("unexpected divergent list: %v", result.Divergent)
	}
	if len(result.Aligned) != Dimension-2 {
		t.Fatalf("expected %d aligned categories, got %d", Dimension-2, len(result.Aligned))
	}
	for _, name := range result.Aligned {
		if name == "reliability" || name == "security" {
			t.Fatalf("category %s should not be aligned", name)
		}
	}
}

func TestCompatible(t *testing.T) {
	a := Uniform(0.8)
	if !Compatible(a, a, 0.8) {
		t.Fatal("identical vectors should be compatible at any threshold")
	}
	var zero Vector
	if Compatible(a, zero, 0.8) {
		t.Fatal("zero vector should never be compatible at a positive threshold")
	}
}
