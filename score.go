package imagefinder

import (
	"sort"

	"github.com/zombar/imagefinder/models"
)

// Scoring weights. Resolution dominates keyword match, and extreme aspect
// ratios (banners, skyscrapers) are penalized.
const (
	scoreHighRes          = 2.0
	scoreMidRes           = 1.0
	scoreKeyword          = 1.0
	scoreAspectPenalty    = 1.0
	aspectRatioMin        = 0.6
	aspectRatioMax        = 1.8
	midResDimension       = 400
	highResScoreDimension = 800
)

// Score computes the deterministic score for a validated image. Pure: the
// same image always yields the same score.
func Score(img models.ValidatedImage) float64 {
	score := float64(img.AdjustedPriority)

	switch {
	case img.Width >= highResScoreDimension && img.Height >= highResScoreDimension:
		score += scoreHighRes
	case img.Width >= midResDimension && img.Height >= midResDimension:
		score += scoreMidRes
	}

	if img.HasKeywords {
		score += scoreKeyword
	}

	if img.AspectRatio < aspectRatioMin || img.AspectRatio > aspectRatioMax {
		score -= scoreAspectPenalty
	}

	return score
}

// Rank orders validated images by score, best first. Among equal scores the
// candidate discovered earliest in extraction order wins, regardless of how
// the input happens to be ordered. The input slice is not modified.
func Rank(images []models.ValidatedImage) []models.ValidatedImage {
	ranked := make([]models.ValidatedImage, len(images))
	copy(ranked, images)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := Score(ranked[i]), Score(ranked[j])
		if si != sj {
			return si > sj
		}
		return ranked[i].Order < ranked[j].Order
	})
	return ranked
}
