package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/hybrid-bistoon/anbar/internal/apperr"
	"github.com/hybrid-bistoon/anbar/internal/utils"
)

// Towel names carry sizes like 50×60. Imports sometimes lose a trailing zero
// (5×6); both sides under 20 is the tell.
var dimensionPattern = regexp.MustCompile(`(\d{1,2})[×xX](\d{1,2})`)

const suspiciousDimension = 20

// commonSizes are the sizes the business actually sells, both orientations
var commonSizes = [][2]int{
	{50, 60}, {60, 50}, {40, 60}, {60, 40}, {30, 50}, {50, 30},
	{70, 140}, {140, 70}, {100, 150}, {150, 100},
}

// DimensionIssue is a product whose name holds an implausibly small size
type DimensionIssue struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Model      string `json:"model"`
	Dimensions string `json:"dimensions"`
	Suggested  string `json:"suggested"`
}

// DimensionIssues lists up to limit products whose names look like they lost
// a digit, each with the closest common size as a suggestion
func (s *Service) DimensionIssues(ctx context.Context, limit int) ([]DimensionIssue, error) {
	if limit <= 0 {
		limit = 50
	}
	products, err := s.store.FindProductsByName(ctx, []string{"×", "x", "X"}, 0)
	if err != nil {
		return nil, apperr.Internal("failed to scan products", err)
	}

	issues := []DimensionIssue{}
	for _, p := range products {
		if len(issues) >= limit {
			break
		}
		w, h, dims, ok := smallDimensions(p.Name)
		if !ok {
			continue
		}
		sw, sh := closestSize(w, h)
		issues = append(issues, DimensionIssue{
			Code:       p.Code,
			Name:       p.Name,
			Model:      p.Model,
			Dimensions: dims,
			Suggested:  fmt.Sprintf("%d×%d", sw, sh),
		})
	}
	return issues, nil
}

func smallDimensions(name string) (int, int, string, bool) {
	for _, m := range dimensionPattern.FindAllStringSubmatch(utils.NormalizeDigits(name), -1) {
		w, _ := strconv.Atoi(m[1])
		h, _ := strconv.Atoi(m[2])
		if w < suspiciousDimension && h < suspiciousDimension {
			return w, h, m[0], true
		}
	}
	return 0, 0, "", false
}

// closestSize picks the common size with the smallest L1 distance
func closestSize(w, h int) (int, int) {
	best, bestScore := commonSizes[0], -1
	for _, c := range commonSizes {
		score := abs(c[0]-w) + abs(c[1]-h)
		if bestScore < 0 || score < bestScore {
			best, bestScore = c, score
		}
	}
	return best[0], best[1]
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
