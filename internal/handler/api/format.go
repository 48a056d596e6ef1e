package api

import (
	"fmt"
	"html/template"
	"math"
	"strings"
	"time"

	"github.com/MrMerge8/recursive/internal/domain/models"
	"github.com/MrMerge8/recursive/internal/usecase"
)

var templateFuncs = template.FuncMap{
	"money":     money,
	"pct":       func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	"fixed2":    func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"errPct":    func(v float64) string { return fmt.Sprintf("%.3f%%", v) },
	"clock":     func(t time.Time) string { return t.UTC().Format("Jan 02 15:04") },
	"unix":      func(t time.Time) int64 { return t.Unix() },
	"accClass":  accuracyClass,
	"truncate":  truncate,
	"nextMeta":  nextMeta,
	"deref":     derefFloat,
	"signal":    signalLabel,
	"isCorrect": func(p models.Prediction) bool { return p.Correct() },
}

// money renders 64231.5 as $64,231.50.
func money(v float64) string {
	neg := v < 0
	cents := int64(math.Round(math.Abs(v) * 100))
	whole, frac := cents/100, cents%100

	s := fmt.Sprintf("%d", whole)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := fmt.Sprintf("$%s.%02d", b.String(), frac)
	if neg {
		return "-" + out
	}
	return out
}

func accuracyClass(acc float64) string {
	switch {
	case acc >= 55:
		return "good"
	case acc >= 45:
		return "neutral"
	default:
		return "bad"
	}
}

func truncate(n int, s string) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func nextMeta(n int) string {
	if n > 0 {
		return fmt.Sprintf("in %d preds", n)
	}
	return "ready"
}

func derefFloat(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// signalLabel mirrors the consensus wording shown beside the latest prediction.
func signalLabel(p *models.Prediction, v *models.Verification) string {
	if p == nil || v == nil {
		return ""
	}
	return string(usecase.DetermineConsensusSignal(*p, *v).Signal)
}
