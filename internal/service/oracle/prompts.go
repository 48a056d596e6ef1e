package oracle

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/MrMerge8/recursive/internal/domain/models"
	domrepo "github.com/MrMerge8/recursive/internal/domain/repository"
	dsvc "github.com/MrMerge8/recursive/internal/domain/service"
	"github.com/MrMerge8/recursive/pkg/util"
)

const (
	recentCandles        = 12
	verifierLearningRune = 100
	noHistory            = "No historical learnings yet. This is an early prediction."
)

// BuildPredictionPrompt renders the primary forecaster's prompt.
func BuildPredictionPrompt(req dsvc.PredictionRequest) string {
	m := req.Market
	s := m.Snapshot
	st := m.Stats
	tr := req.TrackRecord
	horizon := horizonText(req.Timeframe)

	var b strings.Builder
	fmt.Fprintf(&b, "You are a BTC price prediction system. Your goal is to predict the direction and target price of BTC/USDT in the next %s.\n\n", horizon)

	b.WriteString("## Current State\n")
	fmt.Fprintf(&b, "- **Current Price**: $%s\n", money(m.Price))
	fmt.Fprintf(&b, "- **Time (UTC)**: %s\n\n", req.Now.UTC().Format("2006-01-02 15:04"))

	b.WriteString("## 24-Hour Statistics\n")
	fmt.Fprintf(&b, "- Price Change: %+.2f%%\n", st.PriceChangePct)
	fmt.Fprintf(&b, "- 24h High: $%s\n", money(st.High))
	fmt.Fprintf(&b, "- 24h Low: $%s\n", money(st.Low))
	fmt.Fprintf(&b, "- 24h Volume: %s BTC\n", money(st.Volume))
	fmt.Fprintf(&b, "- VWAP: $%s\n\n", money(st.WeightedAvgPrice))

	fmt.Fprintf(&b, "## Market Structure Analysis (from %d candles)\n", len(m.Candles))
	if s.Empty() {
		b.WriteString("- **Trend**: N/A (insufficient history)\n\n")
	} else {
		fmt.Fprintf(&b, "- **Trend**: %s\n", s.Trend)
		fmt.Fprintf(&b, "- Moving Averages: short=$%s | medium=$%s | full=$%s\n", money(s.MAShort), money(s.MAMedium), money(s.MAFull))
		fmt.Fprintf(&b, "- Volatility (per-candle returns): %.3f%%\n", s.VolatilityPct)
		fmt.Fprintf(&b, "- Momentum: 1h=%+.2f%% | 4h=%+.2f%%\n", s.Momentum1hPct, s.Momentum4hPct)
		fmt.Fprintf(&b, "- Day Range: $%s - $%s\n", money(s.DayLow), money(s.DayHigh))
		fmt.Fprintf(&b, "- Recent Range (2h): $%s - $%s\n", money(s.RecentLow), money(s.RecentHigh))
		fmt.Fprintf(&b, "- Position in Day Range: %.1f%%\n", s.PositionInRange)
		fmt.Fprintf(&b, "- Volume Ratio (recent/avg): %.2fx\n\n", s.VolumeRatio)
	}

	b.WriteString("## Recent Price Action\n")
	b.WriteString(FormatCandles(m.Candles, recentCandles))
	b.WriteString("\n\n")

	b.WriteString("## Your Track Record\n")
	fmt.Fprintf(&b, "- Total Predictions: %d\n", tr.Total)
	fmt.Fprintf(&b, "- Accuracy: %.1f%%\n", tr.AccuracyPct)
	fmt.Fprintf(&b, "- Avg Target Error: %.2f%%\n", tr.AvgTargetErrorPct)
	fmt.Fprintf(&b, "- Avg Calibration: %.2f\n", tr.AvgCalibration)
	fmt.Fprintf(&b, "- Active Meta-Rules: %d\n\n", tr.ActiveMetaRules)

	b.WriteString(BuildLearningContext(req.MetaRules, req.Extremes))
	b.WriteString("\n\n")

	b.WriteString("## Your Task\n")
	b.WriteString("Based on ALL the data above (including meta-rules and learnings), predict:\n")
	fmt.Fprintf(&b, "1. **Direction**: Will price be UP or DOWN in %s?\n", horizon)
	b.WriteString("2. **Target**: What specific price do you predict?\n")
	b.WriteString("3. **Confidence**: How confident are you? (0-100%)\n\n")
	b.WriteString("IMPORTANT: Apply any relevant meta-rules from above. They represent patterns learned from past mistakes.\n\n")
	b.WriteString("Be detailed in your reasoning - explain which factors and rules influenced your prediction.\n\n")
	b.WriteString("Respond in this exact JSON format:\n")
	b.WriteString("```json\n{\n")
	b.WriteString("    \"direction\": \"UP\" or \"DOWN\",\n")
	b.WriteString("    \"target\": <number>,\n")
	b.WriteString("    \"confidence\": <0-100>,\n")
	b.WriteString("    \"reasoning\": \"<detailed explanation referencing specific data points and any meta-rules applied>\"\n")
	b.WriteString("}\n```")
	return b.String()
}

// BuildLearningContext lists meta-rules first, then extremes with their learnings.
func BuildLearningContext(rules []models.MetaRule, extremes []models.Prediction) string {
	if len(rules) == 0 && len(extremes) == 0 {
		return noHistory
	}

	var b strings.Builder
	if len(rules) > 0 {
		b.WriteString("## Meta-Learning Rules (from pattern analysis)\n")
		for i, r := range rules {
			fmt.Fprintf(&b, "\n### Meta-Rule %d (%s)\n", i+1, r.PatternType)
			fmt.Fprintf(&b, "- **Pattern**: %s\n", r.PatternDescription)
			fmt.Fprintf(&b, "- **Rule**: %s\n", r.Rule)
			fmt.Fprintf(&b, "- **Confidence**: %.0f%%\n", r.ConfidenceScore*100)
		}
		b.WriteString("\n")
	}

	if len(extremes) > 0 {
		b.WriteString("## Learnings from Past Predictions (Extremes)\n")
		for i := range extremes {
			ex := &extremes[i]
			result := "Wrong"
			if ex.Correct() {
				result = "Correct"
			}
			fmt.Fprintf(&b, "\n### Learning %d\n", i+1)
			fmt.Fprintf(&b, "- **Prediction**: %s to $%.2f (%d%% confidence)\n", ex.PredictedDirection, ex.PredictedTarget, ex.Confidence)
			fmt.Fprintf(&b, "- **Actual**: %s to $%.2f\n", ex.ActualDir(), ex.Actual())
			fmt.Fprintf(&b, "- **Result**: %s direction, %.2f%% target error\n", result, ex.ErrorPct())
			fmt.Fprintf(&b, "- **Why Extreme**: %s\n", ex.Reason())
			fmt.Fprintf(&b, "- **Learning**: %s\n", ex.Learning())
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// BuildVerificationPrompt renders the verifier's prompt for one primary forecast.
func BuildVerificationPrompt(req dsvc.VerificationRequest) string {
	p := req.Prediction
	s := req.Snapshot

	var b strings.Builder
	b.WriteString("You are acting as an independent verifier for an LLM-based BTC prediction system (the primary).\n\n")

	b.WriteString("## Your Role\n")
	b.WriteString("Review the primary's prediction and determine if you agree with it. Your job is to:\n")
	b.WriteString("1. Identify potential errors in the primary's reasoning\n")
	b.WriteString("2. Check if the primary is following its own meta-rules\n")
	b.WriteString("3. Provide an independent assessment\n\n")

	b.WriteString("## Primary's Prediction\n")
	fmt.Fprintf(&b, "- **Direction**: %s\n", p.PredictedDirection)
	fmt.Fprintf(&b, "- **Target Price**: $%s\n", money(p.PredictedTarget))
	fmt.Fprintf(&b, "- **Confidence**: %d%%\n", p.Confidence)
	fmt.Fprintf(&b, "- **Current Price**: $%s\n", money(p.CurrentPrice))
	fmt.Fprintf(&b, "- **Reasoning**: %s\n\n", p.Reasoning)

	b.WriteString("## Current Market Data\n")
	trend := "N/A"
	if !s.Empty() {
		trend = string(s.Trend)
	}
	volumeRatio, position := s.VolumeRatio, s.PositionInRange
	if s.Empty() {
		volumeRatio, position = 1, 50
	}
	fmt.Fprintf(&b, "- **Trend**: %s\n", trend)
	fmt.Fprintf(&b, "- **1h Momentum**: %+.2f%%\n", s.Momentum1hPct)
	fmt.Fprintf(&b, "- **4h Momentum**: %+.2f%%\n", s.Momentum4hPct)
	fmt.Fprintf(&b, "- **Volatility**: %.3f%%\n", s.VolatilityPct)
	fmt.Fprintf(&b, "- **Volume Ratio**: %.2fx average\n", volumeRatio)
	fmt.Fprintf(&b, "- **Position in Day Range**: %.1f%%\n", position)

	if len(req.PrimaryRules) > 0 {
		b.WriteString("\n## Primary's Active Meta-Rules (learned patterns)\n")
		writeRuleList(&b, req.PrimaryRules)
	}
	if len(req.VerifierRules) > 0 {
		b.WriteString("\n## Your Own Meta-Rules (from past verification)\n")
		writeRuleList(&b, req.VerifierRules)
	}
	if len(req.VerifierLearnings) > 0 {
		b.WriteString("\n## Your Recent Learnings\n")
		for _, l := range req.VerifierLearnings {
			fmt.Fprintf(&b, "- %s\n", util.Truncate(l, verifierLearningRune))
		}
	}

	b.WriteString("\n## Your Task\n")
	b.WriteString("Analyze the primary's prediction and provide your verdict:\n")
	b.WriteString("1. Do you agree with the primary's direction call?\n")
	b.WriteString("2. How confident are you that the primary will be correct?\n")
	b.WriteString("3. What concerns do you have?\n")
	b.WriteString("4. Is the primary violating any of its own meta-rules?\n\n")
	b.WriteString("Respond in this exact JSON format:\n")
	b.WriteString("```json\n{\n")
	b.WriteString("    \"agrees\": true/false,\n")
	b.WriteString("    \"confidence_correct\": 0-100,\n")
	b.WriteString("    \"reasoning\": \"Your analysis of the primary's prediction\",\n")
	b.WriteString("    \"concerns\": [\"List of specific concerns\"],\n")
	b.WriteString("    \"meta_rule_violations\": [\"List any meta-rules the primary might be violating\"]\n")
	b.WriteString("}\n```")
	return b.String()
}

func writeRuleList(b *strings.Builder, rules []models.MetaRule) {
	for i, r := range rules {
		kind := r.PatternType
		if kind == "" {
			kind = "unknown"
		}
		fmt.Fprintf(b, "%d. [%s] %s\n", i+1, kind, r.Rule)
	}
}

// BuildLearningPrompt renders the prompt for one extreme case.
func BuildLearningPrompt(c dsvc.LearningCase) (string, error) {
	switch {
	case c.Prediction != nil:
		return predictionLearningPrompt(c.Prediction), nil
	case c.Verification != nil:
		return verificationLearningPrompt(c.Verification), nil
	default:
		return "", fmt.Errorf("learning case is empty")
	}
}

func predictionLearningPrompt(p *models.Prediction) string {
	result := "Wrong"
	if p.Correct() {
		result = "Correct"
	}

	var b strings.Builder
	b.WriteString("Analyze this extreme prediction and extract a concise learning.\n\n")
	b.WriteString("## The Prediction\n")
	fmt.Fprintf(&b, "- Time: %s\n", p.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Starting Price: $%.2f\n", p.CurrentPrice)
	fmt.Fprintf(&b, "- Predicted: %s to $%.2f (%d%% confidence)\n", p.PredictedDirection, p.PredictedTarget, p.Confidence)
	fmt.Fprintf(&b, "- Reasoning: %s\n\n", p.Reasoning)
	b.WriteString("## The Outcome\n")
	fmt.Fprintf(&b, "- Actual Price: $%.2f\n", p.Actual())
	fmt.Fprintf(&b, "- Actual Direction: %s\n", p.ActualDir())
	fmt.Fprintf(&b, "- Result: %s direction\n", result)
	fmt.Fprintf(&b, "- Target Error: %.2f%%\n\n", p.ErrorPct())
	b.WriteString("## Why This Is Extreme\n")
	b.WriteString(p.Reason())
	b.WriteString("\n\nExtract a single, actionable learning (1-2 sentences) that could improve future predictions. Focus on what pattern or mistake this reveals.")
	return b.String()
}

func verificationLearningPrompt(v *models.Verification) string {
	outcome := "WRONG"
	if v.Correct() {
		outcome = "CORRECT"
	}

	var b strings.Builder
	b.WriteString("Analyze this verification outcome and extract a learning for improving future verifications.\n\n")
	b.WriteString("## Your Verification\n")
	fmt.Fprintf(&b, "- Agreed with primary: %t\n", v.Agrees)
	fmt.Fprintf(&b, "- Confidence primary correct: %d%%\n", v.ConfidenceCorrect)
	fmt.Fprintf(&b, "- Your reasoning: %s\n", v.Reasoning)
	fmt.Fprintf(&b, "- Your concerns: %s\n\n", strings.Join(v.Concerns, "; "))
	b.WriteString("## Outcome\n")
	fmt.Fprintf(&b, "- You were %s\n", outcome)
	fmt.Fprintf(&b, "- Why extreme: %s\n\n", v.Reason())
	b.WriteString("Extract a single, actionable learning (1-2 sentences) for improving your verification accuracy.")
	return b.String()
}

// BuildMetaPrompt renders the meta-analysis prompt for either pool.
func BuildMetaPrompt(s models.MetaSummary) string {
	subject := "trading prediction learnings"
	improve := "prediction accuracy"
	if s.Pool == models.PoolVerifier {
		subject = "verification learnings of a prediction reviewer"
		improve = "verification accuracy"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a meta-learning system analyzing patterns in %s.\n\n", subject)
	b.WriteString("## Current Performance\n")
	fmt.Fprintf(&b, "- Total Predictions: %d\n", s.TotalPredictions)
	fmt.Fprintf(&b, "- Accuracy: %.1f%%\n", s.AccuracyPct)
	fmt.Fprintf(&b, "- Total Learnings: %d\n\n", s.Learnings)

	b.WriteString("## Learning Categories\n")
	for _, bk := range s.Buckets {
		fmt.Fprintf(&b, "\n### %s (%d cases)\n", bk.Title, bk.Count)
		fmt.Fprintf(&b, "%s\n", bk.Description)
		for _, sample := range bk.Samples {
			fmt.Fprintf(&b, "  - %s\n", sample)
		}
	}

	b.WriteString("\n## Your Task\n\n")
	b.WriteString("Analyze these learnings to identify META-PATTERNS - recurring themes or systematic errors that appear across multiple learnings.\n\n")
	b.WriteString("For each pattern you identify, provide:\n")
	b.WriteString("1. **Type**: Category of pattern (overconfidence, momentum_misread, volatility_underestimate, etc.)\n")
	b.WriteString("2. **Description**: What the pattern is and how often it appears\n")
	b.WriteString("3. **Rule**: A concrete rule to apply in the future to address this pattern\n")
	b.WriteString("4. **Confidence**: How confident you are this pattern is real (0.0-1.0)\n\n")
	fmt.Fprintf(&b, "Focus on actionable patterns that could improve %s.\n\n", improve)
	b.WriteString("Respond in this exact JSON format:\n")
	b.WriteString("```json\n{\n")
	b.WriteString("    \"patterns\": [\n")
	b.WriteString("        {\n")
	b.WriteString("            \"type\": \"pattern_type\",\n")
	b.WriteString("            \"description\": \"Description of the pattern observed\",\n")
	b.WriteString("            \"rule\": \"Specific rule to apply: When X, do Y instead of Z\",\n")
	b.WriteString("            \"confidence\": 0.8\n")
	b.WriteString("        }\n")
	b.WriteString("    ],\n")
	b.WriteString("    \"summary\": \"Brief overall assessment and main areas for improvement\"\n")
	b.WriteString("}\n```\n\n")
	b.WriteString("Identify 2-4 of the most significant patterns. Quality over quantity.")
	return b.String()
}

// FormatCandles renders the last n candles as "HH:MM | O: H: L: C: | +x.xxx%".
func FormatCandles(candles []models.Candle, n int) string {
	if len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	lines := make([]string, 0, len(candles))
	for _, c := range candles {
		lines = append(lines, fmt.Sprintf("  %s | O:%s H:%s L:%s C:%s | %+.3f%%",
			c.OpenTime.UTC().Format("15:04"),
			money(c.Open), money(c.High), money(c.Low), money(c.Close),
			c.ChangePct(),
		))
	}
	return strings.Join(lines, "\n")
}

func horizonText(tf string) string {
	d := domrepo.NormalizeTimeframe(tf).Interval()
	if d >= time.Hour && d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return fmt.Sprintf("%d minutes", int(d.Minutes()))
}

// money formats v with two decimals and thousands separators.
func money(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	s := strconv.FormatFloat(math.Abs(v), 'f', 2, 64)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if v < 0 {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}
