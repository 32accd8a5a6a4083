package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sapas/config"
	"sapas/internal/dto"
	"sapas/pkg/logger"
	"sapas/pkg/ratelimit"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

type AIRepository interface {
	SummarizeRun(ctx context.Context, param dto.AISummaryParam) (string, error)
}

// geminiAIRepository writes a short natural-language readout of a finished
// backtest using the Google Gemini API.
type geminiAIRepository struct {
	cfg            *config.Config
	logger         *logger.Logger
	tokenLimiter   *ratelimit.TokenLimiter
	requestLimiter *rate.Limiter
	genAiClient    *genai.Client
}

func NewGeminiAIRepository(cfg *config.Config, log *logger.Logger) (AIRepository, error) {
	secondsPerRequest := time.Minute / time.Duration(cfg.Gemini.MaxRequestPerMinute)
	requestLimiter := rate.NewLimiter(rate.Every(secondsPerRequest), 1)

	tokenLimiter := ratelimit.NewTokenLimiter(cfg.Gemini.MaxTokenPerMinute)
	genAiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.Gemini.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &geminiAIRepository{
		cfg:            cfg,
		logger:         log,
		requestLimiter: requestLimiter,
		tokenLimiter:   tokenLimiter,
		genAiClient:    genAiClient,
	}, nil
}

func (r *geminiAIRepository) SummarizeRun(ctx context.Context, param dto.AISummaryParam) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Gemini.Timeout)
	defer cancel()

	prompt := r.promptSummarizeRun(param)

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, "user"),
	}
	geminiTokenResp, err := r.genAiClient.Models.CountTokens(ctx, r.cfg.Gemini.Model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to count tokens: %w", err)
	}

	r.logger.Debug("Gemini token count",
		logger.IntField("total_tokens", int(geminiTokenResp.TotalTokens)),
		logger.IntField("remaining", r.tokenLimiter.GetRemaining()),
	)
	if err := r.tokenLimiter.Wait(ctx, int(geminiTokenResp.TotalTokens)); err != nil {
		return "", fmt.Errorf("failed to wait for token gemini limit: %w", err)
	}
	if err := r.requestLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("failed to wait for request gemini limit: %w", err)
	}

	resp, err := r.genAiClient.Models.GenerateContent(ctx, r.cfg.Gemini.Model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate run summary: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini returned an empty summary")
	}
	return strings.TrimSpace(text), nil
}

func (r *geminiAIRepository) promptSummarizeRun(param dto.AISummaryParam) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf(
		"You are a quantitative analyst. Summarize this stock strategy backtest in at most 5 sentences for a portfolio manager. Strategy %q over %s to %s.\n\n",
		param.StrategyName, param.StartDate, param.EndDate,
	))

	m := param.Metrics
	sb.WriteString(fmt.Sprintf("Total return: %.2f%%\n", m.TotalReturn*100))
	sb.WriteString(fmt.Sprintf("Annualized return: %.2f%%\n", m.AnnualReturn*100))
	sb.WriteString(fmt.Sprintf("Max drawdown: %.2f%%\n", m.MaxDrawdown*100))
	if m.SharpeRatio != nil {
		sb.WriteString(fmt.Sprintf("Sharpe ratio: %.4f\n", *m.SharpeRatio))
	}
	sb.WriteString(fmt.Sprintf("Trades: %d, win rate: %.2f%%\n", m.TotalTrades, m.WinRate*100))
	sb.WriteString(fmt.Sprintf("Trading days: %d\n", m.TradingDays))

	sb.WriteString(`
Rules:
- Plain prose, no markdown, no bullet points.
- Mention the biggest strength and the biggest weakness of the result.
- Do not invent numbers that are not listed above.
`)

	return sb.String()
}
