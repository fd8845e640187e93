package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/whattoeat/kitchenbot/pkg/apperr"
	"github.com/whattoeat/kitchenbot/pkg/config"
	"github.com/whattoeat/kitchenbot/pkg/logctx"
)

var ErrDisabled = errors.New("openai api key is not configured")

// Client talks to an OpenAI-compatible endpoint for product recognition,
// recipe and meal plan generation, and voice transcription.
type Client struct {
	api *openai.Client
	cfg config.OpenAIConfig
	log *zap.SugaredLogger
}

func New(cfg *config.Config, log *zap.SugaredLogger) *Client {
	c := &Client{cfg: cfg.OpenAI, log: log}
	if cfg.OpenAI.APIKey == "" {
		log.Warnw("openai client disabled: no api key")
		return c
	}
	oc := openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		oc.BaseURL = cfg.OpenAI.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.OpenAI.Timeout}
	c.api = openai.NewClientWithConfig(oc)
	return c
}

var Module = fx.Options(
	fx.Provide(New),
)

func (c *Client) Enabled() bool {
	return c.api != nil
}

type chatOptions struct {
	model       string
	temperature float32
	maxTokens   int
}

func (c *Client) complete(ctx context.Context, op string, msgs []openai.ChatCompletionMessage, opts chatOptions) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	if opts.model == "" {
		opts.model = c.cfg.Model
	}
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       opts.model,
		Messages:    msgs,
		Temperature: opts.temperature,
		MaxTokens:   opts.maxTokens,
	})
	if err != nil {
		logctx.FromCtx(ctx, c.log).Errorw("openai_request_failed", "op", op, "model", opts.model, "error", err)
		return "", wrapErr(op, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: empty completion: %w", op, apperr.ErrUpstreamUnavailable)
	}
	logctx.FromCtx(ctx, c.log).Debugw("openai_request_done", "op", op, "model", opts.model,
		"prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}

// ExtractProducts lists the food products mentioned in free text.
func (c *Client) ExtractProducts(ctx context.Context, text string) ([]string, error) {
	out, err := c.complete(ctx, "extract_products", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: productsPrompt},
		{Role: openai.ChatMessageRoleUser, Content: text},
	}, chatOptions{temperature: 0.3})
	if err != nil {
		return nil, err
	}
	return decodeProducts(out)
}

// ExtractProductsFromImage lists the products visible on a photo.
func (c *Client) ExtractProductsFromImage(ctx context.Context, image []byte, mimeType string) ([]string, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("empty image: %w", apperr.ErrInvalidPayload)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	out, err := c.complete(ctx, "extract_products_image", []openai.ChatCompletionMessage{{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: photoPrompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL,
				Detail: openai.ImageURLDetailAuto,
			}},
		},
	}}, chatOptions{model: c.cfg.VisionModel, temperature: 0.3})
	if err != nil {
		return nil, err
	}
	return decodeProducts(out)
}

// Transcribe converts a voice message to text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio: %w", apperr.ErrInvalidPayload)
	}
	if filename == "" {
		filename = "voice.ogg"
	}
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.cfg.TranscriptionModel,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		logctx.FromCtx(ctx, c.log).Errorw("openai_transcription_failed", "error", err)
		return "", wrapErr("transcribe", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// GenerateRecipes asks for req.Count recipes built around req.Products.
func (c *Client) GenerateRecipes(ctx context.Context, req RecipeRequest) ([]Recipe, error) {
	if len(req.Products) == 0 {
		return nil, fmt.Errorf("no products: %w", apperr.ErrInvalidPayload)
	}
	if req.Count <= 0 {
		req.Count = DefaultRecipeCount
	}
	out, err := c.complete(ctx, "generate_recipes", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: recipeSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: recipePrompt(req)},
	}, chatOptions{temperature: 0.8, maxTokens: 8000})
	if err != nil {
		return nil, err
	}
	return decodeRecipes(out)
}

// GenerateMealPlan asks for a seven-day plan matching the profile.
func (c *Client) GenerateMealPlan(ctx context.Context, req MealPlanRequest) (*MealPlan, error) {
	out, err := c.complete(ctx, "generate_meal_plan", []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: mealPlanSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: mealPlanPrompt(req)},
	}, chatOptions{temperature: 0.7, maxTokens: 8000})
	if err != nil {
		return nil, err
	}
	return decodeMealPlan(out)
}

// wrapErr marks everything except a non-429 4xx as an upstream outage.
func wrapErr(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 &&
		apiErr.HTTPStatusCode != http.StatusTooManyRequests {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %v: %w", op, err, apperr.ErrUpstreamUnavailable)
}
