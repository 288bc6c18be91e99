package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pevans/dailybrief/digest"
	"github.com/pevans/dailybrief/logger"
)

// Instruction is the fixed extraction prompt sent with every article.
const Instruction = `# 你是一个 HTML 结构解析工具，能够熟练、完美的完成 HTML 内容解析和文本优化目标。接下来你需要解析一个微信公众号文章的 HTML，并按照要求通过指定的格式返回指定的内容。

## 返回 JSON 字段说明

- news: 新闻列表，string[] 类型，大概 15 条，以实际情况决定，是 html 里正文的主要内容。
- cover: 新闻封面图片 URL，string 类型，在“今日简报”标题下方、农历等信息上方的长方形封面图片，如果不存在则返回空字符串。
- image: 图片版本新闻的 URL，string 类型，在“简报图片版”类似标题下方的图片，如果不存在则返回空字符串。
- tip: 每日一句，string 类型，可能是【微语】、【每日一句】、【每日金句】等前缀文本的后面，通常是文章的最后一段。

## 针对每一项新闻文本的要求

- 移除每条新闻的前缀序号和标点或其他标记和末尾的标点符号。
- 移除可能出现在新闻后面的广告，如“；公众号：每天100秒看世界”类似格式。
- 要求所有文本的内容排版符合“盘古之白”，即：在中日韩字符和英文字母等字符之间添加空格以提升可读性。
- 百分号与数字、摄氏度和数字等场景中间无需空格，如“8%”、“12℃”。

你完全遵循原始 HTML 文本内容，不会添加、构造任何不存在的新闻和 URL 链接。请不要返回示例数据或基于示例进行生成，请以实际 HTML 为准。`

// AIConfig configures the AI-assisted strategy. Endpoints are tried in order;
// a later one is used only when the call to the previous one fails.
type AIConfig struct {
	Endpoints []string
	APIKey    string
	Timeout   time.Duration
}

// AIExtractor asks a generative model to extract the article into a
// strictly-typed JSON object.
type AIExtractor struct {
	fetcher   *Fetcher
	sanitizer *Sanitizer
	client    *http.Client
	config    AIConfig
	log       *logger.Logger
}

// generateRequest is the generateContent request body.
type generateRequest struct {
	SystemInstruction content          `json:"system_instruction"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string         `json:"responseMimeType"`
	ResponseSchema   map[string]any `json:"responseSchema"`
}

// generateResponse is the part of the generateContent response we read.
type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// requiredKeys must all be present in the model's JSON answer.
var requiredKeys = []string{"news", "cover", "image", "tip"}

var responseSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"news":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"cover": map[string]any{"type": "string"},
		"image": map[string]any{"type": "string"},
		"tip":   map[string]any{"type": "string"},
	},
	"propertyOrdering": requiredKeys,
	"required":         requiredKeys,
}

// NewAIExtractor creates the AI-assisted strategy. A nil client gets the
// configured timeout.
func NewAIExtractor(fetcher *Fetcher, client *http.Client, config AIConfig, log *logger.Logger) *AIExtractor {
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &AIExtractor{
		fetcher:   fetcher,
		sanitizer: NewSanitizer(),
		client:    client,
		config:    config,
		log:       log,
	}
}

// Name implements Extractor.
func (a *AIExtractor) Name() string {
	return StrategyAI
}

// Extract fetches the article, sends its main content to the model and
// validates the answer. Any missing key or unparseable answer is an error.
func (a *AIExtractor) Extract(ctx context.Context, link string) (*digest.Article, error) {
	if a.config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if len(a.config.Endpoints) == 0 {
		return nil, fmt.Errorf("%w: no endpoints configured", ErrInvalidResponse)
	}

	doc, err := a.fetcher.Document(ctx, link)
	if err != nil {
		return nil, err
	}

	main, err := MainContent(doc)
	if err != nil {
		return nil, err
	}

	markup, err := main.Html()
	if err != nil {
		return nil, fmt.Errorf("failed to render main content: %w", err)
	}
	markup = strings.TrimSpace(a.sanitizer.Sanitize(markup))
	if markup == "" {
		return nil, ErrNoMainContent
	}
	a.log.Debug("sending article to model", "bytes", len(markup))

	body, err := json.Marshal(generateRequest{
		SystemInstruction: content{Parts: []part{{Text: Instruction}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: markup}}}},
		GenerationConfig: generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   responseSchema,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	start := time.Now()
	resp, err := a.generate(ctx, body)
	if err != nil {
		return nil, err
	}
	a.log.Debug("model responded", "elapsed", time.Since(start))

	return parseAnswer(resp)
}

// generate posts body to each endpoint in turn until one answers.
func (a *AIExtractor) generate(ctx context.Context, body []byte) (*generateResponse, error) {
	var lastErr error
	for i, endpoint := range a.config.Endpoints {
		resp, err := a.post(ctx, endpoint, body)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		if i < len(a.config.Endpoints)-1 {
			a.log.Warn("model request failed, trying next endpoint", "error", err)
		}
	}
	return nil, lastErr
}

func (a *AIExtractor) post(ctx context.Context, endpoint string, body []byte) (*generateResponse, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", a.config.APIKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		// Strip the URL so the key never reaches a log line
		return nil, fmt.Errorf("model request failed: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read model response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model request failed: status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("model request failed: malformed response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("model request failed: %d %s", out.Error.Code, out.Error.Message)
	}

	return &out, nil
}

// parseAnswer validates the model's JSON answer and converts it.
func parseAnswer(resp *generateResponse) (*digest.Article, error) {
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrInvalidResponse)
	}
	text := resp.Candidates[0].Content.Parts[0].Text

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	for _, key := range requiredKeys {
		if _, ok := raw[key]; !ok {
			return nil, fmt.Errorf("%w: missing key %q", ErrInvalidResponse, key)
		}
	}

	var answer struct {
		News  []string `json:"news"`
		Cover string   `json:"cover"`
		Image string   `json:"image"`
		Tip   string   `json:"tip"`
	}
	if err := json.Unmarshal([]byte(text), &answer); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return &digest.Article{
		News:  cleanList(answer.News),
		Cover: strings.TrimSpace(answer.Cover),
		Image: strings.TrimSpace(answer.Image),
		Tip:   strings.TrimSpace(answer.Tip),
	}, nil
}

func unwrapURLError(err error) error {
	if ue, ok := err.(*url.Error); ok {
		return ue.Err
	}
	return err
}
