package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"
const defaultOpenAIModel = "gpt-4o-mini"

// ChatMessage is one turn of the assistant conversation.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

type DatabaseMovie struct {
	Title   string `json:"title"`
	MovieID int64  `json:"movie_id"`
	Reason  string `json:"reason"`
}

type ExternalChatMovie struct {
	Title  string `json:"title"`
	Year   int    `json:"year,omitempty"`
	Reason string `json:"reason"`
}

// ChatReply is the structured assistant payload. DatabaseMovies have been
// revalidated against the catalogue before the reply leaves this package.
type ChatReply struct {
	Message        string              `json:"message"`
	DatabaseMovies []DatabaseMovie     `json:"database_movies"`
	ExternalMovies []ExternalChatMovie `json:"external_movies"`
}

// rawChatReply is the wire shape the model produces. Year arrives as a
// number or a string depending on the model's mood, hence RawMessage.
type rawChatReply struct {
	Message        string `json:"message"`
	DatabaseMovies []struct {
		Title  string `json:"title"`
		Reason string `json:"reason"`
	} `json:"database_movies"`
	ExternalMovies []struct {
		Title  string          `json:"title"`
		Year   json.RawMessage `json:"year"`
		Reason string          `json:"reason"`
	} `json:"external_movies"`
}

const chatSystemPrompt = `You are a movie recommendation assistant with access to a specific movie database, but you can also recommend movies outside of it.

Role:
1. Help users discover movies from the database AND beyond
2. Ask clarifying questions about preferences (genre, mood, actors, themes)
3. Provide thoughtful recommendations with explanations
4. Be conversational and enthusiastic

Respond with JSON only (no markdown):
{
  "message": "Your conversational response here",
  "database_movies": [
    {"title": "Exact Movie Title", "reason": "Brief explanation"}
  ],
  "external_movies": [
    {"title": "Movie Title", "year": 2020, "reason": "Brief explanation"}
  ]
}

Rules:
- Always include 'message'
- Include 'database_movies' when recommending from the database, using EXACT titles from the context
- Include 'external_movies' when recommending from general knowledge
- Provide 10-15 recommendations, prioritize database movies`

// ChatAssistant is the hybrid recommendation chat: catalogue context goes
// into the prompt, the model answers with structured picks, and every
// database pick is verified against the catalogue before being trusted.
type ChatAssistant struct {
	cfg    Config
	cat    *Catalogue
	genres []string
}

func NewChatAssistant(cfg Config, cat *Catalogue, genres []string) *ChatAssistant {
	return &ChatAssistant{cfg: cfg, cat: cat, genres: genres}
}

// Respond answers one user turn. Provider failures come back as a structured
// reply with an explanatory message, never as an error to the caller.
func (a *ChatAssistant) Respond(userMessage string, history []ChatMessage) ChatReply {
	if !a.cfg.ChatConfigured() {
		return ChatReply{
			Message:        "The chat assistant is not configured: no API key is set for the selected LLM provider.",
			DatabaseMovies: []DatabaseMovie{},
			ExternalMovies: []ExternalChatMovie{},
		}
	}

	if limit := a.cfg.ChatHistoryLimit; len(history) > limit {
		history = history[len(history)-limit:]
	}
	contextPrompt := a.buildMovieContext(userMessage)

	var responseText string
	var err error
	switch a.cfg.LLMProvider {
	case "openai":
		model := a.cfg.LLMModel
		if model == "" {
			model = defaultOpenAIModel
		}
		log.Printf("chat provider=openai model=%s history=%d", model, len(history))
		responseText, err = callOpenAI(a.cfg.OpenAIAPIKey, model, contextPrompt, history, userMessage)
	default:
		model := a.cfg.LLMModel
		if model == "" {
			model = defaultAnthropicModel
		}
		log.Printf("chat provider=anthropic model=%s history=%d", model, len(history))
		responseText, err = callAnthropic(a.cfg.AnthropicAPIKey, model, contextPrompt, history, userMessage)
	}
	if err != nil {
		return providerErrorReply(err)
	}

	reply := parseChatReply(responseText)
	reply.DatabaseMovies = a.validateDatabaseMovies(reply.DatabaseMovies)
	return reply
}

// buildMovieContext assembles the catalogue search context injected as a
// second system prompt: direct title/tag matches first, then a genre-keyword
// fallback when the query names a genre but matches nothing directly.
func (a *ChatAssistant) buildMovieContext(userQuery string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Database Info: %d movies available.\n\n", a.cat.Len())

	matches := a.searchCatalogue(userQuery, a.cfg.ChatSearchLimit)
	if len(matches) == 0 {
		for _, genre := range a.genres {
			if strings.Contains(strings.ToLower(userQuery), strings.ToLower(genre)) {
				matches = a.searchCatalogue(genre, a.cfg.ChatSearchLimit)
				break
			}
		}
	}

	if len(matches) > 0 {
		b.WriteString("Movies available in our database (USE EXACT TITLES):\n")
		for _, m := range matches {
			fmt.Fprintf(&b, "- %s (ID: %d)\n", m.Title, m.MovieID)
		}
	}

	b.WriteString("\nNote: Recommend 10-15 movies total. Prioritize database movies.")
	return b.String()
}

// searchCatalogue finds entries whose title or tag blob contains the query,
// case-insensitively, in row order.
func (a *ChatAssistant) searchCatalogue(query string, limit int) []Movie {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" || limit < 1 {
		return nil
	}
	var out []Movie
	for _, m := range a.cat.Entries() {
		if strings.Contains(strings.ToLower(m.Title), needle) ||
			strings.Contains(strings.ToLower(m.Tags), needle) {
			out = append(out, m)
			if len(out) >= limit {
				break
			}
		}
	}
	return out
}

// validateDatabaseMovies keeps only picks whose title exactly matches a
// catalogue entry and stamps them with the canonical id and title. Models
// fabricate titles; unverified picks are dropped, not guessed at.
func (a *ChatAssistant) validateDatabaseMovies(picks []DatabaseMovie) []DatabaseMovie {
	validated := make([]DatabaseMovie, 0, len(picks))
	for _, pick := range picks {
		m, ok := a.cat.LookupByTitleExact(pick.Title)
		if !ok {
			log.Printf("chat dropped fabricated database pick title=%q", pick.Title)
			continue
		}
		validated = append(validated, DatabaseMovie{
			Title:   m.Title,
			MovieID: m.MovieID,
			Reason:  pick.Reason,
		})
	}
	return validated
}

func providerErrorReply(err error) ChatReply {
	msg := strings.ToLower(err.Error())
	reply := ChatReply{DatabaseMovies: []DatabaseMovie{}, ExternalMovies: []ExternalChatMovie{}}
	switch {
	case strings.Contains(msg, "authentication") || strings.Contains(msg, "api key"):
		reply.Message = "Invalid API key for the chat provider."
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota"):
		reply.Message = "The chat provider rate limit was reached. Try again later."
	default:
		reply.Message = "The chat assistant is temporarily unavailable."
	}
	log.Printf("chat provider error: %v", err)
	return reply
}

// parseChatReply extracts the JSON object from the model's response text,
// tolerating markdown fences and prose around the payload. Unparseable
// responses degrade to a plain-text message.
func parseChatReply(responseText string) ChatReply {
	fallback := ChatReply{
		Message:        strings.TrimSpace(responseText),
		DatabaseMovies: []DatabaseMovie{},
		ExternalMovies: []ExternalChatMovie{},
	}

	text := strings.TrimSpace(responseText)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fallback
	}

	var raw rawChatReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		log.Printf("chat parse error: %v", err)
		return fallback
	}

	reply := ChatReply{
		Message:        raw.Message,
		DatabaseMovies: make([]DatabaseMovie, 0, len(raw.DatabaseMovies)),
		ExternalMovies: make([]ExternalChatMovie, 0, len(raw.ExternalMovies)),
	}
	for _, m := range raw.DatabaseMovies {
		reply.DatabaseMovies = append(reply.DatabaseMovies, DatabaseMovie{
			Title:  strings.TrimSpace(m.Title),
			Reason: strings.TrimSpace(m.Reason),
		})
	}
	for _, m := range raw.ExternalMovies {
		reply.ExternalMovies = append(reply.ExternalMovies, ExternalChatMovie{
			Title:  strings.TrimSpace(m.Title),
			Year:   parseYearField(m.Year),
			Reason: strings.TrimSpace(m.Reason),
		})
	}
	return reply
}

// parseYearField accepts 2020, "2020", or null.
func parseYearField(raw json.RawMessage) int {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	var asInt int
	if err := json.Unmarshal(raw, &asInt); err == nil {
		return asInt
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		var parsed int
		if _, err := fmt.Sscanf(strings.TrimSpace(asString), "%d", &parsed); err == nil {
			return parsed
		}
	}
	return 0
}

// --- Anthropic ---

func callAnthropic(apiKey, model, contextPrompt string, history []ChatMessage, userMessage string) (string, error) {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	messages := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, msg := range history {
		if msg.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		} else {
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(userMessage)))

	message, err := client.Messages.New(context.Background(), anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 1500,
		System: []anthropic.TextBlockParam{
			{Text: chatSystemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
			{Text: contextPrompt},
		},
		Messages: messages,
	})
	if err != nil {
		log.Printf("chat anthropic error: %v", err)
		return "", fmt.Errorf("Anthropic API error: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("chat anthropic response size=%d tokens_in=%d tokens_out=%d", len(block.Text), message.Usage.InputTokens, message.Usage.OutputTokens)
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in Anthropic response")
}

// --- OpenAI ---

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func callOpenAI(apiKey, model, contextPrompt string, history []ChatMessage, userMessage string) (string, error) {
	messages := []openAIMessage{
		{Role: "system", Content: chatSystemPrompt},
		{Role: "system", Content: contextPrompt},
	}
	for _, msg := range history {
		messages = append(messages, openAIMessage{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: userMessage})

	reqBody := openAIRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   1500,
		Temperature: 0.7,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequest("POST", "https://api.openai.com/v1/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("chat openai error: %v", err)
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return "", fmt.Errorf("parsing OpenAI response: %w", err)
	}
	if openAIResp.Error != nil {
		log.Printf("chat openai api error: %s", openAIResp.Error.Message)
		return "", fmt.Errorf("OpenAI API error: %s", openAIResp.Error.Message)
	}
	if len(openAIResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in OpenAI response")
	}

	log.Printf("chat openai response size=%d", len(openAIResp.Choices[0].Message.Content))
	return openAIResp.Choices[0].Message.Content, nil
}
