package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whattoeat/kitchenbot/pkg/apperr"
	"github.com/whattoeat/kitchenbot/pkg/config"
)

type fakeOpenAI struct {
	mu       sync.Mutex
	reply    string
	status   int
	lastBody map[string]any
	paths    []string
}

func (f *fakeOpenAI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = io.WriteString(w, `{"error":{"message":"boom","type":"server_error"}}`)
		return
	}
	if strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
		_ = r.ParseMultipartForm(1 << 20)
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "  " + f.reply + " "})
		return
	}
	f.lastBody = map[string]any{}
	_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": f.reply},
		}},
		"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
	})
}

func newTestClient(t *testing.T, f *fakeOpenAI) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return New(&config.Config{OpenAI: config.OpenAIConfig{
		APIKey:             "sk-test",
		BaseURL:            srv.URL + "/v1",
		Model:              "gpt-test",
		VisionModel:        "gpt-vision",
		TranscriptionModel: "whisper-1",
	}}, zap.NewNop().Sugar())
}

func TestClient_Disabled(t *testing.T) {
	c := New(&config.Config{}, zap.NewNop().Sugar())
	require.False(t, c.Enabled())
	_, err := c.ExtractProducts(context.Background(), "milk")
	require.ErrorIs(t, err, ErrDisabled)
	_, err = c.Transcribe(context.Background(), []byte("x"), "")
	require.ErrorIs(t, err, ErrDisabled)
}

func TestClient_ExtractProducts(t *testing.T) {
	f := &fakeOpenAI{reply: "Sure!\n```json\n[\"Milk\", \" eggs \", \"milk\", \"\"]\n```"}
	c := newTestClient(t, f)

	got, err := c.ExtractProducts(context.Background(), "I have milk and eggs")
	require.NoError(t, err)
	require.Equal(t, []string{"milk", "eggs"}, got)
	require.Equal(t, "gpt-test", f.lastBody["model"])
	require.Equal(t, []string{"/v1/chat/completions"}, f.paths)
}

func TestClient_ExtractProductsFromImageUsesVisionModel(t *testing.T) {
	f := &fakeOpenAI{reply: `["tomato"]`}
	c := newTestClient(t, f)

	got, err := c.ExtractProductsFromImage(context.Background(), []byte{0xff, 0xd8, 0xff}, "image/jpeg")
	require.NoError(t, err)
	require.Equal(t, []string{"tomato"}, got)
	require.Equal(t, "gpt-vision", f.lastBody["model"])

	_, err = c.ExtractProductsFromImage(context.Background(), nil, "")
	require.ErrorIs(t, err, apperr.ErrInvalidPayload)
}

func TestClient_GenerateRecipes(t *testing.T) {
	f := &fakeOpenAI{reply: `[{"title":"Omelette","cooking_time":10,"calories":250.5,
"ingredients":[{"name":"eggs","amount":"3","have":true}],"steps":[{"step":1,"text":"Whisk"}]},{"title":""}]`}
	c := newTestClient(t, f)

	got, err := c.GenerateRecipes(context.Background(), RecipeRequest{
		Products: []string{"eggs"},
		Profile:  Profile{Diet: "vegetarian", Allergies: []string{"nuts"}},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Omelette", got[0].Title)
	require.InDelta(t, 250.5, *got[0].Calories, 0.001)

	msgs := f.lastBody["messages"].([]any)
	prompt := msgs[1].(map[string]any)["content"].(string)
	require.Contains(t, prompt, "Suggest 3 detailed recipes")
	require.Contains(t, prompt, "vegetarian")
	require.Contains(t, prompt, "nuts")

	_, err = c.GenerateRecipes(context.Background(), RecipeRequest{})
	require.ErrorIs(t, err, apperr.ErrInvalidPayload)
}

func TestClient_UpstreamFailureIsUnavailable(t *testing.T) {
	c := newTestClient(t, &fakeOpenAI{status: http.StatusInternalServerError})
	_, err := c.GenerateRecipes(context.Background(), RecipeRequest{Products: []string{"eggs"}})
	require.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)

	c = newTestClient(t, &fakeOpenAI{status: http.StatusBadRequest})
	_, err = c.ExtractProducts(context.Background(), "eggs")
	require.Error(t, err)
	require.NotErrorIs(t, err, apperr.ErrUpstreamUnavailable)

	c = newTestClient(t, &fakeOpenAI{reply: "I cannot help with that"})
	_, err = c.GenerateRecipes(context.Background(), RecipeRequest{Products: []string{"eggs"}})
	require.ErrorIs(t, err, apperr.ErrUpstreamUnavailable)
}

func TestClient_Transcribe(t *testing.T) {
	f := &fakeOpenAI{reply: "milk and bread"}
	c := newTestClient(t, f)

	got, err := c.Transcribe(context.Background(), []byte("OggS"), "")
	require.NoError(t, err)
	require.Equal(t, "milk and bread", got)
	require.Equal(t, []string{"/v1/audio/transcriptions"}, f.paths)

	_, err = c.Transcribe(context.Background(), nil, "")
	require.ErrorIs(t, err, apperr.ErrInvalidPayload)
}
