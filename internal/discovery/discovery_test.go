package discovery

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scholarpath/scout-cli/internal/dedup"
	"github.com/scholarpath/scout-cli/pkg/perplexity"
)

type mockSearch struct {
	mock.Mock
}

func (m *mockSearch) ChatCompletion(ctx context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*perplexity.ChatCompletionResponse), args.Error(1)
}

func textResponse(content string) *perplexity.ChatCompletionResponse {
	return &perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{
			{Message: perplexity.Message{Role: "assistant", Content: content}},
		},
	}
}

func emptyIndex(t *testing.T) *dedup.Index {
	t.Helper()
	idx, err := dedup.NewIndex(context.Background(), emptySource{})
	require.NoError(t, err)
	return idx
}

type emptySource struct{}

func (emptySource) CatalogURLs(context.Context) ([]string, error) { return nil, nil }
func (emptySource) PendingURLs(context.Context) ([]string, error) { return nil, nil }

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil, Config{})
	require.Error(t, err)
}

func TestDiscover_ParsesFencedJSON(t *testing.T) {
	search := &mockSearch{}
	search.On("ChatCompletion", mock.Anything, mock.Anything).Return(
		textResponse("Here are the results:\n```json\n[{\"url\":\"https://Example.org/award/\",\"context\":\"$2,500 local award, due December 1, 2027\"}]\n```"),
		nil,
	)

	src, err := New(search, Config{})
	require.NoError(t, err)

	res := src.Discover(context.Background(), []string{"q1"}, emptyIndex(t))
	require.Empty(t, res.Errs)
	require.Len(t, res.URLs, 1)
	assert.Equal(t, 1, res.Raw)
	assert.Equal(t, "example.org/award", res.URLs[0].URL)
	assert.Equal(t, "https://Example.org/award/", res.URLs[0].OriginalURL)
	assert.Equal(t, "q1", res.URLs[0].SourceQuery)
}

func TestDiscover_MalformedResponseIsNonFatal(t *testing.T) {
	search := &mockSearch{}
	search.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(req perplexity.ChatCompletionRequest) bool {
		return req.Messages[1].Content == "bad"
	})).Return(textResponse("I could not find anything useful."), nil)
	search.On("ChatCompletion", mock.Anything, mock.Anything).Return(
		textResponse(`[{"url":"https://example.org/ok","context":""}]`),
		nil,
	)

	src, err := New(search, Config{})
	require.NoError(t, err)

	res := src.Discover(context.Background(), []string{"bad", "good"}, emptyIndex(t))
	assert.Len(t, res.URLs, 1, "second query still runs")
	require.Len(t, res.Errs, 1)
	assert.Equal(t, "bad", res.Errs[0].Query)
}

func TestDiscover_SkipsSeenURLs(t *testing.T) {
	search := &mockSearch{}
	search.On("ChatCompletion", mock.Anything, mock.Anything).Return(
		textResponse(`[{"url":"https://example.org/known","context":""},{"url":"https://example.org/fresh","context":""}]`),
		nil,
	)

	src, err := New(search, Config{})
	require.NoError(t, err)

	idx := emptyIndex(t)
	idx.Mark("example.org/known")

	res := src.Discover(context.Background(), []string{"q"}, idx)
	require.Len(t, res.URLs, 1)
	assert.Equal(t, "example.org/fresh", res.URLs[0].URL)
}

func TestDiscover_DuplicateWithinRunKeptOnce(t *testing.T) {
	search := &mockSearch{}
	search.On("ChatCompletion", mock.Anything, mock.Anything).Return(
		textResponse(`[{"url":"https://example.org/a/","context":""},{"url":"http://EXAMPLE.org/a","context":""}]`),
		nil,
	)

	src, err := New(search, Config{})
	require.NoError(t, err)

	res := src.Discover(context.Background(), []string{"q"}, emptyIndex(t))
	assert.Len(t, res.URLs, 1)
	assert.Equal(t, 2, res.Raw)
}

func TestDiscover_GlobalCapAcrossQueries(t *testing.T) {
	search := &mockSearch{}
	for i := 0; i < 3; i++ {
		i := i
		search.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(req perplexity.ChatCompletionRequest) bool {
			return req.Messages[1].Content == fmt.Sprintf("q%d", i)
		})).Return(textResponse(fmt.Sprintf(
			`[{"url":"https://example.org/%d-a","context":""},{"url":"https://example.org/%d-b","context":""}]`, i, i,
		)), nil)
	}

	src, err := New(search, Config{MaxURLs: 3})
	require.NoError(t, err)

	res := src.Discover(context.Background(), []string{"q0", "q1", "q2"}, emptyIndex(t))
	assert.Len(t, res.URLs, 3)
	// Cap reached after the second query; the third is never issued.
	search.AssertNumberOfCalls(t, "ChatCompletion", 2)
}

func TestDiscover_DropsStaleDeadlineFromContext(t *testing.T) {
	search := &mockSearch{}
	search.On("ChatCompletion", mock.Anything, mock.Anything).Return(
		textResponse(`[{"url":"https://example.org/old","context":"Deadline was January 5, 2020"},{"url":"https://example.org/new","context":"Apply by December 1, 2030"}]`),
		nil,
	)

	src, err := New(search, Config{}, WithNowFunc(func() time.Time {
		return time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	}))
	require.NoError(t, err)

	res := src.Discover(context.Background(), []string{"q"}, emptyIndex(t))
	require.Len(t, res.URLs, 1)
	assert.Equal(t, "example.org/new", res.URLs[0].URL)
}

func TestDiscover_BlocklistFiltered(t *testing.T) {
	search := &mockSearch{}
	search.On("ChatCompletion", mock.Anything, mock.Anything).Return(
		textResponse(`[{"url":"https://www.fastweb.com/awards/1","context":""},{"url":"https://example.org/a","context":""}]`),
		nil,
	)

	src, err := New(search, Config{Blocklist: []string{"fastweb.com"}})
	require.NoError(t, err)

	res := src.Discover(context.Background(), []string{"q"}, emptyIndex(t))
	require.Len(t, res.URLs, 1)
	assert.Equal(t, "example.org/a", res.URLs[0].URL)
}

func TestCleanJSONArray(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `[{"url":"x"}]`, `[{"url":"x"}]`},
		{"fenced", "```json\n[1,2]\n```", "[1,2]"},
		{"prose wrapped", "Sure! Here you go: [1] Done.", "[1]"},
		{"no array", "nothing here", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSONArray(tt.in))
		})
	}
}
