package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/scholarpath/scout-cli/internal/model"
	"github.com/scholarpath/scout-cli/pkg/anthropic"
)

var testNow = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, client anthropic.Client) *Engine {
	t.Helper()
	e, err := New(client, Config{Model: "claude-sonnet-4-5-20250929"}, WithNowFunc(func() time.Time {
		return testNow
	}))
	require.NoError(t, err)
	return e
}

func modelResponse(body string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: body}},
	}
}

func testPage() *model.FetchedPage {
	return &model.FetchedPage{URL: "example.org/award", Text: "some page text", StatusCode: 200}
}

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil, Config{})
	require.Error(t, err)
}

func TestExtract_Queued(t *testing.T) {
	client := &anthropic.MockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(modelResponse(`{
		"name": "Riverside Scholarship",
		"amount": 2500,
		"deadline": "2027-03-15",
		"application_url": "https://example.org/apply",
		"confidence": 0.92
	}`), nil)

	res := newTestEngine(t, client).Extract(context.Background(), testPage())

	assert.Equal(t, OutcomeQueued, res.Kind)
	require.NotNil(t, res.Data)
	assert.Equal(t, "Riverside Scholarship", res.Data.Name)
	assert.InDelta(t, 0.92, res.Confidence, 0.001)
	assert.Equal(t, "example.org/award", res.SourceURL)
}

func TestExtract_LowConfidenceNeedsReview(t *testing.T) {
	client := &anthropic.MockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(modelResponse(`{
		"name": "Vague Award",
		"deadline": "2027-03-15",
		"application_url": "https://example.org/apply",
		"confidence": 0.4
	}`), nil)

	res := newTestEngine(t, client).Extract(context.Background(), testPage())
	assert.Equal(t, OutcomeNeedsReview, res.Kind)
	assert.NotNil(t, res.Data)
}

func TestExtract_HighConfidenceMissingDeadlineNeedsReview(t *testing.T) {
	client := &anthropic.MockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(modelResponse(`{
		"name": "No Deadline Award",
		"deadline": null,
		"application_url": "https://example.org/apply",
		"confidence": 0.9
	}`), nil)

	res := newTestEngine(t, client).Extract(context.Background(), testPage())
	assert.Equal(t, OutcomeNeedsReview, res.Kind, "required-field rule overrides confidence")
}

func TestExtract_StaleDeadlineDropped(t *testing.T) {
	client := &anthropic.MockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(modelResponse(`{
		"name": "Expired Award",
		"deadline": "2026-08-31",
		"application_url": "https://example.org/apply",
		"confidence": 0.95
	}`), nil)

	res := newTestEngine(t, client).Extract(context.Background(), testPage())
	assert.Equal(t, OutcomeDropped, res.Kind)
	assert.Nil(t, res.Data)
	assert.NotEmpty(t, res.DropReason)
}

func TestExtract_UnparseableDeadlineTreatedAbsent(t *testing.T) {
	client := &anthropic.MockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(modelResponse(`{
		"name": "Odd Dates Award",
		"deadline": "rolling basis",
		"application_url": "https://example.org/apply",
		"confidence": 0.9
	}`), nil)

	res := newTestEngine(t, client).Extract(context.Background(), testPage())
	assert.Equal(t, OutcomeNeedsReview, res.Kind)
	require.NotNil(t, res.Data)
	assert.Nil(t, res.Data.Deadline)
}

func TestExtract_ModelErrorNeedsReview(t *testing.T) {
	client := &anthropic.MockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	res := newTestEngine(t, client).Extract(context.Background(), testPage())
	assert.Equal(t, OutcomeNeedsReview, res.Kind)
	assert.Nil(t, res.Data)
	assert.Zero(t, res.Confidence)
}

func TestExtract_MalformedJSONNeedsReview(t *testing.T) {
	client := &anthropic.MockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(
		modelResponse("I'm sorry, I can't extract anything from this page."), nil)

	res := newTestEngine(t, client).Extract(context.Background(), testPage())
	assert.Equal(t, OutcomeNeedsReview, res.Kind)
	assert.Nil(t, res.Data)
}

func TestExtract_ConfidenceClamped(t *testing.T) {
	client := &anthropic.MockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(modelResponse(`{
		"name": "Over Eager Award",
		"deadline": "2027-06-01",
		"application_url": "https://example.org/apply",
		"confidence": 1.7
	}`), nil)

	res := newTestEngine(t, client).Extract(context.Background(), testPage())
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, OutcomeQueued, res.Kind)
}

func TestCleanJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose", `Here it is: {"a":1} hope that helps`, `{"a":1}`},
		{"none", "no object", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSONObject(tt.in))
		})
	}
}
