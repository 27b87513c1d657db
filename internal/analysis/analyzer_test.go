package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/recruitin/kandidatentekort/internal/config"
	"github.com/recruitin/kandidatentekort/pkg/anthropic"
	"github.com/recruitin/kandidatentekort/pkg/anthropic/mocks"
)

func testConfig(version string) config.AnthropicConfig {
	return config.AnthropicConfig{
		Model:         "claude-sonnet-4-5-20250929",
		MaxTokens:     4000,
		TimeoutSecs:   5,
		PromptVersion: version,
	}
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      anthropic.TokenUsage{InputTokens: 1500, OutputTokens: 2500},
	}
}

func TestAnalyze_Success(t *testing.T) {
	client := &mocks.MockClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.MaxTokens == 4000 &&
			req.System != "" &&
			len(req.Messages) == 1 &&
			assert.ObjectsAreEqual("user", req.Messages[0].Role)
	})).Return(textResponse(panelResponse), nil)

	a, err := New(client, testConfig("panel"))
	require.NoError(t, err)

	res, err := a.Analyze(context.Background(), Input{Text: "Vacature", Company: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, 26.0, res.OverallScore)
	assert.Equal(t, int64(4000), res.TokensUsed)
	client.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestAnalyze_ClientErrorNoRetry(t *testing.T) {
	client := &mocks.MockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("529 overloaded"))

	a, err := New(client, testConfig("classic"))
	require.NoError(t, err)

	res, err := a.Analyze(context.Background(), Input{Text: "Vacature"})
	assert.Error(t, err)
	assert.Nil(t, res)
	client.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestAnalyze_UnparsableIsNoResult(t *testing.T) {
	client := &mocks.MockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("geen json"), nil)

	a, err := New(client, testConfig("classic"))
	require.NoError(t, err)

	res, err := a.Analyze(context.Background(), Input{Text: "Vacature"})
	assert.Error(t, err)
	assert.Nil(t, res)
}

func TestAnalyze_AppliesTimeout(t *testing.T) {
	client := &mocks.MockClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(func(ctx context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, time.Second)
			return nil, context.DeadlineExceeded
		})

	a, err := New(client, testConfig("classic"))
	require.NoError(t, err)

	res, err := a.Analyze(context.Background(), Input{Text: "Vacature"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, res)
}

func TestNew_Defaults(t *testing.T) {
	a, err := New(&mocks.MockClient{}, config.AnthropicConfig{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, Panel, a.Version())
	assert.Equal(t, 90*time.Second, a.timeout)
	assert.Equal(t, int64(8000), a.maxTokens)

	_, err = New(&mocks.MockClient{}, config.AnthropicConfig{PromptVersion: "nope"})
	assert.Error(t, err)
}
