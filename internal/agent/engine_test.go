package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wizai/InstallWiz/internal/knowledge"
)

// fakeChatModel 按提示词类型回不同的脚本化内容：
// 分析提示词（带 JSON 指令标记）回 analysisJSON，其余回 replyText。
// 记录收到的非分析提示词，供断言检查回复提示词里的规则文本。
type fakeChatModel struct {
	analysisJSON string
	replyText    string

	analysisErr error
	replyErr    error

	guidancePrompts []string
}

const analysisMarker = "Return ONLY a JSON object"

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	prompt := ""
	if len(input) > 0 {
		prompt = input[0].Content
	}
	if strings.Contains(prompt, analysisMarker) {
		if f.analysisErr != nil {
			return nil, f.analysisErr
		}
		return schema.AssistantMessage(f.analysisJSON, nil), nil
	}
	f.guidancePrompts = append(f.guidancePrompts, prompt)
	if f.replyErr != nil {
		return nil, f.replyErr
	}
	return schema.AssistantMessage(f.replyText, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *fakeChatModel) lastGuidancePrompt() string {
	if len(f.guidancePrompts) == 0 {
		return ""
	}
	return f.guidancePrompts[len(f.guidancePrompts)-1]
}

// fakeIndex 固定返回预设片段或错误
type fakeIndex struct {
	fragments []knowledge.Fragment
	err       error
}

func (f *fakeIndex) Search(ctx context.Context, query string, topK int) ([]knowledge.Fragment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fragments, nil
}

func analysisJSON(resolution Resolution, method InstallMethod, os UserOS, summary string) string {
	return fmt.Sprintf(`{"summary":%q,"resolution":%q,"installation_method":%q,"operating_system":%q}`,
		summary, resolution, method, os)
}

func newTestEngine(t *testing.T, cm model.BaseChatModel, index knowledge.Index) *Engine {
	t.Helper()
	engine, err := NewEngine(context.Background(), Deps{ChatModel: cm, Index: index})
	require.NoError(t, err)
	return engine
}

func TestProcessMessageAppendsOneExchange(t *testing.T) {
	cm := &fakeChatModel{
		analysisJSON: analysisJSON(ResolutionProgressing, MethodDocker, OSLinux, "user installs via docker on linux"),
		replyText:    "Run `docker compose up -d` next.",
	}
	engine := newTestEngine(t, cm, &fakeIndex{fragments: []knowledge.Fragment{{Text: "docker compose up -d", SourceID: "docker.md#1"}}})

	state, reply, err := engine.ProcessMessage(context.Background(), nil, "how do I install hummingbot with docker on ubuntu?")
	require.NoError(t, err)

	require.Len(t, state.Messages, 2)
	assert.Equal(t, schema.User, state.Messages[0].Role)
	assert.Equal(t, schema.Assistant, state.Messages[1].Role)
	assert.Equal(t, "Run `docker compose up -d` next.", reply)

	assert.Equal(t, MethodDocker, state.InstallMethod)
	assert.Equal(t, OSLinux, state.OS)
	assert.Equal(t, 0, state.IterationCount)
	assert.False(t, state.Terminal())
	assert.Equal(t, "user installs via docker on linux", state.Summary)
}

func TestProcessMessageDoesNotMutateInput(t *testing.T) {
	cm := &fakeChatModel{
		analysisJSON: analysisJSON(ResolutionProgressing, MethodUnknown, OSUnknown, "s"),
		replyText:    "ok",
	}
	engine := newTestEngine(t, cm, &fakeIndex{})

	prev := NewConversationState()
	prev.Messages = []*schema.Message{
		schema.UserMessage("hi"),
		schema.AssistantMessage("hello", nil),
	}
	prev.IterationCount = 2

	_, _, err := engine.ProcessMessage(context.Background(), &prev, "still stuck")
	require.NoError(t, err)

	assert.Len(t, prev.Messages, 2)
	assert.Equal(t, 2, prev.IterationCount)
}

func TestIterationCountOnlyGrowsWhenStalled(t *testing.T) {
	cm := &fakeChatModel{
		analysisJSON: analysisJSON(ResolutionStalled, MethodUnknown, OSUnknown, "still failing"),
		replyText:    "Let's try again.",
	}
	engine := newTestEngine(t, cm, &fakeIndex{})

	state, _, err := engine.ProcessMessage(context.Background(), nil, "it fails with the same error")
	require.NoError(t, err)
	assert.Equal(t, 1, state.IterationCount)

	// 推进中的轮次不计数
	cm.analysisJSON = analysisJSON(ResolutionProgressing, MethodUnknown, OSUnknown, "making progress")
	state, _, err = engine.ProcessMessage(context.Background(), state, "ok I ran that command")
	require.NoError(t, err)
	assert.Equal(t, 1, state.IterationCount)
}

func TestEscalatesAtNinthStalledTurn(t *testing.T) {
	cm := &fakeChatModel{
		analysisJSON: analysisJSON(ResolutionStalled, MethodUnknown, OSUnknown, "no progress"),
		replyText:    "Try this instead.",
	}
	engine := newTestEngine(t, cm, &fakeIndex{})

	var state *ConversationState
	var reply string
	var err error
	for i := 0; i < DefaultEscalateAfter; i++ {
		state, reply, err = engine.ProcessMessage(context.Background(), state, "still not working")
		require.NoError(t, err)
		if i < DefaultEscalateAfter-1 {
			require.False(t, state.Terminal(), "turn %d must not be terminal", i+1)
		}
	}

	assert.True(t, state.Escalated)
	assert.False(t, state.Solved)
	assert.Equal(t, DefaultEscalateAfter, state.IterationCount)
	assert.Contains(t, reply, "support")
	// 升级通知不走模型生成
	assert.NotEqual(t, cm.replyText, reply)
}

func TestSolvedBeatsEscalationOnSameTurn(t *testing.T) {
	cm := &fakeChatModel{
		analysisJSON: analysisJSON(ResolutionSolved, MethodUnknown, OSUnknown, "solved at last"),
		replyText:    "Glad it works now!",
	}
	engine := newTestEngine(t, cm, &fakeIndex{})

	prev := NewConversationState()
	prev.IterationCount = DefaultEscalateAfter

	state, reply, err := engine.ProcessMessage(context.Background(), &prev, "it works now, thanks!")
	require.NoError(t, err)
	assert.True(t, state.Solved)
	assert.False(t, state.Escalated)
	assert.Equal(t, "Glad it works now!", reply)
}

func TestTerminalStateShortCircuits(t *testing.T) {
	cm := &fakeChatModel{
		analysisJSON: analysisJSON(ResolutionProgressing, MethodUnknown, OSUnknown, "s"),
		replyText:    "should not be used",
	}
	engine := newTestEngine(t, cm, &fakeIndex{})

	prev := NewConversationState()
	prev.Solved = true
	prev.Messages = []*schema.Message{
		schema.UserMessage("it works"),
		schema.AssistantMessage("great!", nil),
	}

	state, reply, err := engine.ProcessMessage(context.Background(), &prev, "one more question")
	require.NoError(t, err)

	// 只追加一条固定收尾消息，不追加用户消息，不调模型
	require.Len(t, state.Messages, 3)
	assert.Equal(t, schema.Assistant, state.Messages[2].Role)
	assert.Equal(t, ClosedNotice, reply)
	assert.Empty(t, cm.guidancePrompts)
	assert.True(t, state.Solved)
	assert.False(t, state.Escalated)
}

func TestClarifiesWhenMethodAndOSUnknown(t *testing.T) {
	cm := &fakeChatModel{
		analysisJSON: analysisJSON(ResolutionProgressing, MethodUnknown, OSUnknown, "user asked for help"),
		replyText:    "Which OS are you on?",
	}
	engine := newTestEngine(t, cm, &fakeIndex{})

	_, _, err := engine.ProcessMessage(context.Background(), nil, "help me install hummingbot")
	require.NoError(t, err)

	prompt := cm.lastGuidancePrompt()
	assert.Contains(t, prompt, "Ask a clarifying question")
	assert.Contains(t, prompt, "installation method")
	assert.Contains(t, prompt, "operating system")
}

func TestWSLRuleOnlyForSourceOnWindows(t *testing.T) {
	t.Run("源码安装且 windows 提示 WSL", func(t *testing.T) {
		cm := &fakeChatModel{
			analysisJSON: analysisJSON(ResolutionProgressing, MethodSource, OSWindows, "source on windows"),
			replyText:    "Set up WSL first.",
		}
		engine := newTestEngine(t, cm, &fakeIndex{})

		state, _, err := engine.ProcessMessage(context.Background(), nil, "I want to install from source on Windows")
		require.NoError(t, err)
		assert.True(t, state.RequiresWSL())
		assert.Contains(t, cm.lastGuidancePrompt(), "WSL")
	})

	t.Run("docker 安装不提示 WSL", func(t *testing.T) {
		cm := &fakeChatModel{
			analysisJSON: analysisJSON(ResolutionProgressing, MethodDocker, OSWindows, "docker on windows"),
			replyText:    "Install Docker Desktop.",
		}
		engine := newTestEngine(t, cm, &fakeIndex{})

		state, _, err := engine.ProcessMessage(context.Background(), nil, "I want to use docker on Windows")
		require.NoError(t, err)
		assert.False(t, state.RequiresWSL())
		assert.NotContains(t, cm.lastGuidancePrompt(), "WSL")
	})
}

func TestGenerationFailureFallsBack(t *testing.T) {
	cm := &fakeChatModel{
		analysisJSON: analysisJSON(ResolutionProgressing, MethodUnknown, OSUnknown, "s"),
		replyErr:     errors.New("upstream unavailable"),
	}
	engine := newTestEngine(t, cm, &fakeIndex{})

	state, reply, err := engine.ProcessMessage(context.Background(), nil, "help")
	require.NoError(t, err)
	assert.Equal(t, generationFallback, reply)
	require.Len(t, state.Messages, 2)
	// 失败两次：一次调用加一次重试
	assert.Len(t, cm.guidancePrompts, 2)
}

func TestAnalysisFailureDegradesToStalled(t *testing.T) {
	cm := &fakeChatModel{
		analysisErr: errors.New("upstream unavailable"),
		replyText:   "Let me know your OS.",
	}
	engine := newTestEngine(t, cm, &fakeIndex{})

	prev := NewConversationState()
	prev.Summary = "previous summary"

	state, reply, err := engine.ProcessMessage(context.Background(), &prev, "docker install fails on ubuntu")
	require.NoError(t, err)

	// 分析降级：旧摘要保留、关键词信号仍然生效、轮次按无进展计数
	assert.Equal(t, "previous summary", state.Summary)
	assert.Equal(t, MethodDocker, state.InstallMethod)
	assert.Equal(t, OSLinux, state.OS)
	assert.Equal(t, 1, state.IterationCount)
	assert.Equal(t, "Let me know your OS.", reply)
}

func TestRetrievalFailureDegrades(t *testing.T) {
	cm := &fakeChatModel{
		analysisJSON: analysisJSON(ResolutionProgressing, MethodDocker, OSLinux, "s"),
		replyText:    "General guidance here.",
	}
	engine := newTestEngine(t, cm, &fakeIndex{err: errors.New("database locked")})

	_, reply, err := engine.ProcessMessage(context.Background(), nil, "docker install on ubuntu")
	require.NoError(t, err)
	assert.Equal(t, "General guidance here.", reply)
	assert.Contains(t, cm.lastGuidancePrompt(), "retrieval is temporarily unavailable")
	assert.Contains(t, cm.lastGuidancePrompt(), "(no documents retrieved)")
}

func TestExplicitSignalOverridesEarlierValue(t *testing.T) {
	cm := &fakeChatModel{
		analysisJSON: analysisJSON(ResolutionProgressing, MethodDocker, OSUnknown, "s"),
		replyText:    "ok",
	}
	engine := newTestEngine(t, cm, &fakeIndex{})

	prev := NewConversationState()
	prev.InstallMethod = MethodDocker

	// 用户明确改口到源码安装，覆盖已有值；LLM 给的 docker 推断不得覆盖显式信号
	state, _, err := engine.ProcessMessage(context.Background(), &prev, "actually I'd rather compile from source")
	require.NoError(t, err)
	assert.Equal(t, MethodSource, state.InstallMethod)
}

func TestLLMOnlyFillsUnsetFields(t *testing.T) {
	cm := &fakeChatModel{
		analysisJSON: analysisJSON(ResolutionProgressing, MethodSource, OSMacOS, "s"),
		replyText:    "ok",
	}
	engine := newTestEngine(t, cm, &fakeIndex{})

	prev := NewConversationState()
	prev.InstallMethod = MethodDocker // 会话已确定，LLM 推断不得改写

	state, _, err := engine.ProcessMessage(context.Background(), &prev, "what is the next step?")
	require.NoError(t, err)
	assert.Equal(t, MethodDocker, state.InstallMethod)
	assert.Equal(t, OSMacOS, state.OS) // 未确定的字段允许 LLM 补全
}

func TestRejectsEmptyInput(t *testing.T) {
	engine := newTestEngine(t, &fakeChatModel{}, &fakeIndex{})
	_, _, err := engine.ProcessMessage(context.Background(), nil, "   \n\t")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestRejectsMalformedState(t *testing.T) {
	engine := newTestEngine(t, &fakeChatModel{}, &fakeIndex{})

	cases := []struct {
		name  string
		state ConversationState
	}{
		{"负的迭代计数", ConversationState{IterationCount: -1}},
		{"双终态标志", ConversationState{Solved: true, Escalated: true}},
		{"负的序号", ConversationState{Seq: -1}},
		{"nil 消息", ConversationState{Messages: []*schema.Message{nil}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := engine.ProcessMessage(context.Background(), &tc.state, "hello")
			assert.ErrorIs(t, err, ErrMalformedState)
		})
	}
}

func TestNewEngineValidatesDeps(t *testing.T) {
	_, err := NewEngine(context.Background(), Deps{Index: &fakeIndex{}})
	assert.Error(t, err)

	_, err = NewEngine(context.Background(), Deps{ChatModel: &fakeChatModel{}})
	assert.Error(t, err)
}
