package agent

import (
	"context"

	"github.com/cloudwego/eino/compose"
)

const (
	NodeInput    = "input_node"
	NodeRetrieve = "retrieve_node"
	NodeAnalyze  = "analyze_node"
	NodeRoute    = "route_node"
	NodeRespond  = "respond_node"
)

// BuildGraph 构建安装助手的处理流程图。
// 拓扑：START -> input -> (closed? respond : retrieve) -> analyze -> route -> respond -> END
func BuildGraph(ctx context.Context, deps Deps) (compose.Runnable[ConversationState, ConversationState], error) {
	// 初始化 Graph，输入输出都是 ConversationState
	g := compose.NewGraph[ConversationState, ConversationState]()

	// 1. 添加节点
	// InputNode: 清理临时字段、追加用户消息，已终结对话直接短路
	g.AddLambdaNode(NodeInput, compose.InvokableLambda(InputNode))

	// RetrieveNode: 知识库检索
	// 使用闭包注入检索索引
	g.AddLambdaNode(NodeRetrieve, compose.InvokableLambda(func(ctx context.Context, state ConversationState) (ConversationState, error) {
		return RetrieveNode(ctx, state, deps.Index, deps.TopK, deps.Logger)
	}))

	// AnalyzeNode: 对话分析，更新摘要/安装方式/操作系统/迭代计数
	g.AddLambdaNode(NodeAnalyze, compose.InvokableLambda(func(ctx context.Context, state ConversationState) (ConversationState, error) {
		return AnalyzeNode(ctx, state, deps.ChatModel, deps.Logger)
	}))

	// RouteNode: 决定 continue/end/escalate 并落定终态标志
	g.AddLambdaNode(NodeRoute, compose.InvokableLambda(func(ctx context.Context, state ConversationState) (ConversationState, error) {
		return RouteNode(state, deps.EscalateAfter), nil
	}))

	// RespondNode: 按决定生成助手回复
	g.AddLambdaNode(NodeRespond, compose.InvokableLambda(func(ctx context.Context, state ConversationState) (ConversationState, error) {
		return RespondNode(ctx, state, deps.ChatModel, deps.Logger)
	}))

	// 2. 添加边 (Edges)
	// Start -> Input
	if err := g.AddEdge(compose.START, NodeInput); err != nil {
		return nil, err
	}

	// 3. 添加分支 (Branches)
	// Input -> Respond OR Retrieve
	// 已终结的对话不再检索和分析，直接生成收尾消息
	err := g.AddBranch(NodeInput, compose.NewGraphBranch(func(ctx context.Context, state ConversationState) (string, error) {
		if state.Decision == DecisionClosed {
			return NodeRespond, nil
		}
		return NodeRetrieve, nil
	}, map[string]bool{
		NodeRespond:  true,
		NodeRetrieve: true,
	}))
	if err != nil {
		return nil, err
	}

	// Retrieve -> Analyze -> Route -> Respond
	if err := g.AddEdge(NodeRetrieve, NodeAnalyze); err != nil {
		return nil, err
	}
	if err := g.AddEdge(NodeAnalyze, NodeRoute); err != nil {
		return nil, err
	}
	if err := g.AddEdge(NodeRoute, NodeRespond); err != nil {
		return nil, err
	}

	// Respond -> End
	if err := g.AddEdge(NodeRespond, compose.END); err != nil {
		return nil, err
	}

	// 4. 编译 Graph
	runnable, err := g.Compile(ctx)
	if err != nil {
		return nil, err
	}

	return runnable, nil
}
