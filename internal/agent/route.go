package agent

// DefaultEscalateAfter 是无进展轮次的固定上限：九轮仍无进展时，
// 认定自动指导无效，转交人工支持，不再无限循环。
const DefaultEscalateAfter = 9

// Route 是纯决策函数：根据 Analyzer 更新后的状态选出 {end, escalate, continue}。
// 判定顺序固定：
//  1. 本轮解决信号为 solved -> end
//  2. 无进展轮次达到上限 -> escalate
//  3. 其余 -> continue
//
// 同一轮里 1 和 2 同时满足时，1 优先：第九轮确认成功的用户不会被转人工。
func Route(state ConversationState, escalateAfter int) Decision {
	if escalateAfter <= 0 {
		escalateAfter = DefaultEscalateAfter
	}
	if state.Analysis != nil && state.Analysis.Resolution == ResolutionSolved {
		return DecisionEnd
	}
	if state.IterationCount >= escalateAfter {
		return DecisionEscalate
	}
	return DecisionContinue
}

// RouteNode 执行 Route 并落实终态标志。
// 终态标志的修改集中在这里（加上 InputNode 对已终结入参的短路），
// 其它节点不碰 Solved/Escalated，避免出现不一致的部分更新。
func RouteNode(state ConversationState, escalateAfter int) ConversationState {
	state.Decision = Route(state, escalateAfter)
	switch state.Decision {
	case DecisionEnd:
		state.Solved = true
	case DecisionEscalate:
		state.Escalated = true
	}
	return state
}
