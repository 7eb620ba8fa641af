package resolver

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	nodex "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/nodes/resolver"
)

func (r *Resolver) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, r.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_or_create_graph",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadOrCreateGraph(ctx, in, r.store, r.gateway)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_or_create_graph: %w", err)
	}

	if err := graph.AddLambdaNode("read_state",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ReadState(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node read_state: %w", err)
	}

	if err := graph.AddLambdaNode("diagnose",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Diagnose(ctx, in, r.diagnoser)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node diagnose: %w", err)
	}

	if err := graph.AddLambdaNode("clarify",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Clarify(ctx, in, r.gateway)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node clarify: %w", err)
	}

	if err := graph.AddLambdaNode("gather_facts",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.GatherFacts(ctx, in, r.orders, r.gateway)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node gather_facts: %w", err)
	}

	if err := graph.AddLambdaNode("decide",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Decide(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node decide: %w", err)
	}

	if err := graph.AddLambdaNode("retry_check",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RetryCheck(in, r.retries)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node retry_check: %w", err)
	}

	if err := graph.AddLambdaNode("act",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Act(ctx, in, r.orders, r.tickets, r.gateway)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node act: %w", err)
	}

	if err := graph.AddLambdaNode("extend_graph",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ExtendGraph(ctx, in, r.gateway)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node extend_graph: %w", err)
	}

	if err := graph.AddLambdaNode("save_graph",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.SaveGraph(ctx, in, r.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node save_graph: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			if in == nil {
				return "", ErrInvalidMessage
			}
			if in.NeedsClarification {
				return "clarify", nil
			}
			return "gather_facts", nil
		},
		map[string]bool{
			"clarify":      true,
			"gather_facts": true,
		},
	)
	if err := graph.AddBranch("diagnose", branch); err != nil {
		return nil, fmt.Errorf("add clarify branch: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_or_create_graph"},
		{"load_or_create_graph", "read_state"},
		{"read_state", "diagnose"},
		{"clarify", "save_graph"},
		{"gather_facts", "decide"},
		{"decide", "retry_check"},
		{"retry_check", "act"},
		{"act", "extend_graph"},
		{"extend_graph", "save_graph"},
		{"save_graph", "finalize_reply"},
		{"finalize_reply", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("resolver.handle_message"))
	if err != nil {
		return nil, fmt.Errorf("compile resolver graph: %w", err)
	}
	return runner, nil
}
