package graph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// getNodeTimeout determines the timeout duration for a node based on precedence:
// 1. NodePolicy.Timeout (per-node override)
// 2. defaultTimeout (engine-wide default)
// 3. 0 (no timeout, unlimited execution)
func getNodeTimeout(policy *NodePolicy, defaultTimeout time.Duration) time.Duration {
	if policy != nil && policy.Timeout > 0 {
		return policy.Timeout
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

// executeNodeWithTimeout runs one attempt of a node under its timeout.
//
// A node that exceeds its deadline yields an EngineError with code
// NODE_TIMEOUT regardless of what the node itself returned. A panicking node
// yields an EngineError with code NODE_PANIC.
func executeNodeWithTimeout[S any](
	ctx context.Context,
	node Node[S],
	nodeID string,
	state S,
	policy *NodePolicy,
	defaultTimeout time.Duration,
) (result NodeResult[S], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &EngineError{
				Message: fmt.Sprintf("node %s panicked: %v", nodeID, r),
				Code:    "NODE_PANIC",
			}
		}
	}()

	timeout := getNodeTimeout(policy, defaultTimeout)
	if timeout == 0 {
		result = node.Run(ctx, state)
		return result, result.Err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result = node.Run(timeoutCtx, state)

	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return result, &EngineError{
			Message: fmt.Sprintf("node %s exceeded timeout of %v", nodeID, timeout),
			Code:    "NODE_TIMEOUT",
		}
	}
	return result, result.Err
}
