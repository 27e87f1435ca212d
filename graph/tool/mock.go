package tool

import (
	"context"
	"sync"
)

// MockTool is a test implementation of Tool.
//
// Example usage:
//
//	mock := &MockTool{
//	    ToolName: "get_payment_status",
//	    Responses: []map[string]interface{}{
//	        {"payment_status": "failed"},
//	    },
//	}
type MockTool struct {
	// ToolName is the name returned by Name().
	ToolName string

	// ToolDescription is returned by Description().
	ToolDescription string

	// ToolSchema is returned by Schema(). Nil accepts any object.
	ToolSchema map[string]interface{}

	// Responses contains the sequence of outputs to return.
	// If all responses are consumed, the last response repeats.
	Responses []map[string]interface{}

	// Err, if set, will be returned by Call() instead of a response.
	Err error

	// Calls tracks the history of all Call() invocations.
	Calls []MockToolCall

	mu        sync.Mutex
	callIndex int
}

// MockToolCall records a single invocation of Call().
type MockToolCall struct {
	Input map[string]interface{}
}

// Name implements Tool.
func (m *MockTool) Name() string { return m.ToolName }

// Description implements Tool.
func (m *MockTool) Description() string { return m.ToolDescription }

// Schema implements Tool.
func (m *MockTool) Schema() map[string]interface{} { return m.ToolSchema }

// Call implements Tool.
func (m *MockTool) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockToolCall{Input: input})

	if m.Err != nil {
		return nil, m.Err
	}
	if len(m.Responses) == 0 {
		return map[string]interface{}{}, nil
	}

	idx := m.callIndex
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.callIndex++
	}
	return m.Responses[idx], nil
}

// Reset clears the call history and resets the response index.
func (m *MockTool) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = nil
	m.callIndex = 0
}

// CallCount returns the number of times Call() has been invoked.
func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Calls)
}
