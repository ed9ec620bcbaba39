package streaming

import (
	"encoding/json"
	"sort"
	"strings"

	"chatgateway/internal/core"
)

type toolCallBuffer struct {
	id   string
	name string
	args strings.Builder
}

// ToolCallAccumulator assembles complete tool calls from streamed
// fragments. OpenAI fragments are addressed by index; Anthropic fragments
// belong to the most recent tool-call-start. Feed chunks in arrival order.
type ToolCallAccumulator struct {
	byIndex map[int]*toolCallBuffer
	order   []int
	current int
	next    int
}

// NewToolCallAccumulator returns an empty accumulator.
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{byIndex: make(map[int]*toolCallBuffer), current: -1}
}

type openAIToolFragment struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// Add folds one chunk into the accumulator. Chunks of other kinds are ignored.
func (a *ToolCallAccumulator) Add(chunk core.NormalizedChunk) {
	switch {
	case chunk.Kind == core.ChunkToolCallStart && chunk.ToolCallStart != nil:
		idx := a.next
		a.next++
		buf := a.buffer(idx)
		buf.id = chunk.ToolCallStart.ID
		buf.name = chunk.ToolCallStart.Name
		a.current = idx

	case chunk.Kind == core.ChunkToolArgumentDelta && chunk.ToolInputDelta != nil:
		if a.current < 0 {
			return
		}
		a.buffer(a.current).args.WriteString(*chunk.ToolInputDelta)

	case chunk.Kind == core.ChunkToolArgumentDelta && len(chunk.ToolCalls) > 0:
		var fragments []openAIToolFragment
		if err := json.Unmarshal(chunk.ToolCalls, &fragments); err != nil {
			return
		}
		for _, f := range fragments {
			buf := a.buffer(f.Index)
			if f.ID != "" {
				buf.id = f.ID
			}
			if f.Function.Name != "" {
				buf.name = f.Function.Name
			}
			buf.args.WriteString(f.Function.Arguments)
		}
	}
}

func (a *ToolCallAccumulator) buffer(idx int) *toolCallBuffer {
	buf, ok := a.byIndex[idx]
	if !ok {
		buf = &toolCallBuffer{}
		a.byIndex[idx] = buf
		a.order = append(a.order, idx)
	}
	return buf
}

// Len returns the number of distinct tool calls seen.
func (a *ToolCallAccumulator) Len() int {
	return len(a.byIndex)
}

// ToolCalls returns the assembled calls ordered by index.
func (a *ToolCallAccumulator) ToolCalls() []core.ToolCall {
	indexes := make([]int, len(a.order))
	copy(indexes, a.order)
	sort.Ints(indexes)

	calls := make([]core.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		buf := a.byIndex[idx]
		calls = append(calls, core.ToolCall{
			ID:   buf.id,
			Type: "function",
			Function: core.ToolCallFunction{
				Name:      buf.name,
				Arguments: buf.args.String(),
			},
		})
	}
	return calls
}
