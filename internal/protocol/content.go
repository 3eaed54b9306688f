package protocol

// Execution states published on iopub.
const (
	StateStarting = "starting"
	StateBusy     = "busy"
	StateIdle     = "idle"
)

// Reply statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// KernelInfoReplyContent describes the kernel to a frontend.
type KernelInfoReplyContent struct {
	ProtocolVersion       []int  `json:"protocol_version"`
	LanguageVersion       []int  `json:"language_version"`
	Language              string `json:"language"`
	Implementation        string `json:"implementation,omitempty"`
	ImplementationVersion string `json:"implementation_version,omitempty"`
}

// ExecuteRequestContent is the code a frontend asks to run.
type ExecuteRequestContent struct {
	Code         string `json:"code"`
	Silent       bool   `json:"silent"`
	StoreHistory *bool  `json:"store_history,omitempty"`
	AllowStdin   bool   `json:"allow_stdin"`
}

// ExecuteReplyContent answers an execute request on the shell socket.
type ExecuteReplyContent struct {
	Status          string         `json:"status"`
	ExecutionCount  int            `json:"execution_count"`
	Payload         []any          `json:"payload"`
	UserVariables   map[string]any `json:"user_variables"`
	UserExpressions map[string]any `json:"user_expressions"`
	Ename           string         `json:"ename,omitempty"`
	Evalue          string         `json:"evalue,omitempty"`
	Traceback       []string       `json:"traceback,omitempty"`
}

// StatusContent announces the kernel's execution state.
type StatusContent struct {
	ExecutionState string `json:"execution_state"`
}

// PyinContent rebroadcasts the code being executed.
type PyinContent struct {
	Code           string `json:"code"`
	ExecutionCount int    `json:"execution_count"`
}

// PyoutContent carries one result.
type PyoutContent struct {
	ExecutionCount int               `json:"execution_count"`
	Data           map[string]string `json:"data"`
	Metadata       map[string]any    `json:"metadata"`
}

// PyerrContent carries one evaluation message.
type PyerrContent struct {
	Ename     string   `json:"ename"`
	Evalue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

// StreamContent carries printed output.
type StreamContent struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

// HistoryRequestContent asks for recorded inputs.
type HistoryRequestContent struct {
	Output         bool   `json:"output"`
	Raw            bool   `json:"raw"`
	HistAccessType string `json:"hist_access_type"`
	N              int    `json:"n"`
}

// HistoryReplyContent returns history as [session, line, entry] triples,
// where entry is the input or an [input, output] pair.
type HistoryReplyContent struct {
	History [][]any `json:"history"`
}

// NewExecuteReply returns a reply with the always-empty collections filled.
func NewExecuteReply(status string, count int) ExecuteReplyContent {
	return ExecuteReplyContent{
		Status:          status,
		ExecutionCount:  count,
		Payload:         []any{},
		UserVariables:   map[string]any{},
		UserExpressions: map[string]any{},
	}
}
