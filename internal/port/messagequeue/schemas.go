package messagequeue

// TaskEventPayload is the schema for sddflow.task.* messages.
type TaskEventPayload struct {
	Feature   string `json:"feature"`
	TaskID    string `json:"task_id"`
	Agent     string `json:"agent"`
	Status    string `json:"status"`
	ExitCode  int    `json:"exit_code"`
	ErrorType string `json:"error_type,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Timestamp string `json:"timestamp"`
}

// RouteEventPayload is the schema for sddflow.route.evaluated messages.
type RouteEventPayload struct {
	Feature        string   `json:"feature"`
	Phase          string   `json:"phase"`
	Route          string   `json:"route"`
	RiskTier       string   `json:"risk_tier"`
	FailedCriteria []string `json:"failed_criteria,omitempty"`
	QueueID        string   `json:"queue_id,omitempty"`
	Timestamp      string   `json:"timestamp"`
}

// QueueEventPayload is the schema for sddflow.queue.* messages.
type QueueEventPayload struct {
	Feature   string `json:"feature"`
	QueueID   string `json:"queue_id"`
	Phase     string `json:"phase"`
	Status    string `json:"status"`
	Reviewer  string `json:"reviewer,omitempty"`
	Decision  string `json:"decision,omitempty"`
	Timestamp string `json:"timestamp"`
}

// InvokeRequestPayload is the schema for sddflow.runtime.invoke.* requests.
type InvokeRequestPayload struct {
	TaskID         string            `json:"task_id"`
	Agent          string            `json:"agent"`
	Command        string            `json:"command"`
	WorkDir        string            `json:"work_dir"`
	Strict         bool              `json:"strict"`
	TimeoutSeconds int               `json:"timeout_seconds"`
	Env            map[string]string `json:"env,omitempty"`
}

// InvokeResponsePayload is the reply to an invocation request.
type InvokeResponsePayload struct {
	Success   bool   `json:"success"`
	ExitCode  int    `json:"exit_code"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ErrorType string `json:"error_type"`
	Summary   string `json:"summary"`
}

// FeatureID scopes the event to its feature for WebSocket subscribers.
func (p TaskEventPayload) FeatureID() string { return p.Feature }

// FeatureID scopes the event to its feature for WebSocket subscribers.
func (p RouteEventPayload) FeatureID() string { return p.Feature }

// FeatureID scopes the event to its feature for WebSocket subscribers.
func (p QueueEventPayload) FeatureID() string { return p.Feature }
