package tools

// Result is the unified return type from a tool's Execute.
type Result struct {
	ForLLM  string `json:"for_llm"`            // content fed back to the model
	ForUser string `json:"for_user,omitempty"` // short confirmation usable as a reply
	IsError bool   `json:"is_error"`
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func ConfirmResult(forLLM, confirmation string) *Result {
	return &Result{ForLLM: forLLM, ForUser: confirmation}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}
