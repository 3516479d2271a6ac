package models

// APIResponse is the envelope returned by every control API endpoint.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func SuccessResponse(data any) APIResponse {
	return APIResponse{Success: true, Data: data}
}

func ErrorResponse(err error) APIResponse {
	return APIResponse{Success: false, Error: err.Error()}
}

// CommandResponse wraps the outcome of a submitted interactive command.
func CommandResponse(result CommandResult) APIResponse {
	return APIResponse{Success: true, Data: result, Message: result.Message}
}
