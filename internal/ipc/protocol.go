package ipc

// Request is one newline-delimited JSON command sent to the owner process.
type Request struct {
	Command string `json:"command"`
	// Trigger names the macro for the "trigger" command.
	Trigger string `json:"trigger,omitempty"`
}

// Response is the owner process answer to one Request.
type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Facing  string `json:"facing,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
