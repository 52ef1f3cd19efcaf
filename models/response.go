package models

type CreateNoteResponse struct {
	Note *Note `json:"note"`
}

type UpdateNoteResponse struct {
	UpdatedNote *Note `json:"updatedNote"`
}

type DeleteNoteResponse struct {
	Message string `json:"message"`
}

// GetAllNotesResponse is the structure for the response of the GET /notes endpoint.
type GetAllNotesResponse struct {
	Count int    `json:"count"`
	Notes []Note `json:"notes"`
}

// ErrorResponse is returned for every failure that happens before a stream starts.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}

// FieldError names one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}
