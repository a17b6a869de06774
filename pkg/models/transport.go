package models

// ImportImageRequest asks the service to fetch the product image from a URL
type ImportImageRequest struct {
	URL string `json:"url" form:"url" binding:"required"`
}

// InputsRequest updates form fields; empty fields are left unchanged
type InputsRequest struct {
	Features *string `json:"features" form:"features"`
	Tone     string  `json:"tone" form:"tone"`
	Style    string  `json:"style" form:"style"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
