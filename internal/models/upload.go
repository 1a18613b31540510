package models

// FileCategory selects the size ceiling and MIME allow-list for an upload
type FileCategory string

const (
	CategoryImage     FileCategory = "image"
	CategoryDocument  FileCategory = "document"
	CategoryPortfolio FileCategory = "portfolio"
)

// UploadFile is an untrusted file as declared by the client
type UploadFile struct {
	Name         string
	DeclaredType string
	Category     FileCategory
	Size         int64
	Data         []byte
}

// RejectReason is a machine-readable rejection code
type RejectReason string

const (
	RejectUnknownCategory    RejectReason = "unknown_category"
	RejectTooLarge           RejectReason = "file_too_large"
	RejectTypeNotAllowed     RejectReason = "type_not_allowed"
	RejectExtensionMismatch  RejectReason = "extension_mismatch"
	RejectSignatureMismatch  RejectReason = "signature_mismatch"
	RejectDangerousContent   RejectReason = "dangerous_content"
	RejectEmbeddedExecutable RejectReason = "embedded_executable"
)

// Verdict is the outcome of the file acceptance policy
type Verdict struct {
	Accepted bool         `json:"accepted"`
	Reason   RejectReason `json:"reason,omitempty"`
	Message  string       `json:"message,omitempty"`
}

// Accept returns an accepting verdict
func Accept() Verdict {
	return Verdict{Accepted: true}
}

// Reject returns a rejecting verdict
func Reject(reason RejectReason, message string) Verdict {
	return Verdict{Accepted: false, Reason: reason, Message: message}
}
