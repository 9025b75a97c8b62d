package domain

import (
	"strings"
	"time"
)

// Category classifies a contract template. Unrecognized input maps to
// CategoryOther rather than surviving as a free string.
type Category string

const (
	CategoryMembership  Category = "MEMBERSHIP"
	CategoryWaiver      Category = "WAIVER"
	CategoryPTAgreement Category = "PT_AGREEMENT"
	CategoryOther       Category = "OTHER"
)

// ParseCategory maps arbitrary input onto the closed category set.
func ParseCategory(raw string) Category {
	switch Category(strings.ToUpper(strings.TrimSpace(raw))) {
	case CategoryMembership:
		return CategoryMembership
	case CategoryWaiver:
		return CategoryWaiver
	case CategoryPTAgreement:
		return CategoryPTAgreement
	default:
		return CategoryOther
	}
}

// ContractStatus tags a signed contract record.
type ContractStatus string

const (
	// StatusSent is assigned at save time. It is the terminal status
	// unless completion marking is enabled in the desk configuration.
	StatusSent ContractStatus = "SENT"
	// StatusCompleted marks a contract whose copy was confirmed by the
	// relay service.
	StatusCompleted ContractStatus = "COMPLETED"
)

// ParseContractStatus validates status input against the closed set.
func ParseContractStatus(raw string) (ContractStatus, bool) {
	switch ContractStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusSent:
		return StatusSent, true
	case StatusCompleted:
		return StatusCompleted, true
	default:
		return "", false
	}
}

// Template is a reusable contract form descriptor created by the
// administrator. Records are immutable after creation.
type Template struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Category       Category  `json:"category"`
	CreatedAt      time.Time `json:"createdAt"`
	SourceDocument string    `json:"sourceDocument,omitempty"`
	SizeLabel      string    `json:"sizeLabel,omitempty"`
	PageCount      int       `json:"pageCount,omitempty"`
}

// SignerInfo carries the customer's form input through a signing session.
// It is never persisted on its own; relevant fields are denormalized onto
// the SignedContract at save time.
type SignerInfo struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	BirthDate string `json:"birthDate"`
}

// SignedContract is the immutable record of a completed signing event.
// The template name and signer fields are copies taken at signing time, so
// later template changes never rewrite history.
type SignedContract struct {
	ID           string         `json:"id"`
	TemplateID   string         `json:"templateId"`
	TemplateName string         `json:"templateName"`
	SignerName   string         `json:"signerName"`
	SignerPhone  string         `json:"signerPhone"`
	SignerEmail  string         `json:"signerEmail"`
	SignedAt     time.Time      `json:"signedAt"`
	Document     string         `json:"document,omitempty"`
	Status       ContractStatus `json:"status"`
}

// EmailStatus tracks the relay's best-effort email copy for one receipt.
type EmailStatus string

const (
	EmailPending  EmailStatus = "pending"
	EmailSent     EmailStatus = "sent"
	EmailFailed   EmailStatus = "failed"
	EmailDisabled EmailStatus = "disabled"
)

// Receipt is the relay's bookkeeping row for one stored contract copy. It
// never carries the document payload; that lives in the blob store under
// FileKey.
type Receipt struct {
	ID           string      `json:"id"`
	TemplateName string      `json:"templateName"`
	SignerName   string      `json:"signerName"`
	SignerEmail  string      `json:"signerEmail"`
	FileKey      string      `json:"fileKey"`
	FileURL      string      `json:"fileUrl"`
	EmailStatus  EmailStatus `json:"emailStatus"`
	ReceivedAt   time.Time   `json:"receivedAt"`
}
