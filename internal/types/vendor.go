package types

import "strings"

// VendorType identifies the wire protocol family a provider speaks.
type VendorType string

const (
	VendorOpenAI VendorType = "OpenAI"
	VendorGemini VendorType = "Gemini"
	VendorClaude VendorType = "Claude"
)

// KnownVendors lists the vendor types in their canonical order.
func KnownVendors() []VendorType {
	return []VendorType{VendorOpenAI, VendorGemini, VendorClaude}
}

// ParseVendorType matches s against the known vendor types, ignoring case.
// "anthropic" is accepted as an alias for Claude.
func ParseVendorType(s string) (VendorType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "openai":
		return VendorOpenAI, true
	case "gemini", "google":
		return VendorGemini, true
	case "claude", "anthropic":
		return VendorClaude, true
	default:
		return "", false
	}
}

func (v VendorType) String() string { return string(v) }

// Role is the speaker of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}
