package domain

// ============================================================
// Customer identity (CPF lookup)
// ============================================================

// IdentityRecord is a validated customer identity.
// Only produced for an 11-digit CPF that passes the check-digit algorithm.
type IdentityRecord struct {
	CPF   string `json:"cpf"` // digits only
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CPFValidationResult is what the CPF lookup returns to the checkout form.
// IsValid=false always comes with Error and never with Identity.
type CPFValidationResult struct {
	IsValid  bool            `json:"isValid"`
	Identity *IdentityRecord `json:"userData,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Placeholder identity used when the lookup service cannot name the customer.
const (
	PlaceholderName = "Cliente Validado"
	MsgInvalidCPF   = "CPF inválido"
)
