package domain

// GatewayOrder is the payable order created by the payment gateway.
type GatewayOrder struct {
	ID          string
	RedirectURL string
}

// CaptureOutcome is the gateway's definitive answer to a capture request.
type CaptureOutcome struct {
	Captured   bool
	PayerEmail string
	// Status is the raw gateway status, kept for diagnostics.
	Status string
}

// ProvisionSpec is what the provisioning backend needs to create a panel.
type ProvisionSpec struct {
	OrderID     string
	Kind        string
	Sizing      Sizing
	DisplayName string
	Credentials Credentials
	Email       string
}

// Message is a notification addressed to a single recipient.
type Message struct {
	ID      string
	To      string
	Subject string
	Body    string
}
