// Package support holds the customer-support back office: the reference data
// tables and the tool catalog offered to the SOP assistant.
package support

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed data/fixtures.yaml
var fixturesYAML []byte

// Payment is a policy premium payment.
type Payment struct {
	UserID        string  `yaml:"user_id" json:"userID"`
	PaymentStatus string  `yaml:"payment_status" json:"paymentStatus"`
	PolicyNumber  string  `yaml:"policy_number" json:"policyNumber"`
	Amount        float64 `yaml:"amount" json:"amount"`
}

// Transaction is the document trail of a payment.
type Transaction struct {
	UserID            string `yaml:"user_id" json:"userID"`
	TransactionID     string `yaml:"transaction_id" json:"transactionID"`
	TransactionStatus string `yaml:"transaction_status" json:"transactionStatus"`
	DocumentType      string `yaml:"document_type" json:"documentType"`
	DocumentID        string `yaml:"document_id" json:"documentID"`
	CreatedDate       string `yaml:"created_date" json:"createdDate"`
	LastUpdated       string `yaml:"last_updated" json:"lastUpdated"`
}

// Issue is a customer ticket shown in the agent console.
type Issue struct {
	UserID      string `yaml:"user_id" json:"userID"`
	UserName    string `yaml:"user_name" json:"userName"`
	Title       string `yaml:"title" json:"issueTitle"`
	Description string `yaml:"description" json:"issueDescription"`
	ThreadID    string `yaml:"thread_id" json:"threadID"`
	ImageURL    string `yaml:"image_url,omitempty" json:"imageURL,omitempty"`
}

// GatewayPayment is the payment gateway's record for a user.
type GatewayPayment struct {
	UserID   string `yaml:"user_id"`
	Status   string `yaml:"status"`
	Amount   string `yaml:"amount"`
	Date     string `yaml:"date"`
	UserName string `yaml:"user_name"`
}

// Directory is the read-only set of support tables.
type Directory struct {
	Payments        []Payment        `yaml:"payments"`
	Transactions    []Transaction    `yaml:"transactions"`
	Issues          []Issue          `yaml:"issues"`
	GatewayPayments []GatewayPayment `yaml:"gateway_payments"`
}

// DefaultDirectory returns the bundled tables.
func DefaultDirectory() *Directory {
	d, err := decodeDirectory(fixturesYAML)
	if err != nil {
		panic(fmt.Sprintf("support: bundled fixtures: %v", err))
	}
	return d
}

// LoadDirectory reads tables from a YAML file.
func LoadDirectory(path string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open support data: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read support data: %w", err)
	}
	return decodeDirectory(data)
}

func decodeDirectory(data []byte) (*Directory, error) {
	var d Directory
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode support data: %w", err)
	}
	return &d, nil
}

// Payment returns the policy payment for userID.
func (d *Directory) Payment(userID string) (Payment, bool) {
	for _, p := range d.Payments {
		if p.UserID == userID {
			return p, true
		}
	}
	return Payment{}, false
}

// Transaction returns the transaction document for userID.
func (d *Directory) Transaction(userID string) (Transaction, bool) {
	for _, t := range d.Transactions {
		if t.UserID == userID {
			return t, true
		}
	}
	return Transaction{}, false
}

// GatewayPayment returns the gateway record for userID.
func (d *Directory) GatewayPayment(userID string) (GatewayPayment, bool) {
	for _, g := range d.GatewayPayments {
		if g.UserID == userID {
			return g, true
		}
	}
	return GatewayPayment{}, false
}
