package support

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/deepakparameswar/csflow/graph/tool"
	"github.com/deepakparameswar/csflow/internal/damage"
)

// Tool names offered to the SOP assistant.
const (
	ToolGetPaymentStatus    = "get_payment_status"
	ToolCheckBankStatement  = "check_bank_statement"
	ToolCreateSupportTicket = "create_support_ticket"
	ToolUpdateUserDetails   = "update_user_details"
	ToolAssessVehicleDamage = "assess_vehicle_damage"
)

// ErrClassifierUnavailable is returned by assess_vehicle_damage when no
// damage classifier is configured.
var ErrClassifierUnavailable = errors.New("damage classifier not configured")

func objectSchema(required []string, props map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

var (
	stringProp = map[string]interface{}{"type": "string", "minLength": 1}

	userSchema = objectSchema([]string{"user_id"}, map[string]interface{}{
		"user_id": stringProp,
	})
)

// NewCatalog builds the support tool catalog. classifier may be nil.
func NewCatalog(dir *Directory, classifier damage.Classifier) (*tool.Catalog, error) {
	if dir == nil {
		dir = DefaultDirectory()
	}
	return tool.NewCatalog(
		tool.New(ToolGetPaymentStatus, "Get payment status from the payment gateway for a user ID.",
			userSchema, getPaymentStatus(dir)),
		tool.New(ToolCheckBankStatement, "Get bank statement status for a user ID.",
			userSchema, checkBankStatement),
		tool.New(ToolCreateSupportTicket, "Create a support ticket for a user issue.",
			objectSchema([]string{"user_id"}, map[string]interface{}{
				"user_id": stringProp,
				"issue":   map[string]interface{}{"type": "string"},
			}), createSupportTicket),
		tool.New(ToolUpdateUserDetails, "Update the second name of the policy holder for a user ID.",
			userSchema, updateUserDetails),
		tool.New(ToolAssessVehicleDamage, "Estimate vehicle damage severity from an accident photo.",
			objectSchema([]string{"image_url"}, map[string]interface{}{
				"image_url": stringProp,
				"user_id":   map[string]interface{}{"type": "string"},
			}), assessVehicleDamage(classifier)),
	)
}

func getPaymentStatus(dir *Directory) func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
	return func(_ context.Context, in map[string]interface{}) (map[string]interface{}, error) {
		userID, _ := in["user_id"].(string)
		rec, ok := dir.GatewayPayment(userID)
		if !ok {
			return map[string]interface{}{
				"user_id":        userID,
				"payment_status": "failed",
				"error":          "Payment record not found",
				"message":        fmt.Sprintf("User ID '%s' not found.", userID),
			}, nil
		}
		return map[string]interface{}{
			"user_id":        userID,
			"payment_status": rec.Status,
			"amount":         rec.Amount,
			"date":           rec.Date,
			"user_name":      rec.UserName,
		}, nil
	}
}

func checkBankStatement(_ context.Context, in map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{"user_id": in["user_id"], "status": "PENDING"}, nil
}

func createSupportTicket(_ context.Context, in map[string]interface{}) (map[string]interface{}, error) {
	issue, _ := in["issue"].(string)
	if strings.TrimSpace(issue) == "" {
		issue = "General issue"
	}
	return map[string]interface{}{
		"ticket_id": newTicketID(),
		"user_id":   in["user_id"],
		"issue":     issue,
		"status":    "created",
		"priority":  "high",
	}, nil
}

func newTicketID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TKT-" + strings.ToUpper(hex[:8])
}

func updateUserDetails(_ context.Context, in map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{"user_id": in["user_id"], "status": "SUCCESS"}, nil
}

func assessVehicleDamage(c damage.Classifier) func(context.Context, map[string]interface{}) (map[string]interface{}, error) {
	return func(ctx context.Context, in map[string]interface{}) (map[string]interface{}, error) {
		if c == nil {
			return nil, ErrClassifierUnavailable
		}
		imageURL, _ := in["image_url"].(string)
		userID, _ := in["user_id"].(string)

		a, err := c.Assess(ctx, damage.Request{SessionID: userID, ImageURL: imageURL})
		if err != nil {
			return nil, err
		}

		damages := make([]interface{}, 0, len(a.Damages))
		for _, d := range a.Damages {
			damages = append(damages, map[string]interface{}{
				"label":      d.Label,
				"severity":   d.Severity,
				"confidence": d.Confidence,
			})
		}
		out := map[string]interface{}{
			"image_url": imageURL,
			"severity":  a.Worst(),
			"damages":   damages,
		}
		if a.AnnotatedOutput != "" {
			out["annotated_output"] = a.AnnotatedOutput
		}
		return out, nil
	}
}
