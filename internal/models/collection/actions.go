package collection

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mnuddindev/koishi/pkg/logger"
	"github.com/mnuddindev/koishi/pkg/notify"
	"github.com/mnuddindev/koishi/pkg/utils"
	"gorm.io/gorm"
)

// Rule connectors.
const (
	ConnectorEmail    = "email"
	ConnectorTelegram = "telegram"
)

// Recognized rule operands. "equal" is string equality for non-numeric
// columns; the rest compare both sides as floating point numbers.
const (
	OperandEqual     = "equal"
	OperandNumEqual  = "="
	OperandLess      = "<"
	OperandLessEq    = "<="
	OperandGreater   = ">"
	OperandGreaterEq = ">="
)

const connectorTestText = "Connector test - if you are reading this, that means that the connector is working"

// ErrUnsupportedOperand marks a rule whose operand is not in the recognized
// set. The rule run skips such a rule (and logs it) rather than aborting the
// remaining rules or surfacing to the row writer.
var ErrUnsupportedOperand = utils.NewError(utils.ErrBadRequest.Code, "Unsupported action operand")

// Rule is one user-defined condition checked against every new or edited
// row. When it holds, a message is dispatched through the named connector.
type Rule struct {
	Connector string `json:"connector" validate:"required,oneof=telegram email"`
	Column    string `json:"column" validate:"required,max=20"`
	Operand   string `json:"operand" validate:"required,oneof=equal = < <= > >="`
	Target    string `json:"target" validate:"required"`
}

// Connectors holds the notification channel credentials of one collection.
type Connectors struct {
	Telegram notify.TelegramConnector `json:"telegram"`
	Email    notify.EmailConnector    `json:"email"`
}

// CollectionActions is the alerting ruleset of one collection: connector
// credentials plus the ordered rules evaluated against each written row.
type CollectionActions struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ParentID  uuid.UUID `gorm:"type:uuid;not null;index" json:"parent"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Connectors Connectors `gorm:"serializer:json" json:"connectors"`
	Rules      []Rule     `gorm:"serializer:json" json:"value"`
}

func (a *CollectionActions) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// GetActions loads the ruleset of a collection.
func GetActions(ctx context.Context, db *gorm.DB, parentID uuid.UUID) (*CollectionActions, error) {
	a := &CollectionActions{}
	if err := db.WithContext(ctx).First(a, "parent_id = ?", parentID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, utils.NewError(utils.ErrNotFound.Code, "Collection actions not found.")
		}
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to get collection actions")
	}
	return a, nil
}

// ReplaceRules swaps the rule list. Every rule must reference a column that
// exists in the collection model; a rule on a phantom column would never
// fire and is rejected up front.
func ReplaceRules(ctx context.Context, db *gorm.DB, parentID uuid.UUID, rules []Rule) (*CollectionActions, error) {
	m, err := GetModel(ctx, db, parentID)
	if err != nil {
		return nil, err
	}
	for _, rule := range rules {
		if m.Column(rule.Column) == nil {
			return nil, utils.NewError(utils.ErrBadRequest.Code, fmt.Sprintf("Column %q not found in the collection model", rule.Column))
		}
	}

	a, err := GetActions(ctx, db, parentID)
	if err != nil {
		return nil, err
	}
	a.Rules = rules
	if err := db.WithContext(ctx).Model(a).Select("rules").Updates(a).Error; err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update action rules")
	}
	return a, nil
}

// ReplaceConnectors swaps the connector credentials.
func ReplaceConnectors(ctx context.Context, db *gorm.DB, parentID uuid.UUID, connectors Connectors) (*CollectionActions, error) {
	a, err := GetActions(ctx, db, parentID)
	if err != nil {
		return nil, err
	}
	a.Connectors = connectors
	if err := db.WithContext(ctx).Model(a).Select("connectors").Updates(a).Error; err != nil {
		return nil, utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to update action connectors")
	}
	return a, nil
}

// RunActions evaluates every rule against the row and dispatches a report
// for each rule that fires. A rule whose column the row does not populate is
// skipped silently; a rule with an unrecognized operand is skipped with a
// log line; a connector delivery failure is logged and swallowed. Nothing
// here ever propagates back to the row write.
func (a *CollectionActions) RunActions(ctx context.Context, notifier notify.Notifier, log *logger.Logger, row Row, collectionTitle string, collectionID uuid.UUID) {
	for _, rule := range a.Rules {
		cell := row.Cell(rule.Column)
		if cell == nil {
			continue
		}

		triggered, err := performCheck(cell.Data, rule.Operand, rule.Target)
		if err != nil {
			if log != nil {
				log.Warn(ctx).WithMeta(utils.Map{
					"collection": collectionID.String(),
					"column":     rule.Column,
					"operand":    rule.Operand,
				}).Logs("Skipping action rule with unsupported operand")
			}
			continue
		}
		if !triggered {
			continue
		}

		message := reportMessage(rule, cell.Data, collectionTitle)
		if err := a.dispatch(ctx, notifier, rule.Connector, message, collectionTitle); err != nil && log != nil {
			log.Warn(ctx).WithMeta(utils.Map{
				"collection": collectionID.String(),
				"connector":  rule.Connector,
				"error":      err.Error(),
			}).Logs("Action report delivery failed")
		}
	}
}

// TestConnector sends a canned probe message through the named connector so
// users can verify their credentials before relying on them. The result is a
// human-readable string either way.
func (a *CollectionActions) TestConnector(ctx context.Context, notifier notify.Notifier, connectorType string) string {
	switch connectorType {
	case ConnectorEmail:
		if err := notifier.SendEmail(ctx, a.Connectors.Email, `Koishi - Warning triggered for "Connector test"`, connectorTestText); err != nil {
			return "Email connector test failed: " + err.Error()
		}
		return "Email connector test successful"
	case ConnectorTelegram:
		if err := notifier.SendTelegram(ctx, a.Connectors.Telegram, connectorTestText); err != nil {
			return "Telegram connector test failed: " + err.Error()
		}
		return "Telegram connector test successful"
	default:
		return "Unknown connector type: " + connectorType
	}
}

func (a *CollectionActions) dispatch(ctx context.Context, notifier notify.Notifier, connector, message, collectionTitle string) error {
	switch connector {
	case ConnectorEmail:
		subject := fmt.Sprintf("Koishi - Warning triggered for %q", collectionTitle)
		return notifier.SendEmail(ctx, a.Connectors.Email, subject, message)
	case ConnectorTelegram:
		return notifier.SendTelegram(ctx, a.Connectors.Telegram, message)
	default:
		return fmt.Errorf("unknown connector %q", connector)
	}
}

// reportMessage formats the alert for a fired rule.
func reportMessage(rule Rule, actualValue, collectionTitle string) string {
	return fmt.Sprintf("[ALERT] in %q::%q >> %s is %s %s", collectionTitle, rule.Column, actualValue, rule.Operand, rule.Target)
}

// performCheck applies one rule operand. "equal" compares the raw strings
// case-sensitively. The numeric operands parse both sides as float64; a side
// that does not parse behaves like NaN, so the comparison is false and the
// rule simply does not fire.
func performCheck(actualValue, operand, targetValue string) (bool, error) {
	if operand == OperandEqual {
		return actualValue == targetValue, nil
	}

	switch operand {
	case OperandNumEqual, OperandLess, OperandLessEq, OperandGreater, OperandGreaterEq:
	default:
		return false, ErrUnsupportedOperand
	}

	actual, errA := strconv.ParseFloat(actualValue, 64)
	target, errT := strconv.ParseFloat(targetValue, 64)
	if errA != nil || errT != nil {
		return false, nil
	}

	switch operand {
	case OperandNumEqual:
		return actual == target, nil
	case OperandLess:
		return actual < target, nil
	case OperandLessEq:
		return actual <= target, nil
	case OperandGreater:
		return actual > target, nil
	default:
		return actual >= target, nil
	}
}
