package inquiry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-giftshop/internal/catalog"
	"github.com/noah-isme/backend-giftshop/internal/common"
	"github.com/noah-isme/backend-giftshop/internal/obs"
)

// MaxAdditionalInfo caps the free-text note in characters.
const MaxAdditionalInfo = 1000

// contactRules maps a failed field to the error the storefront shows for it.
var contactRules = map[string]struct{ code, message string }{
	"email":          {"INVALID_EMAIL", "email address is invalid"},
	"phone":          {"INVALID_PHONE", "phone must contain digits only"},
	"consent":        {"CONSENT_REQUIRED", "consent to be contacted is required"},
	"additionalInfo": {"ADDITIONAL_INFO_TOO_LONG", fmt.Sprintf("additional info must be at most %d characters", MaxAdditionalInfo)},
	"answers":        {"ANSWERS_REQUIRED", "answers are required"},
}

// AnswerInput carries the raw value submitted for the question at the same index.
// Text and select questions expect a string; date_text expects {"date","text"}.
type AnswerInput struct {
	Value json.RawMessage `json:"value"`
}

// Submission is the body of POST /api/v1/products/{slug}/inquiries.
type Submission struct {
	Email          string        `json:"email" validate:"required,contact_email"`
	Phone          string        `json:"phone" validate:"required,digits_only"`
	Consent        bool          `json:"consent" validate:"eq=true"`
	AdditionalInfo string        `json:"additionalInfo" validate:"max=1000"`
	Answers        []AnswerInput `json:"answers" validate:"required"`
}

// Answer is a validated answer as it appears in the notification email.
type Answer struct {
	Question string
	Type     string
	Required bool
	Value    string
	Date     string
	Text     string
}

// IsDate reports whether the answer carries a date and an optional note.
func (a Answer) IsDate() bool { return a.Type == catalog.QuestionDateText }

// DateOrMissing renders the date or a placeholder.
func (a Answer) DateOrMissing() string {
	if a.Date == "" {
		return missingDate
	}
	return a.Date
}

// ValueOrMissing renders the value or a dash.
func (a Answer) ValueOrMissing() string {
	if a.Value == "" {
		return missingValue
	}
	return a.Value
}

// ProductFinder resolves products by slug.
type ProductFinder interface {
	GetProduct(ctx context.Context, slug string) (catalog.Product, error)
}

// Service validates inquiries and mails them to the shop.
type Service struct {
	Products  ProductFinder
	Mailer    common.EmailSender
	Recipient string
	Logger    zerolog.Logger
}

// Submit validates the submission against the product's questionnaire and
// sends the rendered email. The customer's address becomes the reply-to.
func (s *Service) Submit(ctx context.Context, slug string, in Submission) (err error) {
	defer func() { countInquiry(err) }()

	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	in.AdditionalInfo = strings.TrimSpace(in.AdditionalInfo)
	if err := validateContact(in); err != nil {
		return err
	}
	email, phone, info := in.Email, in.Phone, in.AdditionalInfo
	if s.Recipient == "" {
		return common.NewAppError("INQUIRY_NOT_CONFIGURED", "inquiry recipient is not configured", http.StatusInternalServerError, nil)
	}
	if s.Products == nil || s.Mailer == nil {
		return common.NewAppError("INQUIRY_NOT_CONFIGURED", "inquiry service not configured", http.StatusInternalServerError, nil)
	}

	product, err := s.Products.GetProduct(ctx, slug)
	if err != nil {
		return err
	}
	if !product.ShowInquiryForm {
		return common.NewAppError("INQUIRY_DISABLED", "inquiry form is not enabled for this product", http.StatusUnprocessableEntity, nil)
	}

	answers, err := NormalizeAnswers(product.InquiryFields, in.Answers)
	if err != nil {
		return err
	}

	title := strings.TrimSpace(product.Title)
	if title == "" {
		title = "Продукт"
	}
	html, err := renderEmail(emailData{
		ProductTitle:   title,
		ProductID:      product.ID,
		Email:          email,
		Phone:          phone,
		AdditionalInfo: info,
		Answers:        answers,
	})
	if err != nil {
		return fmt.Errorf("render inquiry email: %w", err)
	}

	msg := common.Email{
		To:      s.Recipient,
		ReplyTo: email,
		Subject: "Ново запитване за " + title,
		HTML:    html,
	}
	if err := s.Mailer.Send(ctx, msg); err != nil {
		log := obs.LoggerFrom(ctx, s.Logger)
		log.Error().Err(err).Str("product_id", product.ID).Msg("inquiry email failed")
		return common.NewAppError("INQUIRY_DELIVERY_FAILED", "could not send the inquiry, please try again", http.StatusBadGateway, err)
	}
	return nil
}

// validateContact runs the struct rules and reports the first failing field
// with its storefront error code.
func validateContact(in Submission) error {
	err := common.Validator().Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if rule, ok := contactRules[verrs[0].Field()]; ok {
			return invalid(rule.code, rule.message)
		}
	}
	return common.ValidateStruct(in)
}

// NormalizeAnswers checks every configured question against the answer at the
// same position. Answers beyond the configured questions are ignored.
func NormalizeAnswers(questions []catalog.InquiryQuestion, inputs []AnswerInput) ([]Answer, error) {
	out := make([]Answer, 0, len(questions))
	for idx, q := range questions {
		title := strings.TrimSpace(q.Title)
		if title == "" {
			title = "Въпрос " + strconv.Itoa(idx+1)
		}
		var raw json.RawMessage
		if idx < len(inputs) {
			raw = inputs[idx].Value
		}
		answer := Answer{Question: title, Type: q.Type, Required: q.Required}

		if q.Type == catalog.QuestionDateText {
			answer.Date, answer.Text = dateTextValue(raw)
			if q.Required && answer.Date == "" {
				return nil, answerError("ANSWER_REQUIRED", "a date is required", idx, title)
			}
			out = append(out, answer)
			continue
		}

		answer.Value = stringValue(raw)
		if q.Required && answer.Value == "" {
			return nil, answerError("ANSWER_REQUIRED", "an answer is required", idx, title)
		}
		if q.Type == catalog.QuestionSelect && answer.Value != "" && !hasOption(q.Options, answer.Value) {
			return nil, answerError("INVALID_ANSWER", "answer is not one of the allowed options", idx, title)
		}
		out = append(out, answer)
	}
	return out, nil
}

func stringValue(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func dateTextValue(raw json.RawMessage) (string, string) {
	var v struct {
		Date any `json:"date"`
		Text any `json:"text"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return "", ""
	}
	return scalarString(v.Date), scalarString(v.Text)
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func hasOption(options []catalog.InquiryOption, value string) bool {
	for _, o := range options {
		if o.Value == value {
			return true
		}
	}
	return false
}

func invalid(code, message string) *common.AppError {
	return common.BadRequest(code, message)
}

func answerError(code, message string, idx int, question string) *common.AppError {
	return common.BadRequest(code, message).WithDetails(map[string]any{
		"index":    idx,
		"question": question,
	})
}

func countInquiry(err error) {
	result := "sent"
	if err != nil {
		result = "rejected"
		var appErr *common.AppError
		if !errors.As(err, &appErr) || appErr.HTTPStatus >= 500 {
			result = "error"
		}
	}
	obs.CountInquiry(result)
}
