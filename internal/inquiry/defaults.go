package inquiry

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/backend-giftshop/internal/catalog"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var (
	defaultsOnce sync.Once
	defaults     []catalog.InquiryQuestion
	defaultsErr  error
)

func loadDefaults() ([]catalog.InquiryQuestion, error) {
	defaultsOnce.Do(func() {
		var qs []catalog.InquiryQuestion
		if err := yaml.Unmarshal(defaultsYAML, &qs); err != nil {
			defaultsErr = fmt.Errorf("inquiry: parse default questions: %w", err)
			return
		}
		defaults = qs
	})
	return defaults, defaultsErr
}

// Defaults returns a fresh copy of the default questionnaire.
func Defaults() []catalog.InquiryQuestion {
	qs, err := loadDefaults()
	if err != nil {
		panic(err)
	}
	out := make([]catalog.InquiryQuestion, len(qs))
	for i, q := range qs {
		out[i] = q
		if q.Options != nil {
			out[i].Options = append([]catalog.InquiryOption(nil), q.Options...)
		}
	}
	return out
}

// EnsureDefaults attaches the default questionnaire to products that show the
// inquiry form but have no questions of their own.
func EnsureDefaults(p *catalog.Product) {
	if p == nil || !p.ShowInquiryForm || len(p.InquiryFields) > 0 {
		return
	}
	p.InquiryFields = Defaults()
}
