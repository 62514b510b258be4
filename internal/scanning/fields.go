package scanning

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Rule is one candidate pattern for a field. Group selects the capture group
// holding the value.
type Rule struct {
	Pattern *regexp.Regexp
	Group   int
}

// MustRule compiles a case-insensitive rule capturing group 1. It panics on
// a malformed pattern.
func MustRule(pattern string) Rule {
	return Rule{Pattern: regexp.MustCompile(`(?i)` + pattern), Group: 1}
}

// Exclusion rejects an address candidate containing every All substring and
// at least one Any substring. Comparison ignores case.
type Exclusion struct {
	All []string
	Any []string
}

func (x Exclusion) matches(value string) bool {
	v := strings.ToUpper(value)
	for _, s := range x.All {
		if !strings.Contains(v, strings.ToUpper(s)) {
			return false
		}
	}
	if len(x.Any) == 0 {
		return true
	}
	for _, s := range x.Any {
		if strings.Contains(v, strings.ToUpper(s)) {
			return true
		}
	}
	return false
}

// Rules holds the ordered candidate patterns for every extracted field.
// Earlier rules win regardless of where in the text later rules would match.
type Rules struct {
	ReceiptNumber     []Rule
	PaymentDateTime   []Rule
	TotalAmount       []Rule
	TransferredAmount []Rule
	Commission        []Rule
	ServiceProvider   []Rule
	PayerName         []Rule
	Address           []Rule
	BankTerminal      []Rule

	AddressExclusions []Exclusion
}

const (
	amountCapture = `([\d\.,\s]+)`
	dateCapture   = `([\d\.\s:]+)`
	lineCapture   = `([^\n]+)`
	numberCapture = `([A-Za-z0-9\-\.]+)`
	addressWord   = `[\d\-/A-ZА-Яа-яііїє]+`
	streetPrefix  = `(?:вул\.|просп\.|пров\.|провулок|пл\.|бул\.|вулиця)`
)

// DefaultRules returns the label table for Ukrainian bank and utility
// receipt templates.
func DefaultRules() Rules {
	return Rules{
		ReceiptNumber: []Rule{
			MustRule(`Квитанція №\s*` + numberCapture),
			MustRule(`Номер квитанції\s*` + numberCapture),
			MustRule(`Receipt №\s*` + numberCapture),
			MustRule(`ID:\s*` + numberCapture),
			MustRule(`Квитанція електронна\s+([\d\-]+)`),
		},
		PaymentDateTime: []Rule{
			MustRule(`Дата та час здійснення операції:\s*` + dateCapture),
			MustRule(`Дата:\s*` + dateCapture),
			MustRule(`Date:\s*` + dateCapture),
			MustRule(`Час:\s*` + dateCapture),
			MustRule(`Дата та час операції\s*` + dateCapture),
		},
		TotalAmount: []Rule{
			MustRule(`Сума до сплати:\s*` + amountCapture + `\s*UAH`),
			MustRule(`Разом до сплати:\s*` + amountCapture),
			MustRule(`Total:\s*` + amountCapture + `\s*UAH`),
			MustRule(`Сплачено\s*` + amountCapture + `\s*грн`),
			MustRule(`Загальна сума\s*` + amountCapture + `\s*грн`),
		},
		TransferredAmount: []Rule{
			MustRule(`Сума:\s*` + amountCapture + `\s*UAH`),
			MustRule(`Сума:\s*` + amountCapture),
			MustRule(`Amount:\s*` + amountCapture),
			MustRule(`Сума операції:\s*` + amountCapture),
			MustRule(`Сума переказу\s*` + amountCapture + `\s*грн`),
		},
		Commission: []Rule{
			MustRule(`Комісія:\s*` + amountCapture + `\s*UAH`),
			MustRule(`Fee:\s*` + amountCapture),
			MustRule(`Сума комісії\s*` + amountCapture + `\s*грн`),
		},
		ServiceProvider: []Rule{
			MustRule(`Отримувач:\s*` + lineCapture),
			MustRule(`Назва:\s*` + lineCapture),
			MustRule(`Одержувач\s+` + lineCapture),
		},
		PayerName: []Rule{
			MustRule(`Платник:\s*` + lineCapture),
			MustRule(`ПІБ:\s*` + lineCapture),
			MustRule(`Платник\s+` + lineCapture),
		},
		Address: []Rule{
			MustRule(`Адреса:\s*([^\n,]+,\s*[^\n,]+)`),
			MustRule(`(` + streetPrefix + `\s*[\s\.A-ZА-Яа-яііїє0-9\-]+(?:(?:,|\s+)\s*(?:буд\.|д\.|кв\.|кім\.|квартира|кв)\.?\s*` + addressWord + `|(?:\s*,\s*|(?:\s+))` + addressWord + `)+)`),
			MustRule(`вул\.\s*([^,]+,\s*[^,\n]+)`),
			MustRule(`(` + streetPrefix + `\s*[\s\.A-ZА-Яа-яііїє0-9\-]+(?:,|\s+)\s*[\d/A-ZА-Яа-я\-]+)`),
		},
		BankTerminal: []Rule{
			MustRule(`Термінал:\s*` + lineCapture),
			MustRule(`Термінал\s+` + lineCapture),
		},
		AddressExclusions: []Exclusion{
			// PrivatBank head office, printed on every receipt it issues.
			{All: []string{"Грушевського"}, Any: []string{"1Д", "Київ"}},
		},
	}
}

func (r Rules) fields() map[string][]Rule {
	return map[string][]Rule{
		"receipt_number":     r.ReceiptNumber,
		"payment_datetime":   r.PaymentDateTime,
		"total_amount":       r.TotalAmount,
		"transferred_amount": r.TransferredAmount,
		"commission":         r.Commission,
		"service_provider":   r.ServiceProvider,
		"payer_name":         r.PayerName,
		"address":            r.Address,
		"bank_terminal":      r.BankTerminal,
	}
}

// Validate reports rules whose pattern is missing or whose group does not exist.
func (r Rules) Validate() error {
	for field, rules := range r.fields() {
		for i, rule := range rules {
			if rule.Pattern == nil {
				return fmt.Errorf("%s rule %d: nil pattern", field, i)
			}
			if rule.Group < 0 || rule.Group > rule.Pattern.NumSubexp() {
				return fmt.Errorf("%s rule %d: group %d out of range for %q", field, i, rule.Group, rule.Pattern)
			}
		}
	}
	return nil
}

// FieldExtractor applies a rule table to raw receipt text
type FieldExtractor struct {
	rules      Rules
	classifier *Classifier
}

// NewFieldExtractor creates a FieldExtractor. A nil classifier selects the
// default keyword buckets.
func NewFieldExtractor(rules Rules, classifier *Classifier) (*FieldExtractor, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	if classifier == nil {
		classifier = NewClassifier(nil)
	}
	return &FieldExtractor{rules: rules, classifier: classifier}, nil
}

// Extract builds a receipt from text. Fields without a matching rule are
// left empty; ReceiptNumber is not defaulted here (see ResolveIdentity).
func (e *FieldExtractor) Extract(text string) *ReceiptData {
	data := &ReceiptData{}

	data.ReceiptNumber, _ = firstText(e.rules.ReceiptNumber, text)
	// A matched but unparseable date leaves the field empty; later rules
	// are not consulted.
	if s, ok := firstText(e.rules.PaymentDateTime, text); ok {
		if t, ok := ParseDate(s); ok {
			data.PaymentDateTime = &t
		}
	}
	data.TotalAmount = firstAmount(e.rules.TotalAmount, text)
	data.TransferredAmount = firstAmount(e.rules.TransferredAmount, text)
	data.Commission = firstAmount(e.rules.Commission, text)
	data.ServiceProvider, _ = firstText(e.rules.ServiceProvider, text)
	data.PayerName, _ = firstText(e.rules.PayerName, text)
	data.Address, _ = firstAddress(e.rules.Address, e.rules.AddressExclusions, text)
	data.BankTerminal, _ = firstText(e.rules.BankTerminal, text)

	if !data.TotalAmount.Valid && data.TransferredAmount.Valid {
		total := data.TransferredAmount.Decimal
		if data.Commission.Valid {
			total = total.Add(data.Commission.Decimal)
		}
		data.TotalAmount = decimal.NewNullDecimal(total)
	}

	if isEmpty(data) {
		slog.Debug("no fields extracted from text", "length", len(text))
	}

	data.ServiceType = e.classifier.Classify(data.ServiceProvider, text)
	return data
}

func firstText(rules []Rule, text string) (string, bool) {
	for _, rule := range rules {
		if m := rule.Pattern.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[rule.Group]), true
		}
	}
	return "", false
}

func firstAmount(rules []Rule, text string) decimal.NullDecimal {
	for _, rule := range rules {
		m := rule.Pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if d := ParseAmount(strings.TrimSpace(m[rule.Group])); d.Valid {
			return d
		}
	}
	return decimal.NullDecimal{}
}

// firstAddress walks every match of a rule before moving to the next one,
// so an excluded boilerplate address does not hide the customer's address.
func firstAddress(rules []Rule, exclusions []Exclusion, text string) (string, bool) {
	for _, rule := range rules {
	matches:
		for _, m := range rule.Pattern.FindAllStringSubmatch(text, -1) {
			v := strings.TrimSpace(m[rule.Group])
			for _, x := range exclusions {
				if x.matches(v) {
					continue matches
				}
			}
			return v, true
		}
	}
	return "", false
}

func isEmpty(d *ReceiptData) bool {
	return d.ReceiptNumber == "" && d.PaymentDateTime == nil &&
		!d.TotalAmount.Valid && !d.TransferredAmount.Valid && !d.Commission.Valid &&
		d.ServiceProvider == "" && d.PayerName == "" && d.Address == "" && d.BankTerminal == ""
}

var defaultExtractor = func() *FieldExtractor {
	e, err := NewFieldExtractor(DefaultRules(), nil)
	if err != nil {
		panic(err)
	}
	return e
}()

// ExtractFields applies DefaultRules to text.
func ExtractFields(text string) *ReceiptData {
	return defaultExtractor.Extract(text)
}
