package scanning

import "strings"

// Bucket maps a set of keywords to a service type
type Bucket struct {
	Type     ServiceType
	Keywords []string
}

// DefaultBuckets returns the keyword buckets in evaluation order. Order is
// significant: internet is checked before gas, and so on.
func DefaultBuckets() []Bucket {
	return []Bucket{
		{Type: Internet, Keywords: []string{"інт", "теле", "net", "зв", "triolan", "volia"}},
		{Type: Gas, Keywords: []string{"газ", "gas", "нафтогаз"}},
		{Type: Water, Keywords: []string{"вод", "водок", "water"}},
		{Type: Heating, Keywords: []string{"опал", "тепл", "heat", "hot water"}},
		{Type: Electricity, Keywords: []string{"електроен", "енерг", "power", "svitlo", "yee"}},
		{Type: Rent, Keywords: []string{"оренда", "rent", "управл", "сервіс", "кварт", "тпв"}},
	}
}

// Classifier infers a service type from the provider name and receipt text
type Classifier struct {
	buckets []Bucket
}

// NewClassifier creates a Classifier over the given buckets. A nil slice
// selects DefaultBuckets.
func NewClassifier(buckets []Bucket) *Classifier {
	if buckets == nil {
		buckets = DefaultBuckets()
	}
	return &Classifier{buckets: buckets}
}

// Classify returns the type of the first bucket with a keyword contained in
// the lower-cased provider and text, or Other.
func (c *Classifier) Classify(provider, text string) ServiceType {
	haystack := strings.ToLower(provider + " " + text)
	for _, b := range c.buckets {
		for _, k := range b.Keywords {
			if strings.Contains(haystack, k) {
				return b.Type
			}
		}
	}
	return Other
}

// Classify uses the default buckets.
func Classify(provider, text string) ServiceType {
	return defaultClassifier.Classify(provider, text)
}

var defaultClassifier = NewClassifier(nil)
