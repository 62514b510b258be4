package scanning

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

var _ = Describe("ParseDate", func() {
	DescribeTable("supported layouts",
		func(input string, expected time.Time) {
			t, ok := ParseDate(input)
			Expect(ok).To(BeTrue())
			Expect(t).To(Equal(expected))
		},
		Entry("day.month.year hour:minute", "07.02.2026 11:32", time.Date(2026, 2, 7, 11, 32, 0, 0, time.UTC)),
		Entry("day.month.year with seconds", "07.02.2026 11:32:15", time.Date(2026, 2, 7, 11, 32, 15, 0, time.UTC)),
		Entry("ISO date with seconds", "2026-02-07 11:32:00", time.Date(2026, 2, 7, 11, 32, 0, 0, time.UTC)),
		Entry("single digit day and month", "7.2.2026 9:05", time.Date(2026, 2, 7, 9, 5, 0, 0, time.UTC)),
		Entry("surrounding whitespace", " 10.02.2026 15:00\n", time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)),
		Entry("newline between date and time", "10.02.2026\n15:00", time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)),
		Entry("tab between date and time", "10.02.2026\t15:00", time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)),
		Entry("several spaces between date and time", "10.02.2026   15:00", time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)),
		Entry("ISO date over a line break", "2026-02-10\r\n15:00:00", time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)),
	)

	When("both layouts describe the same instant", func() {
		It("should return equal times", func() {
			a, _ := ParseDate("07.02.2026 11:32")
			b, _ := ParseDate("2026-02-07 11:32:00")
			Expect(a.Equal(b)).To(BeTrue())
		})
	})

	DescribeTable("unparseable input",
		func(input string) {
			_, ok := ParseDate(input)
			Expect(ok).To(BeFalse())
		},
		Entry("garbage", "invalid"),
		Entry("empty", ""),
		Entry("date only", "07.02.2026"),
		Entry("trailing digits from the next line", "07.02.2026 11:32\n12345"),
	)
})

var _ = Describe("ParseAmount", func() {
	DescribeTable("valid amounts",
		func(input string, expected string) {
			d := ParseAmount(input)
			Expect(d.Valid).To(BeTrue())
			Expect(d.Decimal.Equal(decimal.RequireFromString(expected))).To(BeTrue(), "got %s", d.Decimal)
		},
		Entry("dot decimal", "150.50", "150.50"),
		Entry("comma decimal", "150,50", "150.50"),
		Entry("dotted thousands with comma decimal", "1.234.567,89", "1234567.89"),
		Entry("dotted thousands", "1.234.56", "1234.56"),
		Entry("space thousands", "1 234,56", "1234.56"),
		Entry("trailing whitespace", "2.00 ", "2.00"),
		Entry("integer", "100", "100"),
	)

	DescribeTable("invalid amounts",
		func(input string) {
			Expect(ParseAmount(input).Valid).To(BeFalse())
		},
		Entry("empty", ""),
		Entry("whitespace", "  \n"),
		Entry("letters", "abc"),
		Entry("negative", "-5.00"),
	)
})

var _ = Describe("Classify", func() {
	DescribeTable("provider and text",
		func(provider, text string, expected ServiceType) {
			Expect(Classify(provider, text)).To(Equal(expected))
		},
		Entry("gas provider", "Нафтогаз", "", Gas),
		Entry("electricity in text", "", "Оплата за електроенергію", Electricity),
		Entry("water provider", "Водоканал", "", Water),
		Entry("internet provider", "Triolan", "", Internet),
		Entry("heating", "", "Оплата за опалення", Heating),
		Entry("rent", "ОСББ", "Оренда квартири", Rent),
		Entry("unknown", "Unknown", "Some random text", Other),
		Entry("case insensitive", "GAS SUPPLY", "", Gas),
	)

	When("text matches both an internet and a gas keyword", func() {
		It("should classify by bucket order", func() {
			Expect(Classify("Нафтогаз", "Triolan")).To(Equal(Internet))
		})
	})

	When("custom buckets are configured", func() {
		var c *Classifier

		BeforeEach(func() {
			c = NewClassifier([]Bucket{
				{Type: Rent, Keywords: []string{"осбб"}},
				{Type: Water, Keywords: []string{"вод"}},
			})
		})

		It("should use the custom order", func() {
			Expect(c.Classify("ОСББ Водограй", "")).To(Equal(Rent))
		})

		It("should fall back to other", func() {
			Expect(c.Classify("Нафтогаз", "")).To(Equal(Other))
		})
	})
})

var _ = Describe("ResolveIdentity", func() {
	When("a receipt number was extracted", func() {
		It("should keep it verbatim", func() {
			Expect(ResolveIdentity(&ReceiptData{ReceiptNumber: "P24-00.1"}, "anything")).To(Equal("P24-00.1"))
		})
	})

	When("no receipt number was extracted", func() {
		It("should derive the key from the MD5 of the text", func() {
			Expect(ResolveIdentity(&ReceiptData{}, "hello")).To(Equal("AUTO-5d41402abc"))
		})

		It("should be stable for identical text", func() {
			Expect(ResolveIdentity(nil, "Сума: 10 UAH")).To(Equal(ResolveIdentity(&ReceiptData{}, "Сума: 10 UAH")))
		})

		It("should differ for different text", func() {
			Expect(ResolveIdentity(nil, "Сума: 10 UAH")).NotTo(Equal(ResolveIdentity(nil, "Сума: 11 UAH")))
		})

		It("should have a fixed length", func() {
			Expect(ResolveIdentity(nil, "")).To(HaveLen(len("AUTO-") + 10))
		})
	})
})
