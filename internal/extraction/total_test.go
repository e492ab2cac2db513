package extraction

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocateTotal", func() {
	var (
		e      *Extractor
		lines  []RawLine
		result TotalResult
	)

	BeforeEach(func() {
		e = newExtractor(DefaultConfig())
	})

	JustBeforeEach(func() {
		result = e.LocateTotal(e.Classify(lines))
	})

	When("a subtotal precedes the total", func() {
		BeforeEach(func() {
			lines = textLines("Subtotal: 9000", "Total: 10000")
		})

		It("picks the total", func() {
			Expect(result.Total).NotTo(BeNil())
			Expect(result.Total.Amount).To(BeComparableTo(dec("10000")))
			Expect(result.TotalLine.Index).To(Equal(1))
		})

		It("records the subtotal", func() {
			Expect(result.Subtotal).NotTo(BeNil())
			Expect(result.Subtotal.Amount).To(BeComparableTo(dec("9000")))
		})
	})

	When("a grand total is printed among plain totals", func() {
		BeforeEach(func() {
			lines = textLines("Total 10.000", "Grand Total 12.000", "Total 5.000")
		})

		It("prefers the grand total", func() {
			Expect(result.Total.Amount).To(BeComparableTo(dec("12000")))
			Expect(result.TotalLine.Index).To(Equal(1))
		})
	})

	When("several plain totals are printed", func() {
		BeforeEach(func() {
			lines = textLines("Total 10.000", "Total 11.000")
		})

		It("picks the last one", func() {
			Expect(result.Total.Amount).To(BeComparableTo(dec("11000")))
		})
	})

	When("no total line is present", func() {
		BeforeEach(func() {
			lines = textLines("Subtotal 9.000", "PPN 900")
		})

		It("falls back to the largest subtotal or tax amount", func() {
			Expect(result.Total.Amount).To(BeComparableTo(dec("9000")))
			Expect(result.Tax.Amount).To(BeComparableTo(dec("900")))
		})
	})

	When("the total amount is printed on the next line", func() {
		BeforeEach(func() {
			lines = textLines("TOTAL", "15.000")
		})

		It("reads it from there", func() {
			Expect(result.Total.Amount).To(BeComparableTo(dec("15000")))
			Expect(result.TotalLine.Index).To(Equal(1))
		})
	})

	When("nothing carries an amount", func() {
		BeforeEach(func() {
			lines = textLines("Total", "Terima kasih")
		})

		It("returns no total", func() {
			Expect(result.Total).To(BeNil())
			Expect(result.Candidates).To(BeEmpty())
		})
	})

	When("the total carries a currency", func() {
		BeforeEach(func() {
			lines = textLines("Total Rp 18.500")
		})

		It("keeps the currency", func() {
			Expect(result.Total.Currency).To(Equal("IDR"))
		})
	})
})
